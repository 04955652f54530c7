package rpcclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/fragmentexec"
	"github.com/impala-query/fragment-runtime/pkg/logutil"
	"github.com/impala-query/fragment-runtime/pkg/status"
)

func newTestClient(cfg Config) *Client {
	return New(cfg, logutil.NewLogger("info"), prometheus.NewRegistry())
}

func TestCreateSocketPlain(t *testing.T) {
	cfg := Config{Address: "localhost:1234"}
	opts, st := cfg.CreateSocket()
	require.True(t, st.Ok())
	require.Len(t, opts, 1)
}

func TestCreateSocketTLSMissingCAFails(t *testing.T) {
	cfg := Config{Address: "localhost:1234", TLSEnabled: true, CACertificateFile: "/nonexistent/ca.pem"}
	_, st := cfg.CreateSocket()
	require.False(t, st.Ok())
	require.Equal(t, status.Internal, st.Code())
}

func TestCloseIsIdempotentWhenNeverOpened(t *testing.T) {
	c := newTestClient(Config{Address: "localhost:1234"})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestOpenIsIdempotent(t *testing.T) {
	c := newTestClient(Config{Address: "localhost:1"})
	st1 := c.Open(context.Background())
	require.True(t, st1.Ok())
	st2 := c.Open(context.Background())
	require.True(t, st2.Ok())
}

func TestReportExecStatusFailsWhenNotConnected(t *testing.T) {
	c := newTestClient(Config{Address: "localhost:1"})
	_, err := c.ReportExecStatus(context.Background(), fragmentexec.ReportExecStatusParams{})
	require.Error(t, err)
}

func TestOpenWithRetryGivesUpAfterMaxTries(t *testing.T) {
	cfg := Config{Address: "localhost:1234", TLSEnabled: true, CACertificateFile: "/nonexistent/ca.pem"}
	c := newTestClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st := c.OpenWithRetry(ctx, 3, time.Millisecond)
	require.False(t, st.Ok())
}
