package rpcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/impala-query/fragment-runtime/pkg/backoff"
	"github.com/impala-query/fragment-runtime/pkg/fragmentexec"
	"github.com/impala-query/fragment-runtime/pkg/rpcerr"
	"github.com/impala-query/fragment-runtime/pkg/status"
)

const (
	reportExecStatusMethod = "/fragmentrpc.Coordinator/ReportExecStatus"
)

// Config is the socket-level configuration CreateSocket
// takes: a plain or TLS connection to one coordinator address.
type Config struct {
	Address          string
	TLSEnabled       bool
	CACertificateFile string
}

// CreateSocket builds grpc dial options for cfg, loading the trusted-CA
// bundle once if TLS is enabled. Failure is reported as a Status, not
// returned as a bare error.
func (cfg Config) CreateSocket() ([]grpc.DialOption, status.Status) {
	if !cfg.TLSEnabled {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, status.Ok
	}

	pool := x509.NewCertPool()
	pem, err := os.ReadFile(cfg.CACertificateFile)
	if err != nil {
		return nil, status.New(status.Internal, "reading CA bundle %s: %v", cfg.CACertificateFile, err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, status.New(status.Internal, "no certificates parsed from %s", cfg.CACertificateFile)
	}

	creds := credentials.NewTLS(&tls.Config{RootCAs: pool})
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, status.Ok
}

// Client manages connection lifecycle (Open, OpenWithRetry, Close) around
// a single coordinator address, with a typed stub whose only duty here is
// ReportExecStatus (serialization is the codec's job, not the client's).
// Implements fragmentexec.CoordinatorClient.
type Client struct {
	cfg             Config
	logger          log.Logger
	requestDuration *prometheus.HistogramVec

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// New returns an unopened Client for cfg, registering its request-duration
// histogram against reg (pass prometheus.DefaultRegisterer for the process
// default).
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impala_coordinator_rpc_duration_seconds",
			Help:    "Time spent on RPCs to the coordinator.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 6),
		}, []string{"method", "status_code"}),
	}
}

// Open idempotently opens the underlying connection if not already open.
// On failure it returns a Status carrying the address and the underlying
// error text.
func (c *Client) Open(ctx context.Context) status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return status.Ok
	}

	opts, st := c.cfg.CreateSocket()
	if !st.Ok() {
		return st
	}
	unaryInts, streamInts := Instrument(c.requestDuration)
	opts = append(opts,
		grpc.WithChainUnaryInterceptor(unaryInts...),
		grpc.WithChainStreamInterceptor(streamInts...),
	)
	conn, err := grpc.NewClient(c.cfg.Address, opts...)
	if err != nil {
		return status.New(status.Transport, "opening connection to %s: %v", c.cfg.Address, err)
	}
	c.conn = conn
	return status.Ok
}

// OpenWithRetry retries Open with fixed backoff. numTries=0 retries
// indefinitely (until ctx is done). Logs a throttled attempt line every
// 10th retry.
func (c *Client) OpenWithRetry(ctx context.Context, numTries int, wait time.Duration) status.Status {
	b := backoff.New(ctx, backoff.Config{MinBackoff: wait, MaxBackoff: wait, MaxRetries: numTries})
	var last status.Status
	for b.Ongoing() {
		last = c.Open(ctx)
		if last.Ok() {
			return status.Ok
		}
		if b.NumRetries()%10 == 0 {
			level.Warn(c.logger).Log("msg", "retrying coordinator connection", "address", c.cfg.Address, "attempt", b.NumRetries(), "err", last.Error())
		}
		b.Wait()
	}
	if err := b.Err(); err != nil {
		return status.New(status.Transport, "opening connection to %s: %v", c.cfg.Address, err)
	}
	return last
}

// Close idempotently tears down the connection; safe on a never-opened
// client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Reopen closes and reopens the connection, the recovery step
// fragmentexec.FragmentExecState.ReportStatusCb performs after a
// transport failure.
func (c *Client) Reopen(ctx context.Context) error {
	_ = c.Close()
	st := c.Open(ctx)
	if !st.Ok() {
		return fmt.Errorf("%s", st.Error())
	}
	return nil
}

// ReportExecStatus invokes the coordinator's ReportExecStatus RPC over the
// gob content-subtype codec. Transport-level failures are wrapped as
// *rpcerr.TransportError so fragmentexec's retry discipline can detect
// them with errors.As.
func (c *Client) ReportExecStatus(ctx context.Context, params fragmentexec.ReportExecStatusParams) (fragmentexec.ReportExecStatusResult, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fragmentexec.ReportExecStatusResult{}, rpcerr.Wrap(fmt.Errorf("not connected to %s", c.cfg.Address))
	}

	var resp fragmentexec.ReportExecStatusResult
	err := conn.Invoke(ctx, reportExecStatusMethod, params, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return fragmentexec.ReportExecStatusResult{}, rpcerr.Wrap(err)
	}
	return resp, nil
}
