package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultThenYAMLOverride(t *testing.T) {
	cfg := Default()
	require.Equal(t, 100, cfg.MaxErrors)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_errors: 50\nbatch_size: 2048\n"), 0o600))

	require.NoError(t, cfg.Load(path))
	require.Equal(t, 50, cfg.MaxErrors)
	require.Equal(t, 2048, cfg.BatchSize)
	require.Equal(t, 500*time.Millisecond, cfg.OpenRetryWait)
}

func TestRegisterFlagsOverridesYAML(t *testing.T) {
	cfg := Default()
	cfg.MaxErrors = 50

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-max_errors=7"}))
	require.Equal(t, 7, cfg.MaxErrors)
}

func TestLoadMissingFileErrors(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Load("/nonexistent/config.yaml"))
}
