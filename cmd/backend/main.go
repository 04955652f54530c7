// Command backend starts a fragment-execution backend process: it loads
// its configuration, opens a connection (with retries) to its coordinator,
// logs that it started, and then blocks. It does not itself serve
// ExecPlanFragment RPCs (see the note in main).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/impala-query/fragment-runtime/pkg/config"
	"github.com/impala-query/fragment-runtime/pkg/logutil"
	"github.com/impala-query/fragment-runtime/pkg/rpcclient"
)

const configFileOption = "config.file"

func main() {
	cfg := config.Default()

	if configFile := parseConfigFileParameter(); configFile != "" {
		if err := cfg.Load(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "error loading config from %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}

	flag.String(configFileOption, "", "YAML configuration file to load before flag overrides.")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	logutil.Logger = logutil.NewLogger(cfg.LogLevel)

	coordClient := rpcclient.New(rpcclient.Config{
		Address:           cfg.CoordinatorAddress,
		TLSEnabled:        cfg.TLSEnabled,
		CACertificateFile: cfg.SSLClientCACertificate,
	}, logutil.Logger, prometheus.DefaultRegisterer)

	st := coordClient.OpenWithRetry(context.Background(), cfg.OpenNumRetries, cfg.OpenRetryWait)
	if !st.Ok() {
		logutil.CheckFatal("opening coordinator connection", errors.New(st.Error()))
	}

	level.Info(logutil.Logger).Log("msg", "backend started", "listen_address", cfg.ListenAddress, "coordinator_address", cfg.CoordinatorAddress)

	// Serving ExecPlanFragment RPCs themselves is wired by a generated grpc
	// server registered against the Executor implementation supplied by the
	// plan-fragment frontend (out of scope here; see fragmentexec.Executor).
	select {}
}

// parseConfigFileParameter finds -config.file among os.Args without
// triggering flag.Parse's "flag redefined" or "unknown flag" errors for
// flags registered later, by scanning for the config file in a throwaway
// FlagSet first.
func parseConfigFileParameter() string {
	var configFile string
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")

	args := os.Args[1:]
	for len(args) > 0 {
		_ = fs.Parse(args)
		if configFile != "" {
			break
		}
		args = args[1:]
	}
	return configFile
}
