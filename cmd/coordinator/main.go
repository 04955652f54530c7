// Command coordinator starts the query coordinator process: it loads its
// configuration and optional pool whitelist, builds a Scheduler, runs the
// FragmentTable expiry service, and stops on SIGINT or SIGTERM. Scheduling
// queries, dispatching ExecPlanFragment RPCs and aggregating profiles are
// not wired here (see the note in main).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/impala-query/fragment-runtime/pkg/config"
	"github.com/impala-query/fragment-runtime/pkg/distexec"
	"github.com/impala-query/fragment-runtime/pkg/logutil"
	"github.com/impala-query/fragment-runtime/pkg/scheduler"
	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
	"github.com/impala-query/fragment-runtime/pkg/scheduler/poolauth"
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

	var whitelist *poolauth.Whitelist
	if cfg.PoolWhitelistFile != "" {
		data, err := os.ReadFile(cfg.PoolWhitelistFile)
		logutil.CheckFatal("reading pool whitelist", err)
		whitelist, err = poolauth.Load(data)
		logutil.CheckFatal("parsing pool whitelist", err)
	}

	coordDescriptor := backend.Descriptor{ID: "coordinator", Host: cfg.ListenAddress}
	sched := scheduler.New(coordDescriptor, prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fragmentTable := distexec.NewFragmentTable(5 * time.Minute)
	logutil.CheckFatal("starting fragment table", fragmentTable.StartAsync(ctx))
	logutil.CheckFatal("awaiting fragment table", fragmentTable.AwaitRunning(ctx))

	if whitelist != nil {
		level.Info(logutil.Logger).Log("msg", "loaded pool whitelist", "file", cfg.PoolWhitelistFile)
	}

	level.Info(logutil.Logger).Log("msg", "coordinator started", "listen_address", cfg.ListenAddress, "known_backends", len(sched.KnownBackends()))

	// Serving the client-facing query RPCs, wiring the scheduler's
	// ComputeScanRangeAssignment/ComputeFragmentHosts output to dispatched
	// ExecPlanFragment calls, is assembled by the frontend that owns plan
	// fragments (out of scope here; see non-goals).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fragmentTable.StopAsync()
	logutil.CheckFatal("awaiting fragment table shutdown", fragmentTable.AwaitTerminated(context.Background()))
}

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
