// Package logutil wires the module's components to a single leveled
// logger built on go-kit/log.
package logutil

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the process-wide default. Components should accept a
// log.Logger in their constructor instead of reading this directly;
// it exists so cmd/ entrypoints and tests have a sane default.
var Logger = log.NewNopLogger()

// NewLogger builds a leveled, timestamped logger writing to stderr.
func NewLogger(logLevel string) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))
	return level.NewFilter(l, levelOption(logLevel))
}

func levelOption(logLevel string) level.Option {
	switch logLevel {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

// CheckFatal logs err at error level, using %+v so a wrapped error's chain
// is visible, and exits the process.
func CheckFatal(location string, err error) {
	if err == nil {
		return
	}
	logger := level.Error(Logger)
	if location != "" {
		logger = log.With(logger, "msg", "error "+location)
	}
	logger.Log("err", fmt.Sprintf("%+v", err))
	os.Exit(1)
}

type loggerKey struct{}

// WithContext returns the logger stashed in ctx, or Logger if none was
// attached.
func WithContext(ctx context.Context) log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(log.Logger); ok {
		return l
	}
	return Logger
}

// ContextWithLogger attaches l to ctx for downstream WithContext calls.
func ContextWithLogger(ctx context.Context, l log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithQueryID annotates l with a query_id field for correlating log lines
// across a query's fragment instances.
func WithQueryID(queryID string, l log.Logger) log.Logger {
	return log.With(l, "query_id", queryID)
}
