// Package observability installs the process-wide logger and, optionally, an
// OpenTelemetry log pipeline behind it.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ScopeName identifies log records emitted through the OpenTelemetry bridge.
const ScopeName = "github.com/florianilch/tokenrelay"

// Exporter selects where log records go when the OpenTelemetry pipeline is used.
type Exporter string

const (
	ExporterNone     Exporter = ""
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// Options configure Instrument.
type Options struct {
	Level slog.Level
	// Format is "text" or "json". Ignored when an exporter is set.
	Format string
	// Exporter enables the OpenTelemetry log pipeline.
	Exporter Exporter
	// Writer receives text/json and stdout exporter output. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument sets the default slog logger and the global W3C trace context
// propagator. The returned function flushes and stops the log pipeline; it is
// a no-op when no exporter is configured.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.Exporter == ExporterNone {
		handler, err := newHandler(w, opts.Format, opts.Level)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, opts.Exporter, w)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s log exporter: %w", opts.Exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	slog.SetDefault(slog.New(otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(provider))))

	return provider.Shutdown, nil
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newExporter(ctx context.Context, kind Exporter, w io.Writer) (sdklog.Exporter, error) {
	switch kind {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPGRPC:
		// Endpoint and headers come from OTEL_EXPORTER_OTLP_* variables
		return otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", kind)
	}
}

// severity maps slog levels onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
