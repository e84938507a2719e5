// Package observability configures process-wide logging and, optionally,
// OpenTelemetry log export.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Log exporters selectable with Options.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// instrumentationName identifies log records bridged to OpenTelemetry.
const instrumentationName = "github.com/florianilch/copilot-proxy"

// Options configure Instrument.
type Options struct {
	Level    slog.Level
	Format   string
	Exporter string

	// Output receives human-readable logs. Defaults to os.Stdout.
	Output io.Writer
}

// ShutdownFunc flushes and stops exporters.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger and the W3C trace context
// propagator. The returned ShutdownFunc must be called before exit to flush
// exported logs.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handler, err := newStdoutHandler(out, opts.Level, opts.Format)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }

	exporter, err := newExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severityFor(opts.Level))
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

		handler = newFanoutHandler(handler, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
		shutdown = provider.Shutdown
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})
	slog.SetDefault(slog.New(newTraceContextHandler(handler)))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newExporter returns nil when export is disabled.
func newExporter(ctx context.Context, name string) (sdklog.Exporter, error) {
	switch strings.ToLower(name) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		// stdout carries the human-readable logs already
		return stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", name)
	}
}

func severityFor(level slog.Level) minsev.Severity {
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

// fanoutHandler passes every record to all handlers that accept its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: handlers}
}
