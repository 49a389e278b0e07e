package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ServiceName    = "dtpanel"
	ServiceVersion = "1.0.0"
	TracerName     = "dtpanel"
)

// Tracing holds the tracer used for pipeline stage spans.
type Tracing struct {
	Tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	file     *os.File
	logger   *slog.Logger
}

// InitializeTracing exports spans as JSON to traceFile. An empty path
// yields a no-op tracer.
func InitializeTracing(traceFile string, logger *slog.Logger) (*Tracing, error) {
	if logger == nil {
		logger = GetLogger()
	}
	if traceFile == "" {
		return &Tracing{Tracer: noop.NewTracerProvider().Tracer(TracerName), logger: logger}, nil
	}

	file, err := openLogFile(traceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	)

	// Spans are written as they end so the file is complete at exit.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)

	logger.Debug("Tracing initialized", slog.String("trace_file", traceFile))

	return &Tracing{
		Tracer:   tp.Tracer(TracerName, trace.WithInstrumentationVersion(ServiceVersion)),
		provider: tp,
		file:     file,
		logger:   logger,
	}, nil
}

// StartStage opens a span for a pipeline stage and tags it with the run id.
func (t *Tracing) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := t.Tracer.Start(ctx, stage)
	span.SetAttributes(attribute.String("dtpanel.stage", stage))
	if runID := GetRunID(ctx); runID != "" {
		span.SetAttributes(attribute.String("dtpanel.run_id", runID))
	}
	return ctx, span
}

// EndStage records err on the span, if any, and ends it.
func EndStage(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes the provider and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	var errs []error

	if t.provider != nil {
		if err := t.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("trace file close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("tracing shutdown errors: %v", errs)
	}
	return nil
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
