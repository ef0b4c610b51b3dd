package tracing

import (
    "context"
    "io"
    "os"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

const tracerName = "go-erosion"

var enabled atomic.Bool

// Setup configures a global tracer provider writing spans to stdout when
// enable=true. It returns a shutdown function which should be deferred.
func Setup(enable bool) (func(context.Context) error, error) {
    return SetupWriter(enable, os.Stdout)
}

// SetupWriter is Setup with an explicit destination for exported spans.
func SetupWriter(enable bool, w io.Writer) (func(context.Context) error, error) {
    enabled.Store(enable)
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
    if err != nil {
        enabled.Store(false)
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return func(ctx context.Context) error {
        enabled.Store(false)
        return tp.Shutdown(ctx)
    }, nil
}

// Enabled reports whether spans are being recorded.
func Enabled() bool { return enabled.Load() }

// StartSpan starts a span if tracing is enabled. The returned function ends
// the span, attaching any extra attributes known only at the end (for
// example a probe outcome).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(...attribute.KeyValue)) {
    if !enabled.Load() {
        return ctx, func(...attribute.KeyValue) {}
    }
    ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
    return ctx, func(end ...attribute.KeyValue) {
        if len(end) > 0 { span.SetAttributes(end...) }
        span.End()
    }
}
