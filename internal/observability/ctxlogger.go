package observability

import (
    "context"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    "go.opentelemetry.io/otel/trace"
)

type ctxKey int

const pipelineVersionKey ctxKey = iota

// WithPipelineVersion stamps ctx with the pipeline_version that should be
// attached to every log line emitted downstream, so a collector/worker run
// doesn't need to repeat .Str("pipeline_version", ...) at each call site.
func WithPipelineVersion(ctx context.Context, pipelineVersion string) context.Context {
    return context.WithValue(ctx, pipelineVersionKey, pipelineVersion)
}

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id
// from the context, if an OpenTelemetry span is active, and with
// pipeline_version, if one was stamped via WithPipelineVersion.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
    l := log.Logger
    if ctx == nil {
        return &l
    }
    if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
        l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
        if sc.HasSpanID() {
            l = l.With().Str("span_id", sc.SpanID().String()).Logger()
        }
        if sc.IsSampled() {
            l = l.With().Bool("trace_sampled", true).Logger()
        }
    }
    if pv, ok := ctx.Value(pipelineVersionKey).(string); ok && pv != "" {
        l = l.With().Str("pipeline_version", pv).Logger()
    }
    return &l
}

