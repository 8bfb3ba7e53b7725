package logging

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

type contextKey int

const traceIDKey contextKey = iota

// FieldTraceID is the log field carrying the per-invocation trace id.
const FieldTraceID = "trace_id"

// NewID returns a new ULID string. Used for trace ids and run ids.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ContextWithTraceID stores traceID on ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace id stored on ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// GetOrGenerateTraceID returns the trace id on ctx or a fresh one.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return NewID()
}

// FromContext returns the logger attached to ctx, tagged with its trace id.
// Falls back to a disabled logger when none is attached.
func FromContext(ctx context.Context) zerolog.Logger {
	l := *zerolog.Ctx(ctx)
	if id := TraceIDFromContext(ctx); id != "" {
		l = l.With().Str(FieldTraceID, id).Logger()
	}
	return l
}
