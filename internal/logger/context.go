package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds session-scoped logging context for one client
// connection as it moves through negotiation, collection exchange, and
// the scan/compare dialogue (spec §6.1).
type LogContext struct {
	TraceID    string // OpenTelemetry trace ID
	SpanID     string // OpenTelemetry span ID
	Collection string // Collection name currently being synced
	Opcode     string // Current scan/compare opcode (ADD, REMOVE, UPDATE, ...)
	ClientIP   string // Peer IP address (without port)
	Decision   string // ACL decision for this connection (allowed, denied, limited)

	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a connection from clientIP.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		Collection: lc.Collection,
		Opcode:     lc.Opcode,
		ClientIP:   lc.ClientIP,
		Decision:   lc.Decision,
		StartTime:  lc.StartTime,
	}
}

// WithCollection returns a copy with the collection name set.
func (lc *LogContext) WithCollection(name string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Collection = name
	}
	return clone
}

// WithOpcode returns a copy with the current opcode set.
func (lc *LogContext) WithOpcode(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Opcode = op
	}
	return clone
}

// WithDecision returns a copy with the ACL decision set.
func (lc *LogContext) WithDecision(decision string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Decision = decision
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
