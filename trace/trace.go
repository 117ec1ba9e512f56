// Package trace carries the correlation ID shared by every physical attempt
// of one logical outbound request.
package trace

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// requestIDKey is the context key for correlation ID values
	requestIDKey contextKey = "request_id"
	// HeaderXRequestID is the standard header name for request correlation
	HeaderXRequestID = "X-Request-ID"
	// HeaderIdempotencyKey is the header upstream servers use to deduplicate retried writes
	HeaderIdempotencyKey = "Idempotency-Key"

	requestIDTimeLayout = "20060102150405"
)

// now is swapped in tests
var now = time.Now

// NewRequestID generates a correlation ID of the form "<timestamp>-<16 hex chars>".
// The random part comes from a version 4 UUID.
func NewRequestID() string {
	id := uuid.New()
	return now().UTC().Format(requestIDTimeLayout) + "-" + hex.EncodeToString(id[:8])
}

// WithRequestID adds a correlation ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns a correlation ID from context if present
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns an existing correlation ID from context or generates a new one
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return NewRequestID()
}
