// Package trace provides request ID generation and context propagation so
// a single conversation turn can be correlated across the orchestrator,
// the completion provider, and the audit log.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// requestKey is the unexported context key used to store the request ID.
type requestKey struct{}

// GenerateID generates a unique request ID.
func GenerateID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID if random fails (should never happen)
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "r_" + hex.EncodeToString(bytes)
}

// WithRequestID returns a child context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestKey{}).(string); ok {
		return v
	}
	return ""
}
