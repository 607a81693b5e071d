package ports

import (
	"context"
	"time"
)

// ResultCache replays the exact response bytes previously returned for an
// idempotency key. It is ephemeral: a miss on the duplicate path degrades
// to a generic acknowledgment, never an error for the caller.
type ResultCache interface {
	// Get returns the cached response body, or nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the response body under the key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
