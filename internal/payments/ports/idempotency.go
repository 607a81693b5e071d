package ports

import "context"

// ClaimStore registers idempotency keys so at-least-once webhook deliveries
// collapse to exactly-once processing.
type ClaimStore interface {
	// Acquire attempts to claim the key. It returns true when this caller
	// performed the insert and owns the delivery, false when the key was
	// already claimed. A duplicate is an expected outcome, not an error;
	// any returned error is infrastructural.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release deletes the claim so a legitimate retry can re-acquire it.
	// Used only when the downstream action could not complete.
	Release(ctx context.Context, key string) error
}
