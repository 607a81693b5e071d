package ports

import "context"

// EventSink records business events for downstream analytics. The sink is
// write-only and best-effort: callers swallow its failures so observability
// never aborts a payment request.
type EventSink interface {
	Emit(ctx context.Context, name string, props map[string]any) error
}
