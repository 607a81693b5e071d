package ports

import (
	"context"
	"fmt"
)

// GatewayClient calls the payment provider's verify endpoint. A 2xx response
// yields the decoded JSON body, or {"raw": <text>} when the body is not JSON.
type GatewayClient interface {
	Verify(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// StatusError reports a non-2xx response from the gateway. Errors that are
// not a StatusError (timeouts, connection failures) are tagged "timeout" in
// the emitted ext_error event.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.Code)
}
