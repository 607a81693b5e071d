package bitpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telemedik/paygate/internal/payments/ports"
)

// Client calls the gateway's verify endpoint. The underlying http.Client
// reuses connections and is safe for concurrent use; it is created once and
// shared for the process lifetime.
type Client struct {
	verifyURL  string
	httpClient *http.Client
}

func NewClient(verifyURL string, timeout time.Duration) *Client {
	return &Client{
		verifyURL: verifyURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Verify posts the payload to the verify endpoint. Non-2xx statuses become
// a *ports.StatusError; a successful response that is not a JSON object is
// wrapped as {"raw": <body text>} since the gateway does not guarantee JSON
// on every successful status.
func (c *Client) Verify(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal verify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post verify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ports.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{"raw": string(raw)}, nil
	}

	return decoded, nil
}
