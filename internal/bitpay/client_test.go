package bitpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/telemedik/paygate/internal/payments/ports"
)

func TestClientVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes a JSON response and posts the payload", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected application/json, got %s", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"confirmed","amount":50}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second)
		response, err := client.Verify(ctx, map[string]any{"transaction_id": "txn-1"})
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}

		if received["transaction_id"] != "txn-1" {
			t.Errorf("expected payload to be posted, got %v", received)
		}
		if response["status"] != "confirmed" {
			t.Errorf("expected decoded status, got %v", response["status"])
		}
	})

	t.Run("wraps a non-JSON success body as raw text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("OK"))
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second)
		response, err := client.Verify(ctx, map[string]any{})
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}

		if response["raw"] != "OK" {
			t.Errorf(`expected {"raw":"OK"}, got %v`, response)
		}
	})

	t.Run("returns a StatusError for non-2xx responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second)
		_, err := client.Verify(ctx, map[string]any{})
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		var statusErr *ports.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %T: %v", err, err)
		}
		if statusErr.Code != http.StatusInternalServerError {
			t.Errorf("expected code 500, got %d", statusErr.Code)
		}
	})

	t.Run("times out slow gateways with a non-status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 20*time.Millisecond)
		_, err := client.Verify(ctx, map[string]any{})
		if err == nil {
			t.Fatal("expected timeout error, got nil")
		}

		var statusErr *ports.StatusError
		if errors.As(err, &statusErr) {
			t.Errorf("expected a transport error, got StatusError %d", statusErr.Code)
		}
	})
}
