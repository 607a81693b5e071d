package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	analyticsmem "github.com/telemedik/paygate/internal/analytics/memory"
	idemmem "github.com/telemedik/paygate/internal/idempotency/memory"
	"github.com/telemedik/paygate/internal/payments/app"
	"github.com/telemedik/paygate/internal/payments/domain"
	"github.com/telemedik/paygate/internal/payments/ports"
	cachemem "github.com/telemedik/paygate/internal/resultcache/memory"
)

type gatewayStub struct {
	verifyFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)
}

func (g *gatewayStub) Verify(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return g.verifyFunc(ctx, payload)
}

type testEnv struct {
	server  *httptest.Server
	claims  *idemmem.Store
	sink    *analyticsmem.Sink
	gateway *gatewayStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		claims: idemmem.NewStore(),
		sink:   analyticsmem.NewSink(),
		gateway: &gatewayStub{
			verifyFunc: func(context.Context, map[string]any) (map[string]any, error) {
				return map[string]any{"status": "confirmed"}, nil
			},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewService(
		app.Config{
			Gateway: "bitpay",
			Signature: domain.SignatureConfig{
				Secret:          "test-secret",
				SignatureHeader: "X-Signature",
				TimestampHeader: "X-Timestamp",
				MaxSkew:         5 * time.Minute,
			},
			CacheTTL: time.Hour,
		},
		env.claims,
		cachemem.NewCache(),
		env.sink,
		env.gateway,
		logger,
		nil,
	)

	mux := http.NewServeMux()
	NewHandler(service, logger).Register(mux)
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	return env
}

func (env *testEnv) postWebhook(t *testing.T, body []byte, signed bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/telemedicine/pay/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write(body)
		mac.Write([]byte("|"))
		mac.Write([]byte(ts))
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
		req.Header.Set("X-Timestamp", ts)
	}

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	return resp
}

func (env *testEnv) postVerify(t *testing.T, body []byte) *http.Response {
	t.Helper()

	resp, err := env.server.Client().Post(
		env.server.URL+"/telemedicine/pay/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post verify: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestWebhookEndpoint(t *testing.T) {
	confirmedBody := []byte(`{"id":"evt_7","data":{"status":"confirmed","created_at":"2026-02-01T10:00:00Z","success_at":"2026-02-01T10:05:00Z","amount":"100.00","currency":"EUR"}}`)

	t.Run("accepts a signed confirmed delivery", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.postWebhook(t, confirmedBody, true)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if body := decodeBody(t, resp); body["status"] != "ok" {
			t.Errorf("body = %+v", body)
		}

		events := env.sink.Named("pay_success")
		if len(events) != 1 {
			t.Fatalf("pay_success events = %d, want 1", len(events))
		}
		if got := events[0].Props["tat_ms"]; got != int64(300000) {
			t.Errorf("tat_ms = %v, want 300000", got)
		}
	})

	t.Run("rejects an unsigned delivery", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.postWebhook(t, confirmedBody, false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := decodeBody(t, resp); body["code"] != "bad_signature" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("acknowledges a replayed delivery without reprocessing", func(t *testing.T) {
		env := newTestEnv(t)

		first := env.postWebhook(t, confirmedBody, true)
		first.Body.Close()
		second := env.postWebhook(t, confirmedBody, true)
		if second.StatusCode != http.StatusOK {
			t.Fatalf("replay status = %d, want %d", second.StatusCode, http.StatusOK)
		}
		if body := decodeBody(t, second); body["status"] != "ok" {
			t.Errorf("replay body = %+v", body)
		}

		if got := len(env.sink.Named("pay_success")); got != 1 {
			t.Errorf("pay_success events = %d, want exactly 1", got)
		}
		if got := len(env.sink.Named("pay_webhook_duplicate")); got != 1 {
			t.Errorf("pay_webhook_duplicate events = %d, want 1", got)
		}
	})

	t.Run("rejects non-POST methods", func(t *testing.T) {
		env := newTestEnv(t)

		resp, err := env.server.Client().Get(env.server.URL + "/telemedicine/pay/webhook")
		if err != nil {
			t.Fatalf("get webhook: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
		}
	})
}

func TestVerifyEndpoint(t *testing.T) {
	verifyBody := []byte(`{"transaction_id":"txn_42"}`)

	t.Run("wraps the gateway response", func(t *testing.T) {
		env := newTestEnv(t)
		env.gateway.verifyFunc = func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"status": "paid", "amount": "15.50"}, nil
		}

		resp := env.postVerify(t, verifyBody)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		body := decodeBody(t, resp)
		if body["status"] != "ok" {
			t.Errorf("status field = %v", body["status"])
		}
		data, ok := body["data"].(map[string]any)
		if !ok || data["amount"] != "15.50" {
			t.Errorf("data = %+v", body["data"])
		}
	})

	t.Run("maps a gateway failure to 502 and frees the claim", func(t *testing.T) {
		env := newTestEnv(t)
		env.gateway.verifyFunc = func(context.Context, map[string]any) (map[string]any, error) {
			return nil, &ports.StatusError{Code: http.StatusInternalServerError, Body: "upstream exploded"}
		}

		resp := env.postVerify(t, verifyBody)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
		}
		if body := decodeBody(t, resp); body["code"] != "gateway_unavailable" {
			t.Errorf("body = %+v", body)
		}

		events := env.sink.Named("ext_error")
		if len(events) != 1 {
			t.Fatalf("ext_error events = %d, want 1", len(events))
		}
		if got := events[0].Props["code"]; got != 500 {
			t.Errorf("ext_error code = %v, want 500", got)
		}
		if env.claims.Claimed("verify:bitpay:txn_42") {
			t.Error("claim must be released after a gateway failure")
		}
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.postVerify(t, []byte("{{"))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		if body := decodeBody(t, resp); body["code"] != "bad_payload" {
			t.Errorf("body = %+v", body)
		}
	})
}
