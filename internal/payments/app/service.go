package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/telemedik/paygate/internal/payments/domain"
	"github.com/telemedik/paygate/internal/payments/metrics"
	"github.com/telemedik/paygate/internal/payments/ports"
	"github.com/telemedik/paygate/internal/telemetry"
)

// Canonical response bodies. Duplicates must replay byte-identical
// responses, so these are fixed literals rather than marshaled structs.
var (
	bodyOK                 = []byte(`{"status":"ok"}`)
	bodyBadSignature       = []byte(`{"status":"error","code":"bad_signature"}`)
	bodyBadPayload         = []byte(`{"status":"error","code":"bad_payload"}`)
	bodyGatewayUnavailable = []byte(`{"status":"error","code":"gateway_unavailable"}`)
)

// Result is a fully rendered HTTP outcome: the status code and the exact
// JSON bytes to write.
type Result struct {
	Status int
	Body   []byte
}

// Config carries the service-level knobs out of the environment config.
type Config struct {
	Gateway   string
	Signature domain.SignatureConfig
	CacheTTL  time.Duration
}

// Service implements the webhook and verify use cases: authenticate,
// deduplicate, act once, and replay prior outcomes for retries.
type Service struct {
	cfg     Config
	claims  ports.ClaimStore
	cache   ports.ResultCache
	sink    ports.EventSink
	gateway ports.GatewayClient
	logger  *slog.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// NewService wires required dependencies.
func NewService(
	cfg Config,
	claims ports.ClaimStore,
	cache ports.ResultCache,
	sink ports.EventSink,
	gateway ports.GatewayClient,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:     cfg,
		claims:  claims,
		cache:   cache,
		sink:    sink,
		gateway: gateway,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook processes one gateway webhook delivery. The returned error
// is infrastructural only (claim store unavailable); every business outcome,
// including rejections and duplicates, is a Result.
func (s *Service) HandleWebhook(ctx context.Context, header http.Header, body []byte) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "payments.webhook")
	defer span.End()

	ok, reason := domain.VerifySignature(s.cfg.Signature, header, body, s.now())
	if !ok {
		s.emit(ctx, "pay_webhook_bad_sig", map[string]any{"reason": reason})
		s.recordWebhook(ctx, "bad_signature")
		telemetry.AddSpanAttributes(span, attribute.String("reject.reason", reason))
		return Result{Status: http.StatusBadRequest, Body: bodyBadSignature}, nil
	}

	payload, ok := parseBody(body)
	if !ok {
		s.emit(ctx, "pay_webhook_bad_sig", map[string]any{"reason": domain.ReasonBadPayload})
		s.recordWebhook(ctx, "bad_payload")
		return Result{Status: http.StatusBadRequest, Body: bodyBadPayload}, nil
	}

	key := domain.ClaimKey(domain.PrefixWebhook, s.cfg.Gateway, domain.EventID(payload), body)
	telemetry.AddSpanAttributes(span, attribute.String("idempotency.key", key))

	acquired, cached, err := s.acquire(ctx, key, "webhook")
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return Result{}, err
	}
	if !acquired {
		s.recordWebhook(ctx, "duplicate")
		return duplicateResult(cached), nil
	}

	s.cacheResult(ctx, key, bodyOK)
	s.emitSuccess(ctx, payload, "webhook")
	s.recordWebhook(ctx, "ok")
	telemetry.SetSpanSuccess(span)

	return Result{Status: http.StatusOK, Body: bodyOK}, nil
}

// HandleVerify processes a client-initiated payment verification. The claim
// is released when the gateway call fails, so the client may retry.
func (s *Service) HandleVerify(ctx context.Context, body []byte) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "payments.verify")
	defer span.End()

	payload, ok := parseBody(body)
	if !ok {
		s.recordVerify(ctx, "bad_payload")
		return Result{Status: http.StatusBadRequest, Body: bodyBadPayload}, nil
	}

	key := domain.ClaimKey(domain.PrefixVerify, s.cfg.Gateway, domain.TransactionID(payload), body)
	telemetry.AddSpanAttributes(span, attribute.String("idempotency.key", key))

	acquired, cached, err := s.acquire(ctx, key, "verify")
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return Result{}, err
	}
	if !acquired {
		s.recordVerify(ctx, "duplicate")
		return duplicateResult(cached), nil
	}

	started := s.now()
	response, err := s.gateway.Verify(ctx, payload)
	if s.metrics != nil {
		s.metrics.RecordGatewayCall(ctx, s.now().Sub(started).Seconds(), err == nil)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "gateway verify failed",
			slog.String("gateway", s.cfg.Gateway),
			slog.String("error", err.Error()))
		s.emit(ctx, "ext_error", map[string]any{
			"service": s.cfg.Gateway,
			"op":      "verify",
			"code":    errorCode(err),
			"msg":     err.Error(),
		})
		if relErr := s.claims.Release(ctx, key); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release claim",
				slog.String("key", key),
				slog.String("error", relErr.Error()))
		}
		s.recordVerify(ctx, "gateway_error")
		telemetry.RecordSpanError(span, err)
		return Result{Status: http.StatusBadGateway, Body: bodyGatewayUnavailable}, nil
	}

	successBody, err := json.Marshal(verifyResponse{Status: "ok", Data: response})
	if err != nil {
		return Result{}, fmt.Errorf("marshal verify response: %w", err)
	}

	s.cacheResult(ctx, key, successBody)
	s.emitSuccess(ctx, response, "verify")
	s.recordVerify(ctx, "ok")
	telemetry.SetSpanSuccess(span)

	return Result{Status: http.StatusOK, Body: successBody}, nil
}

type verifyResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// acquire claims the key, and on a duplicate fetches any replayable
// response. A cache failure on the duplicate path degrades to the generic
// acknowledgment rather than an error.
func (s *Service) acquire(ctx context.Context, key, scope string) (bool, []byte, error) {
	created, err := s.claims.Acquire(ctx, key)
	if err != nil {
		return false, nil, fmt.Errorf("acquire claim %s: %w", key, err)
	}
	if created {
		return true, nil, nil
	}

	s.emit(ctx, "pay_webhook_duplicate", map[string]any{"key": key, "scope": scope})

	cached, err := s.cache.Get(ctx, domain.CacheKey(key))
	if err != nil {
		s.logger.WarnContext(ctx, "result cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return false, nil, nil
	}
	return false, cached, nil
}

func (s *Service) cacheResult(ctx context.Context, key string, body []byte) {
	if err := s.cache.Set(ctx, domain.CacheKey(key), body, s.cfg.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "result cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// emit records a business event, swallowing sink failures so analytics can
// never abort a payment request.
func (s *Service) emit(ctx context.Context, name string, props map[string]any) {
	if err := s.sink.Emit(ctx, name, props); err != nil {
		s.logger.ErrorContext(ctx, "analytics event failed",
			slog.String("event", name),
			slog.String("error", err.Error()))
	}
}

func (s *Service) emitSuccess(ctx context.Context, payload map[string]any, source string) {
	props, ok := domain.DeriveSuccess(payload, s.cfg.Gateway, source, s.now())
	if !ok {
		return
	}
	s.emit(ctx, "pay_success", props)
}

func (s *Service) recordWebhook(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhook(ctx, outcome)
	}
}

func (s *Service) recordVerify(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordVerify(ctx, outcome)
	}
}

// errorCode extracts the value recorded as "code" on ext_error events:
// the HTTP status for gateway rejections, "timeout" for everything else.
func errorCode(err error) any {
	var statusErr *ports.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return "timeout"
}

// duplicateResult replays the recorded response bytes, or acknowledges
// generically when the cache entry has expired.
func duplicateResult(cached []byte) Result {
	if len(cached) == 0 {
		return Result{Status: http.StatusOK, Body: bodyOK}
	}
	return Result{Status: http.StatusOK, Body: cached}
}

// parseBody decodes the request body as a JSON object. An empty body is
// treated as an empty object.
func parseBody(body []byte) (map[string]any, bool) {
	if len(body) == 0 {
		return map[string]any{}, true
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, true
}
