package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/telemedik/paygate/internal/payments/app"
)

// maxBodyBytes caps webhook and verify request bodies. Gateway payloads are
// small JSON documents; anything past this is abuse.
const maxBodyBytes = 1 << 20

// Handler exposes the payment webhook and verify endpoints.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register binds the payment handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/telemedicine/pay/webhook", h.handleWebhook)
	mux.HandleFunc("/telemedicine/pay/verify", h.handleVerify)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), r.Header, body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook processing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeResult(w, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.service.HandleVerify(r.Context(), body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "verify processing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeResult(w, result)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// writeResult flushes a pre-rendered service outcome. The body bytes are
// written verbatim so duplicate deliveries replay identical responses.
func writeResult(w http.ResponseWriter, result app.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
