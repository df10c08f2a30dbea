package webhook_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"petzi-tickets/internal/logger"
	tickets "petzi-tickets/internal/tickets/service"
	"petzi-tickets/internal/webhook/signature"
)

// WebhookIngester is the slice of the ticket service the handler drives.
type WebhookIngester interface {
	IngestWebhook(ctx context.Context, payload map[string]interface{}, signatureTimestamp string) (tickets.IngestResult, error)
}

type Handler struct {
	Service WebhookIngester
	Secret  string
	Logger  *logger.Logger
}

func NewHandler(service WebhookIngester, secret string, log *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Secret:  secret,
		Logger:  log,
	}
}

// HandlePetziWebhook receives one provider delivery. The caller only ever
// sees coarse plain-text statuses; everything interesting goes to the log.
func (h *Handler) HandlePetziWebhook(w http.ResponseWriter, r *http.Request) {
	// 1) Method
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	// 2) Signature header must be present before anything else happens;
	// no store access without it.
	signatureHeader := r.Header.Get("Petzi-Signature")
	if signatureHeader == "" {
		h.logSecurity("MISSING_SIGNATURE", "delivery without Petzi-Signature header")
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}

	// 3) The raw body bytes are what the provider signed.
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	// 4) HMAC verification against the raw bytes.
	verified, err := signature.Verify(h.Secret, signatureHeader, rawBody)
	if err != nil {
		if errors.Is(err, signature.ErrInvalidSignature) {
			h.logSecurity("INVALID_SIGNATURE", "HMAC mismatch on delivery")
		} else {
			h.logSecurity("MALFORMED_SIGNATURE", err.Error())
		}
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	// 5) JSON parsing of the verified body.
	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// 6) Ingestion: normalize, store, aggregate.
	result, err := h.Service.IngestWebhook(r.Context(), payload, verified.Timestamp)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("ingestion failed: %v", err))
		}
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if h.Logger != nil {
		h.Logger.LogWebhook("INGESTED", fmt.Sprintf("ticket %s (%s)", result.TicketID, result.Ticket.EventType))
	}

	// 7) Quick answer so the provider does not retry.
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) logSecurity(event, message string) {
	if h.Logger != nil {
		h.Logger.LogSecurity(event, message)
	}
}
