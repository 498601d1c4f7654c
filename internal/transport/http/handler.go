package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fable/internal/model"
	"fable/internal/service"
)

// maxWebhookBody bounds how much of a webhook delivery we read before
// computing the signature.
const maxWebhookBody = 1 << 20

type Handler struct {
	ledger  service.Ledger
	quests  service.QuestTracker
	webhook service.WebhookProcessor
}

func NewHandler(ledger service.Ledger, quests service.QuestTracker, webhook service.WebhookProcessor) *Handler {
	return &Handler{ledger: ledger, quests: quests, webhook: webhook}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /redeem", h.Redeem)
	mux.HandleFunc("POST /quests/event", h.QuestEvent)
	mux.HandleFunc("POST /webhooks/billing", h.BillingWebhook)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Redeem charges the account for a shop item. The account key comes from the
// body, or from the X-Account-ID header for callers that sign requests
// without a body template.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req model.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AccountID == "" {
		req.AccountID = r.Header.Get("X-Account-ID")
	}
	if req.AccountID == "" || req.ItemID == "" {
		h.respondError(w, http.StatusBadRequest, "account_id and item_id are required")
		return
	}

	rec, err := h.ledger.Redeem(r.Context(), req.AccountID, req.ItemID)
	if err != nil {
		if service.ClientError(err) {
			h.respondJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": err.Error(),
			})
			return
		}
		slog.Error("http: redemption failed",
			"account_id", req.AccountID,
			"item_id", req.ItemID,
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "item redeemed",
		"transaction": rec,
	})
}

// QuestEvent applies one student event to quest progress.
func (h *Handler) QuestEvent(w http.ResponseWriter, r *http.Request) {
	var req model.QuestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if !model.KnownEventType(req.EventType) {
		h.respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	// value is optional; an absent field decodes to 0, so only negatives
	// can be rejected here.
	if req.Value < 0 {
		h.respondError(w, http.StatusBadRequest, "value must not be negative")
		return
	}

	res, err := h.quests.ApplyEvent(r.Context(), req.AccountID, req.EventType)
	if err != nil {
		slog.Error("http: quest event failed",
			"account_id", req.AccountID,
			"event_type", req.EventType,
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// BillingWebhook verifies and applies one billing-provider delivery. The body
// must reach the verifier unparsed, so it is read raw here.
func (h *Handler) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = h.webhook.HandleWebhook(r.Context(), rawBody, r.Header.Get("X-Fable-Signature"))
	switch {
	case err == nil:
		// Acknowledge even when no local subscription matched, so the
		// provider stops redelivering.
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, service.ErrUnauthenticated):
		h.respondError(w, http.StatusUnauthorized, "missing signature")
	case errors.Is(err, service.ErrBadSignature):
		h.respondError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, service.ErrMalformedPayload):
		h.respondError(w, http.StatusBadRequest, "malformed payload")
	default:
		slog.Error("http: webhook processing failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
