package payments

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/gateway"
	"github.com/MarcelReig/mitaller/internal/messaging"
)

// Webhook payloads are small JSON documents; anything bigger is not a
// legitimate delivery.
const maxWebhookBody = 64 << 10

type Handler struct {
	service    *Service
	reconciler *Reconciler
	repo       *Repository
	gateway    gateway.Gateway
	producer   *messaging.Producer
	logger     *slog.Logger
}

func NewHandler(service *Service, reconciler *Reconciler, repo *Repository, gw gateway.Gateway, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		reconciler: reconciler,
		repo:       repo,
		gateway:    gw,
		producer:   producer,
		logger:     logger,
	}
}

type createSessionRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyPaid),
			errors.Is(err, ErrNoItems),
			errors.Is(err, ErrMixedSellers),
			errors.Is(err, ErrSellerNotReady):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrGateway):
			h.writeError(w, http.StatusBadGateway, "payment provider unavailable, please retry")
		default:
			h.logger.Error("failed to create checkout session", "error", err, "order_id", orderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, session)
}

// HandleWebhook receives gateway deliveries. Signature failures are the
// only rejection; everything verified is acknowledged with 200 even when
// it reconciles to a no-op, so the provider does not retry forever.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.writeError(w, http.StatusBadRequest, "missing signature")
		return
	}

	event, err := h.gateway.ParseEvent(payload, signature)
	if err != nil {
		h.logger.Warn("rejected webhook delivery", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	succeeded, err := h.reconciler.Apply(r.Context(), event)
	if err != nil {
		// Let the provider redeliver; the reconciler is idempotent.
		h.logger.Error("failed to apply gateway event", "error", err, "type", event.Type)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if succeeded != nil && h.producer != nil {
		if err := h.producer.Publish(r.Context(), succeeded.OrderID.String(), succeeded); err != nil {
			h.logger.Error("failed to publish payment succeeded event",
				"error", err, "order_id", succeeded.OrderID)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	payment, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get payment", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if payment == nil {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

// HandleListSellerPayments is the seller's payout history.
func (h *Handler) HandleListSellerPayments(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(r.PathValue("sellerId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	payments, err := h.repo.ListBySeller(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("failed to list seller payments", "error", err, "seller_id", sellerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
