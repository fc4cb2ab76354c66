package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/messaging"
)

type Handler struct {
	service  *Service
	producer *messaging.Producer
	logger   *slog.Logger
}

func NewHandler(service *Service, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		producer: producer,
		logger:   logger,
	}
}

type createOrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type createOrderRequest struct {
	CustomerEmail      string            `json:"customer_email"`
	CustomerName       string            `json:"customer_name"`
	CustomerPhone      string            `json:"customer_phone"`
	ShippingAddress    string            `json:"shipping_address"`
	ShippingCity       string            `json:"shipping_city"`
	ShippingPostalCode string            `json:"shipping_postal_code"`
	ShippingCountry    string            `json:"shipping_country"`
	Items              []createOrderItem `json:"items"`
	Notes              string            `json:"notes"`
}

// HandleCreate is the public checkout endpoint. Buyers are guests, so there
// is no authentication; every input is re-validated server side.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	in := PlaceOrderInput{
		CustomerEmail:      req.CustomerEmail,
		CustomerName:       req.CustomerName,
		CustomerPhone:      req.CustomerPhone,
		ShippingAddress:    req.ShippingAddress,
		ShippingCity:       req.ShippingCity,
		ShippingPostalCode: req.ShippingPostalCode,
		ShippingCountry:    req.ShippingCountry,
		Notes:              req.Notes,
	}
	for _, item := range req.Items {
		in.Lines = append(in.Lines, CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.service.PlaceOrder(r.Context(), in)
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			h.writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}

		h.logger.Error("failed to place order", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not complete order"})
		return
	}

	if h.producer != nil {
		event := domain.OrderPlacedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.CustomerEmail,
			TotalAmount:   order.TotalAmount.StringFixed(2),
			ItemCount:     len(order.Items),
			Timestamp:     time.Now().UTC(),
		}
		if err := h.producer.Publish(r.Context(), order.ID.String(), event); err != nil {
			h.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"total", order.TotalAmount.StringFixed(2),
		"items", len(order.Items),
	)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
