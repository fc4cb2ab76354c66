package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/messaging"
)

type Handler struct {
	repo     *Repository
	service  *Service
	producer *messaging.Producer
	logger   *slog.Logger
}

func NewHandler(repo *Repository, service *Service, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		service:  service,
		producer: producer,
		logger:   logger,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		CustomerEmail: r.URL.Query().Get("customer_email"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ToOrderStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = status
	}

	orders, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next, err := domain.ToOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order status")
		return
	}

	order, cancelled, err := h.service.UpdateStatus(r.Context(), id, next)
	if err != nil {
		var invalid domain.ErrInvalidTransition
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.As(err, &invalid):
			h.writeError(w, http.StatusBadRequest, invalid.Error())
		default:
			h.logger.Error("failed to update order status", "error", err, "id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if cancelled != nil && h.producer != nil {
		if err := h.producer.Publish(r.Context(), cancelled.OrderID.String(), cancelled); err != nil {
			h.logger.Error("failed to publish order cancelled event", "error", err, "order_id", cancelled.OrderID)
		}
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	order, err := h.service.DeleteItem(r.Context(), orderID, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			h.writeError(w, http.StatusNotFound, "order item not found")
			return
		}
		h.logger.Error("failed to delete order item", "error", err, "order_id", orderID, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleSellerSales is the seller ledger: the caller's sold line items
// across all orders.
func (h *Handler) HandleSellerSales(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(r.PathValue("sellerId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	items, err := h.repo.ListSellerItems(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("failed to list seller sales", "error", err, "seller_id", sellerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleDeleteSeller(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(r.PathValue("sellerId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	if err := h.service.DeleteSeller(r.Context(), sellerID); err != nil {
		switch {
		case errors.Is(err, ErrSellerNotFound):
			h.writeError(w, http.StatusNotFound, "seller not found")
		case errors.Is(err, ErrSellerHasCompletedOrders):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to delete seller", "error", err, "seller_id", sellerID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
