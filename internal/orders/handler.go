package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/medstore/internal/auth"
	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/inventory"
)

type Handler struct {
	service *Service
	policy  Policy
	logger  *slog.Logger
}

func NewHandler(service *Service, policy Policy, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		policy:  policy,
		logger:  logger,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.UserID = caller.UserID

	order, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.handleError(w, err, "failed to create order", "user_id", caller.UserID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "failed to get order", "order_id", id)
		return
	}

	if !h.policy.CanView(caller, order) {
		// same answer as a missing order so ids cannot be enumerated
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !h.policy.CanUpdateStatus(caller) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.handleError(w, err, "failed to update order status", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !h.policy.CanListAll(caller) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	orders, err := h.service.List(r.Context())
	if err != nil {
		h.handleError(w, err, "failed to list orders")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.service.ListByUser(r.Context(), caller.UserID)
	if err != nil {
		h.handleError(w, err, "failed to list orders", "user_id", caller.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// handleError maps workflow failures to responses. Business rejections carry
// their message; anything else is logged and hidden.
func (h *Handler) handleError(w http.ResponseWriter, err error, msg string, args ...any) {
	WriteError(w, h.logger, err, msg, args...)
}

// WriteError is shared with handlers that drive the workflow engine.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, args ...any) {
	var stockErr *inventory.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, logger, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"productId": stockErr.ProductID,
			"available": stockErr.Available,
		})
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound):
		writeJSON(w, logger, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, logger, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, logger, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		logger.Error(msg, append(args, "error", err)...)
		writeJSON(w, logger, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, h.logger, status, data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
