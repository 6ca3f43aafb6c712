package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/medstore/internal/auth"
	"github.com/joao-fontenele/medstore/internal/inventory"
	"github.com/joao-fontenele/medstore/internal/orders"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), userID)
	h.respond(w, c, err, "failed to load cart", userID)
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in ItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.Add(r.Context(), userID, in)
	h.respond(w, c, err, "failed to add cart item", userID)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.Update(r.Context(), userID, r.PathValue("productId"), req.Quantity)
	h.respond(w, c, err, "failed to update cart item", userID)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	c, err := h.service.Remove(r.Context(), userID, r.PathValue("productId"))
	h.respond(w, c, err, "failed to remove cart item", userID)
}

type syncRequest struct {
	Items []ItemInput `json:"items"`
}

func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.Sync(r.Context(), userID, req.Items)
	h.respond(w, c, err, "failed to sync cart", userID)
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Checkout(r.Context(), userID, in)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		orders.WriteError(w, h.logger, err, "failed to check out", "user_id", userID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return p.UserID, true
}

func (h *Handler) respond(w http.ResponseWriter, c *Cart, err error, msg, userID string) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, c)
	case errors.Is(err, ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrItemNotInCart), errors.Is(err, inventory.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(msg, "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
