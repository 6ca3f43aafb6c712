package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medstore/internal/domain"
)

type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:      q.Get("search"),
		CategoryID:  q.Get("category"),
		InStockOnly: q.Get("inStock") == "true",
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")

	product, err := h.repo.Get(r.Context(), productID)
	if err != nil {
		h.handleError(w, err, "failed to get product", "product_id", productID)
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

type productRequest struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	StockQuantity        int             `json:"stockQuantity"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	Image                *string         `json:"image"`
	CategoryID           *string         `json:"categoryId"`
}

func (req productRequest) validate() string {
	switch {
	case req.Name == "":
		return "name is required"
	case req.Price.IsNegative():
		return "price must not be negative"
	case req.StockQuantity < 0:
		return "stockQuantity must not be negative"
	case req.StockQuantity > math.MaxInt32:
		return "stockQuantity is too large"
	}
	return ""
}

func (req productRequest) apply(p *domain.Product) {
	p.Name = req.Name
	p.Description = req.Description
	p.Price = req.Price
	p.StockQuantity = req.StockQuantity
	p.RequiresPrescription = req.RequiresPrescription
	p.Image = req.Image
	p.CategoryID = nil
	if req.CategoryID != nil && *req.CategoryID != "" {
		p.CategoryID = req.CategoryID
	}
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	product := &domain.Product{ID: uuid.NewString()}
	req.apply(product)

	if err := h.repo.Create(r.Context(), product); err != nil {
		h.handleError(w, err, "failed to create product")
		return
	}

	h.logger.Info("product created", "product_id", product.ID)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	product := &domain.Product{ID: productID}
	req.apply(product)

	if err := h.repo.Update(r.Context(), product); err != nil {
		h.handleError(w, err, "failed to update product", "product_id", productID)
		return
	}

	h.logger.Info("product updated", "product_id", productID, "stock_quantity", product.StockQuantity)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")

	if err := h.repo.Delete(r.Context(), productID); err != nil {
		h.handleError(w, err, "failed to delete product", "product_id", productID)
		return
	}

	h.logger.Info("product deleted", "product_id", productID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	case errors.Is(err, ErrCategoryNotFound):
		h.writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	h.logger.Error(msg, append(args, "error", err)...)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
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
