package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stockledger/m/domain"
)

type createProductRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Location string `json:"location" validate:"max=200"`
}

type updateProductRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Quantity *int64  `json:"quantity" validate:"omitempty,gte=0"`
	Location *string `json:"location" validate:"omitempty,max=200"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := domain.ProductFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	products, err := h.stock.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.stock.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	product, err := h.stock.Create(r.Context(), domain.NewProduct{
		Code:     req.Code,
		Name:     req.Name,
		Quantity: req.Quantity,
		Location: req.Location,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	product, err := h.stock.Update(r.Context(), chi.URLParam(r, "code"), domain.ProductUpdate{
		Name:     req.Name,
		Quantity: req.Quantity,
		Location: req.Location,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.stock.Remove(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// parseLimit reads an optional positive limit query parameter; zero means the default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondProblem(w, problem{Status: http.StatusBadRequest, Title: "Validation Failed", Kind: "invalid_input", Detail: "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}
