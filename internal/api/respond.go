package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"stockledger/m/domain"
)

// problem is an RFC 7807 body extended with a machine-readable kind.
type problem struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Kind      string `json:"kind"`
	Available *int64 `json:"available,omitempty"`
	SaleID    string `json:"sale_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// respondError maps domain errors to problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *domain.InsufficientStockError
		partial      *domain.PartialSaleError
	)
	switch {
	case errors.As(err, &partial):
		// Already logged with full context by the ledger.
		respondProblem(w, problem{
			Status: http.StatusInternalServerError,
			Title:  "Partial Sale",
			Kind:   "partial_sale",
			Detail: "stock was decremented but the sale could not be recorded",
			SaleID: partial.SaleID,
		})
	case errors.As(err, &insufficient):
		available := insufficient.Available
		respondProblem(w, problem{
			Status:    http.StatusUnprocessableEntity,
			Title:     "Insufficient Stock",
			Kind:      "insufficient_stock",
			Detail:    err.Error(),
			Available: &available,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		respondProblem(w, problem{Status: http.StatusBadRequest, Title: "Validation Failed", Kind: "invalid_input", Detail: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		respondProblem(w, problem{Status: http.StatusNotFound, Title: "Not Found", Kind: "not_found", Detail: err.Error()})
	case errors.Is(err, domain.ErrDuplicateCode):
		respondProblem(w, problem{Status: http.StatusConflict, Title: "Duplicate", Kind: "duplicate_code", Detail: err.Error()})
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.logger.Error("storage unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		respondProblem(w, problem{Status: http.StatusServiceUnavailable, Title: "Storage Unavailable", Kind: "storage_unavailable"})
	default:
		h.logger.Error("unhandled error", slog.String("path", r.URL.Path), slog.Any("error", err))
		respondProblem(w, problem{Status: http.StatusInternalServerError, Title: "Internal Error", Kind: "internal"})
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeValid decodes and validates a request body, answering 400 itself on failure.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		respondProblem(w, problem{Status: http.StatusBadRequest, Title: "Malformed Body", Kind: "invalid_input", Detail: err.Error()})
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		respondProblem(w, problem{Status: http.StatusBadRequest, Title: "Validation Failed", Kind: "invalid_input", Detail: describeValidation(err)})
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
