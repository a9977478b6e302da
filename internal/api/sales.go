package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"stockledger/m/domain"
	"stockledger/m/internal/ledger"
)

type saleRequest struct {
	Code   string `json:"code" validate:"required,max=64"`
	Amount int64  `json:"amount" validate:"gte=1"`
	Note   string `json:"note" validate:"max=500"`
}

type saleResponse struct {
	Sale    domain.Sale     `json:"sale"`
	Product *domain.Product `json:"product,omitempty"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	sale, err := h.ledger.RecordSale(r.Context(), domain.SaleRequest{Code: req.Code, Amount: req.Amount, Note: req.Note})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := saleResponse{Sale: sale}
	// The product may already have been edited or removed again.
	if product, err := h.stock.Lookup(r.Context(), sale.ProductCode); err == nil {
		resp.Product = &product
	} else {
		h.logger.Warn("reload product after sale", slog.String("code", sale.ProductCode), slog.Any("error", err))
	}
	respondJSON(w, http.StatusCreated, resp)
}

// salesReport serves the list, monthly and monthly-detail views of the ledger.
func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	switch mode := strings.TrimSpace(q.Get("mode")); mode {
	case "", "list":
		filter := domain.SaleFilter{Code: q.Get("code")}
		if raw := strings.TrimSpace(q.Get("month")); raw != "" {
			month, err := domain.ParseMonth(raw)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			filter.Month = &month
		}
		sales, err := h.ledger.ListSales(r.Context(), filter, limit)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sales)

	case "monthly":
		totals, err := h.ledger.MonthlyTotals(r.Context(), limit)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, totals)

	case "monthly-detail":
		month, err := h.monthParam(q.Get("month"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		rows, err := h.ledger.MonthlyProductBreakdown(r.Context(), month)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, rows)

	default:
		h.respondError(w, r, domain.Invalidf("unknown mode %q", mode))
	}
}

type exportResponse struct {
	domain.Export
	Summary []domain.ProductSummary `json:"summary"`
}

func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var window *domain.Month
	if raw := strings.TrimSpace(q.Get("month")); !strings.EqualFold(raw, "all") {
		month, err := h.monthParam(raw)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		window = &month
	}

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format != "" && format != "json" && format != "csv" {
		h.respondError(w, r, domain.Invalidf("format must be json or csv"))
		return
	}

	export, err := h.ledger.ExportWindow(r.Context(), window)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	summary := ledger.ExportSummary(export.Rows)

	if format != "csv" {
		respondJSON(w, http.StatusOK, exportResponse{Export: export, Summary: summary})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="sales-%s.csv"`, export.Month))
	w.WriteHeader(http.StatusOK)
	if err := writeExportCSV(w, export, summary, h.ledger.Location()); err != nil {
		h.logger.Warn("write csv export", slog.String("month", export.Month), slog.Any("error", err))
	}
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Audit(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// monthParam parses YYYY-MM, defaulting to the current month in the ledger time zone.
func (h *Handler) monthParam(raw string) (domain.Month, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.MonthOf(h.opts.Clock.Now(), h.ledger.Location()), nil
	}
	return domain.ParseMonth(raw)
}
