package ledger

import (
	"context"
	"fmt"

	"stockledger/m/domain"
)

// Audit walks the ledger chronologically and reports facts whose quantities do not add up,
// plus per-product gaps where a sale's before-quantity differs from the previous sale's
// after-quantity. A gap means stock changed outside a sale: a manual edit, or a decrement
// whose ledger append failed. Audit never modifies anything.
func (s *Service) Audit(ctx context.Context) (domain.AuditReport, error) {
	report := domain.AuditReport{
		ScannedAt:       s.clock.Now().UTC(),
		Violations:      []domain.AuditViolation{},
		Discontinuities: []domain.AuditDiscontinuity{},
	}
	last := make(map[string]domain.Sale)

	err := s.sales.Scan(ctx, Query{}, func(sale domain.Sale) error {
		report.Facts++
		if reason := checkFact(sale); reason != "" {
			report.Violations = append(report.Violations, domain.AuditViolation{
				SaleID: sale.ID,
				Code:   sale.ProductCode,
				Reason: reason,
			})
		}
		if prev, ok := last[sale.ProductCode]; ok && prev.QuantityAfter != sale.QuantityBefore {
			report.Discontinuities = append(report.Discontinuities, domain.AuditDiscontinuity{
				Code:       sale.ProductCode,
				PrevSaleID: prev.ID,
				SaleID:     sale.ID,
				PrevAfter:  prev.QuantityAfter,
				Before:     sale.QuantityBefore,
				Delta:      sale.QuantityBefore - prev.QuantityAfter,
				SoldAt:     sale.SoldAt,
			})
		}
		last[sale.ProductCode] = sale
		return nil
	})
	if err != nil {
		return domain.AuditReport{}, err
	}
	report.Products = int64(len(last))
	return report, nil
}

func checkFact(sale domain.Sale) string {
	switch {
	case sale.QuantitySold < 1:
		return fmt.Sprintf("quantity sold %d is below 1", sale.QuantitySold)
	case sale.QuantityAfter < 0:
		return fmt.Sprintf("quantity after %d is negative", sale.QuantityAfter)
	case sale.QuantityAfter != sale.QuantityBefore-sale.QuantitySold:
		return fmt.Sprintf("quantity after %d != before %d - sold %d", sale.QuantityAfter, sale.QuantityBefore, sale.QuantitySold)
	}
	return ""
}
