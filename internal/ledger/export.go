package ledger

import (
	"context"
	"sort"

	"stockledger/m/domain"
)

const (
	exportDateLayout = "2006-01-02"
	exportTimeLayout = "15:04:05"
)

// ExportWindow projects the facts of one month, or of all time when month is nil, into flat
// rows newest first. No aggregation happens here.
func (s *Service) ExportWindow(ctx context.Context, month *domain.Month) (domain.Export, error) {
	export := domain.Export{Month: "all", GeneratedAt: s.clock.Now().UTC(), Rows: []domain.ExportRow{}}
	q := Query{NewestFirst: true}
	if month != nil {
		export.Month = month.String()
		q.From, q.To = month.Window(s.loc)
	}

	err := s.sales.Scan(ctx, q, func(sale domain.Sale) error {
		local := sale.SoldAt.In(s.loc)
		export.Rows = append(export.Rows, domain.ExportRow{
			Date:           local.Format(exportDateLayout),
			Time:           local.Format(exportTimeLayout),
			ProductCode:    sale.ProductCode,
			ProductName:    sale.ProductName,
			QuantitySold:   sale.QuantitySold,
			QuantityBefore: sale.QuantityBefore,
			QuantityAfter:  sale.QuantityAfter,
			Note:           sale.Note,
		})
		return nil
	})
	if err != nil {
		return domain.Export{}, err
	}
	export.Count = len(export.Rows)
	return export, nil
}

// ExportSummary totals export rows per product, best sellers first. The first name seen
// in row order is kept.
func ExportSummary(rows []domain.ExportRow) []domain.ProductSummary {
	index := make(map[string]int)
	out := []domain.ProductSummary{}
	for _, row := range rows {
		i, ok := index[row.ProductCode]
		if !ok {
			i = len(out)
			index[row.ProductCode] = i
			out = append(out, domain.ProductSummary{Code: row.ProductCode, Name: row.ProductName})
		}
		out[i].TotalSold += row.QuantitySold
		out[i].TransactionCount++
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalSold != out[j].TotalSold {
			return out[i].TotalSold > out[j].TotalSold
		}
		return out[i].Code < out[j].Code
	})
	return out
}
