// Package seed imports an initial product catalog from CSV.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"stockledger/m/domain"
)

// Creator is the part of the stock store the loader needs.
type Creator interface {
	Create(ctx context.Context, input domain.NewProduct) (domain.Product, error)
}

// Result counts what a load did.
type Result struct {
	Created int
	Skipped int
	Invalid int
}

// LoadProducts reads code,name,quantity[,location] rows from csvPath, skipping the header,
// existing codes and malformed rows. Storage failures abort the load.
func LoadProducts(ctx context.Context, store Creator, csvPath string, logger *slog.Logger) (Result, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return Result{}, fmt.Errorf("seed: open %s: %w", csvPath, err)
	}
	defer file.Close()

	res, err := Load(ctx, store, file, logger)
	if err != nil {
		return res, err
	}
	logger.Info("seeded product catalog",
		slog.String("path", csvPath),
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped),
		slog.Int("invalid", res.Invalid))
	return res, nil
}

// Load is LoadProducts over any reader.
func Load(ctx context.Context, store Creator, r io.Reader, logger *slog.Logger) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("seed: read header: %w", err)
	}

	var res Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("seed: unreadable row", slog.Any("error", err))
			res.Invalid++
			continue
		}
		input, err := parseRecord(record)
		if err != nil {
			logger.Warn("seed: invalid row", slog.Any("row", record), slog.Any("error", err))
			res.Invalid++
			continue
		}

		_, err = store.Create(ctx, input)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, domain.ErrDuplicateCode):
			res.Skipped++
		case errors.Is(err, domain.ErrInvalidInput):
			logger.Warn("seed: rejected row", slog.String("code", input.Code), slog.Any("error", err))
			res.Invalid++
		default:
			return res, fmt.Errorf("seed: create %s: %w", input.Code, err)
		}
	}
	return res, nil
}

func parseRecord(record []string) (domain.NewProduct, error) {
	if len(record) < 3 {
		return domain.NewProduct{}, fmt.Errorf("expected at least 3 columns, got %d", len(record))
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
	if err != nil {
		return domain.NewProduct{}, fmt.Errorf("quantity %q: %w", record[2], err)
	}
	input := domain.NewProduct{
		Code:     strings.TrimSpace(record[0]),
		Name:     strings.TrimSpace(record[1]),
		Quantity: qty,
	}
	if len(record) > 3 {
		input.Location = strings.TrimSpace(record[3])
	}
	return input, nil
}
