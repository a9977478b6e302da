package api

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"stockledger/m/domain"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	line = strings.TrimSuffix(line, "\n")
	_, err := s.buf.WriteString("# " + line + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// writeExportCSV renders the export rows followed by the per-product summary.
func writeExportCSV(w io.Writer, export domain.Export, summary []domain.ProductSummary, loc *time.Location) error {
	s := newCSVStreamer(w)
	if err := s.writeComment(fmt.Sprintf("Sales export %s", export.Month)); err != nil {
		return err
	}
	if err := s.writeComment(fmt.Sprintf("Generated %s (%s)", export.GeneratedAt.In(loc).Format(time.RFC3339), loc)); err != nil {
		return err
	}
	if err := s.writeRow([]string{"Date", "Time", "Code", "Name", "Sold", "Before", "After", "Note"}); err != nil {
		return err
	}
	for _, row := range export.Rows {
		if err := s.writeRow([]string{
			row.Date,
			row.Time,
			row.ProductCode,
			row.ProductName,
			strconv.FormatInt(row.QuantitySold, 10),
			strconv.FormatInt(row.QuantityBefore, 10),
			strconv.FormatInt(row.QuantityAfter, 10),
			row.Note,
		}); err != nil {
			return err
		}
	}

	if err := s.writeRow([]string{"", "", "", "", "", "", "", ""}); err != nil {
		return err
	}
	if err := s.writeRow([]string{"Summary", "", "Code", "Name", "Total Sold", "Transactions", "", ""}); err != nil {
		return err
	}
	for _, p := range summary {
		if err := s.writeRow([]string{
			"", "",
			p.Code,
			p.Name,
			strconv.FormatInt(p.TotalSold, 10),
			strconv.FormatInt(p.TransactionCount, 10),
			"", "",
		}); err != nil {
			return err
		}
	}
	return s.Flush()
}
