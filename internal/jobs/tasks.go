// Package jobs runs ledger maintenance on an asynq worker.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/m/domain"
	"stockledger/m/internal/logging"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerAudit scans the ledger for inconsistent facts.
	TaskLedgerAudit = "ledger:audit"
	// TaskReportWarmup rebuilds cached reports.
	TaskReportWarmup = "reports:warmup"
)

// Auditor runs a full ledger audit.
type Auditor interface {
	Audit(ctx context.Context) (domain.AuditReport, error)
}

// Warmer precomputes cached reports.
type Warmer interface {
	Warm(ctx context.Context) error
}

// AuditPayload tunes an audit run.
type AuditPayload struct {
	// MaxLogged caps how many findings are logged individually.
	MaxLogged int `json:"max_logged"`
}

// NewAuditTask constructs an audit task.
func NewAuditTask(payload AuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerAudit, data), nil
}

// NewWarmupTask constructs a report warmup task.
func NewWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportWarmup, nil)
}

// AuditJob logs ledger violations and discontinuities.
type AuditJob struct {
	Auditor Auditor
	Logger  *slog.Logger
}

// Handle processes TaskLedgerAudit tasks. Findings are logged, never repaired.
func (j *AuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Auditor == nil {
		return errors.New("ledger audit: handler not configured")
	}
	payload := AuditPayload{MaxLogged: 50}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	logger := orDiscard(j.Logger).With(slog.String("task", TaskLedgerAudit))
	started := time.Now()
	report, err := j.Auditor.Audit(ctx)
	if err != nil {
		logger.Error("ledger audit", slog.Any("error", err))
		return err
	}

	logged := 0
	for _, v := range report.Violations {
		if logged >= payload.MaxLogged {
			break
		}
		logger.Warn("ledger violation", slog.String("sale_id", v.SaleID), slog.String("code", v.Code), slog.String("reason", v.Reason))
		logged++
	}
	for _, d := range report.Discontinuities {
		if logged >= payload.MaxLogged {
			break
		}
		logger.Warn("ledger discontinuity",
			slog.String("code", d.Code),
			slog.String("prev_sale_id", d.PrevSaleID),
			slog.String("sale_id", d.SaleID),
			slog.Int64("delta", d.Delta))
		logged++
	}

	logger.Info("completed ledger audit",
		slog.Int64("facts", report.Facts),
		slog.Int64("products", report.Products),
		slog.Int("violations", len(report.Violations)),
		slog.Int("discontinuities", len(report.Discontinuities)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// WarmupJob refreshes cached reports for the current ledger generation.
type WarmupJob struct {
	Warmer Warmer
	Logger *slog.Logger
}

// Handle processes TaskReportWarmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("report warmup: handler not configured")
	}
	logger := orDiscard(j.Logger).With(slog.String("task", TaskReportWarmup))
	started := time.Now()
	if err := j.Warmer.Warm(ctx); err != nil {
		logger.Error("report warmup", slog.Any("error", err))
		return err
	}
	logger.Info("completed report warmup", slog.Duration("duration", time.Since(started)))
	return nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}
