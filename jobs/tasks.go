// Package jobs hosts the asynq worker and the background task handlers that
// consume domain events emitted by the settlement and reconciliation engines.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/reconciliation"
)

// Queue names used by the event publisher and the worker.
const (
	QueueDefault = "default"
)

// Task types. Domain events are enqueued under their event name, so the
// worker routes on the same constants the publishers use.
const (
	TaskJournalCreate       = events.JournalCreate
	TaskReconciliationSweep = "reconciliation:sweep"
	TaskSettlementCreated   = events.SettlementCreated
	TaskSettlementPaid      = events.SettlementPaid
	TaskLoanCreated         = events.LoanCreated
	TaskSettlementsBulkDone = events.SettlementsBulkDone
	TaskReconciliationDone  = events.ReconciliationCompleted
)

// JournalEntry is one materialized accounting journal row.
type JournalEntry struct {
	ID           string
	TemplateCode string
	ReferenceID  string
	Amount       float64
	Payload      []byte
	CreatedAt    time.Time
}

// Store is the persistence surface the task handlers depend on.
type Store interface {
	InsertJournalEntry(ctx context.Context, entry JournalEntry) error
	PendingConsignments(ctx context.Context, limit int) ([]string, error)
}

// Repository provides PostgreSQL backed persistence for the task handlers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertJournalEntry writes one journal_entries row.
func (r *Repository) InsertJournalEntry(ctx context.Context, entry JournalEntry) error {
	const query = `
		INSERT INTO journal_entries (entry_id, template_code, reference_id, amount, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	if _, err := r.pool.Exec(ctx, query,
		entry.ID, entry.TemplateCode, entry.ReferenceID, entry.Amount, entry.Payload, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// PendingConsignments lists consignments with complete three-way records but
// no reconciliation verdict yet, oldest first.
func (r *Repository) PendingConsignments(ctx context.Context, limit int) ([]string, error) {
	const query = `
		SELECT dc.consignment_id
		FROM delivery_consignments dc
		JOIN depot_loading_records d ON d.consignment_id = dc.consignment_id
		JOIN transporter_delivery_records t ON t.consignment_id = dc.consignment_id
		JOIN station_receiving_records s ON s.consignment_id = dc.consignment_id
		LEFT JOIN reconciliation_results r ON r.consignment_id = dc.consignment_id
		WHERE r.reconciliation_id IS NULL
		ORDER BY dc.created_at
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending consignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan consignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// JournalJob materializes accounting journal requests into journal_entries.
type JournalJob struct {
	store  Store
	logger *slog.Logger
}

// NewJournalJob constructs the journal task handler.
func NewJournalJob(store Store, logger *slog.Logger) *JournalJob {
	return &JournalJob{store: store, logger: logger}
}

type journalPayload struct {
	TemplateCode string  `json:"template_code"`
	SettlementID string  `json:"settlement_id,omitempty"`
	LoanID       string  `json:"loan_id,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	GrossMargin  float64 `json:"gross_margin,omitempty"`
	NetPayable   float64 `json:"net_payable,omitempty"`
}

// Handle writes one journal entry per task. The raw payload is kept alongside
// the extracted columns for audit.
func (j *JournalJob) Handle(ctx context.Context, task *asynq.Task) error {
	var p journalPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("jobs: decode journal payload: %w", err)
	}
	referenceID := p.SettlementID
	if referenceID == "" {
		referenceID = p.LoanID
	}
	amount := p.Amount
	if amount == 0 {
		amount = p.NetPayable
	}

	if err := j.store.InsertJournalEntry(ctx, JournalEntry{
		ID:           uuid.NewString(),
		TemplateCode: p.TemplateCode,
		ReferenceID:  referenceID,
		Amount:       amount,
		Payload:      task.Payload(),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	j.logger.Info("journal entry recorded",
		slog.String("template_code", p.TemplateCode),
		slog.String("reference_id", referenceID))
	return nil
}

// Reconciler is the reconciliation surface the sweep job drives.
type Reconciler interface {
	PerformAutomatedReconciliation(ctx context.Context, consignmentID string) (reconciliation.AutoReconcileOutcome, error)
}

// SweepBatchSize caps how many consignments one sweep run processes.
const SweepBatchSize = 200

// SweepJob runs the nightly automated reconciliation pass over consignments
// that have complete three-way records but no verdict yet.
type SweepJob struct {
	store   Store
	service Reconciler
	logger  *slog.Logger
}

// NewSweepJob constructs the sweep task handler.
func NewSweepJob(store Store, service Reconciler, logger *slog.Logger) *SweepJob {
	return &SweepJob{store: store, service: service, logger: logger}
}

// NewSweepTask builds the task enqueued by the cron schedule.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReconciliationSweep, nil)
}

// Handle reconciles every eligible consignment. A failure on one consignment
// is logged and the sweep continues.
func (j *SweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	ids, err := j.store.PendingConsignments(ctx, SweepBatchSize)
	if err != nil {
		return fmt.Errorf("jobs: %w", err)
	}

	swept, failed := 0, 0
	for _, id := range ids {
		outcome, err := j.service.PerformAutomatedReconciliation(ctx, id)
		if err != nil {
			failed++
			j.logger.Warn("sweep reconciliation failed",
				slog.String("consignment_id", id), slog.Any("error", err))
			continue
		}
		swept++
		if !outcome.CanAutoReconcile {
			j.logger.Info("consignment held for manual review",
				slog.String("consignment_id", id), slog.String("reason", outcome.Reason))
		}
	}
	j.logger.Info("reconciliation sweep complete",
		slog.Int("swept", swept), slog.Int("failed", failed))
	return nil
}

// NotifyJob logs event fan-out for the notification-class events. It stands
// in for the downstream notifier integrations (SMS, email) which consume the
// same tasks.
type NotifyJob struct {
	logger *slog.Logger
}

// NewNotifyJob constructs the notification task handler.
func NewNotifyJob(logger *slog.Logger) *NotifyJob {
	return &NotifyJob{logger: logger}
}

// Handle records receipt of a domain event.
func (j *NotifyJob) Handle(_ context.Context, task *asynq.Task) error {
	j.logger.Info("domain event received",
		slog.String("event", task.Type()),
		slog.Int("payload_bytes", len(task.Payload())))
	return nil
}
