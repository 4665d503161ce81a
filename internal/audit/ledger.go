package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
)

// LedgerEntry is one finished assignment workflow.
type LedgerEntry struct {
	WorkflowID    string    `json:"workflow_id"`
	PatientID     string    `json:"patient_id"`
	BedID         string    `json:"bed_id,omitempty"`
	State         string    `json:"state"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	Reason        string    `json:"reason"`
	RetryCount    int       `json:"retry_count"`
	AttemptedBeds []string  `json:"attempted_beds"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Ledger records workflow outcomes in Postgres. Rows are insert-only.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger on db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordOutcome inserts the terminal snapshot of wf. Recording the same
// workflow twice is a no-op.
func (l *Ledger) RecordOutcome(ctx context.Context, wf workflow.Workflow) error {
	if !wf.State.Terminal() {
		return fmt.Errorf("audit: workflow %s is not finished", wf.ID)
	}
	kind := ""
	if wf.Failure != nil {
		kind = string(wf.Failure.Kind)
	}
	attempted := make([]string, 0, len(wf.Attempts))
	for _, a := range wf.Attempts {
		attempted = append(attempted, a.BedID)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO assignment_ledger (workflow_id, patient_id, bed_id, state, failure_kind, reason,
		    retry_count, attempted_beds, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workflow_id) DO NOTHING`,
		wf.ID, wf.PatientID, wf.BedID, string(wf.State), kind, wf.Reason,
		wf.RetryCount, pq.Array(attempted), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("audit: record outcome: %w", err)
	}
	return nil
}

// Recent returns the latest outcomes, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT workflow_id, patient_id, bed_id, state, failure_kind, reason, retry_count,
		       attempted_beds, started_at, finished_at
		FROM assignment_ledger
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list outcomes: %w", err)
	}
	defer rows.Close()

	out := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.WorkflowID, &e.PatientID, &e.BedID, &e.State, &e.FailureKind, &e.Reason,
			&e.RetryCount, pq.Array(&e.AttemptedBeds), &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("audit: scan outcome: %w", err)
		}
		if e.AttemptedBeds == nil {
			e.AttemptedBeds = []string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
