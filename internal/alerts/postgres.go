package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists alerts in the capacity_alerts table. A partial
// unique index on (alert_type, department) WHERE resolved_at IS NULL keeps at
// most one active alert per key.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Postgres-backed alert store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `id, alert_type, priority, title, message, department, action_required, details,
	created_at, updated_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by`

func (s *PostgresStore) Active(ctx context.Context) ([]Alert, error) {
	return s.List(ctx, ListFilter{})
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM capacity_alerts
		WHERE ($1 OR resolved_at IS NULL)
		  AND ($2 = '' OR lower(department) = lower($2))
		ORDER BY created_at DESC, id
		LIMIT $3`, filter.IncludeResolved, filter.Department, limit)
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM capacity_alerts
		WHERE id = $1`, id)
	if err != nil {
		return Alert{}, fmt.Errorf("alerts: get: %w", err)
	}
	defer rows.Close()
	list, err := scanAlerts(rows)
	if err != nil {
		return Alert{}, err
	}
	if len(list) == 0 {
		return Alert{}, ErrAlertNotFound
	}
	return list[0], nil
}

func (s *PostgresStore) Insert(ctx context.Context, a Alert) error {
	details, err := encodeDetails(a.Details)
	if err != nil {
		return fmt.Errorf("alerts: encode details: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO capacity_alerts (id, alert_type, priority, title, message, department, action_required, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, string(a.Type), string(a.Priority), a.Title, a.Message, a.Department, a.ActionRequired,
		details, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("alerts: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Refresh(ctx context.Context, id, message string, details Details, at time.Time) error {
	raw, err := encodeDetails(details)
	if err != nil {
		return fmt.Errorf("alerts: encode details: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE capacity_alerts SET message = $2, details = $3, updated_at = $4
		WHERE id = $1 AND resolved_at IS NULL`, id, message, raw, at)
	if err != nil {
		return fmt.Errorf("alerts: refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id, by string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE capacity_alerts SET resolved_at = $3, resolved_by = $2, updated_at = $3
		WHERE id = $1 AND resolved_at IS NULL`, id, by, at)
	if err != nil {
		return false, fmt.Errorf("alerts: resolve: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE capacity_alerts SET acknowledged_at = $3, acknowledged_by = $2, updated_at = $3
		WHERE id = $1 AND resolved_at IS NULL AND acknowledged_at IS NULL`, id, by, at)
	if err != nil {
		return false, fmt.Errorf("alerts: acknowledge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAlerts(rows pgx.Rows) ([]Alert, error) {
	var result []Alert
	for rows.Next() {
		var a Alert
		var alertType, priority string
		var details []byte
		var ackBy, resolvedBy *string
		err := rows.Scan(
			&a.ID, &alertType, &priority, &a.Title, &a.Message, &a.Department, &a.ActionRequired, &details,
			&a.CreatedAt, &a.UpdatedAt, &a.AcknowledgedAt, &ackBy, &a.ResolvedAt, &resolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("alerts: scan: %w", err)
		}
		a.Type = Type(alertType)
		a.Priority = Priority(priority)
		if ackBy != nil {
			a.AcknowledgedBy = *ackBy
		}
		if resolvedBy != nil {
			a.ResolvedBy = *resolvedBy
		}
		if a.Details, err = decodeDetails(a.Type, details); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alerts: rows: %w", err)
	}
	return result, nil
}
