package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProcessedDB is the pgx surface ProcessedStore needs; *pgxpool.Pool
// satisfies it.
type ProcessedDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore remembers which envelopes each consumer has acted on, so an
// outbox redelivery does not repeat a side effect such as an email.
type ProcessedStore struct {
	db ProcessedDB
}

func NewProcessedStore(db ProcessedDB) *ProcessedStore {
	if db == nil {
		panic("events: processed store requires a database")
	}
	return &ProcessedStore{db: db}
}

func processedKey(consumer, eventID string) (string, string, error) {
	consumer, eventID = strings.TrimSpace(consumer), strings.TrimSpace(eventID)
	if consumer == "" || eventID == "" {
		return "", "", fmt.Errorf("events: consumer and event id are required")
	}
	return consumer, eventID, nil
}

// AlreadyProcessed reports whether consumer recorded eventID.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	consumer, eventID, err := processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	var seen bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2)`,
		consumer, eventID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return seen, nil
}

// MarkProcessed records eventID for consumer. It reports false when another
// delivery got there first.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	consumer, eventID, err := processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	ct, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id) VALUES ($1, $2) ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
