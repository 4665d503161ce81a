package beds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresInventory implements Inventory on top of the beds, patients,
// bed_occupancy_history and ward_staff tables.
type PostgresInventory struct {
	db DB
}

// NewPostgresInventory creates a Postgres-backed inventory.
func NewPostgresInventory(db DB) *PostgresInventory {
	return &PostgresInventory{db: db}
}

const bedColumns = `id, ward, bed_type, room, status, equipment, isolation_capable, private_room, daily_rate_cents, version, last_change, held_by`

func (p *PostgresInventory) ListBeds(ctx context.Context, ward string) ([]Bed, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+bedColumns+`
		FROM beds
		WHERE ($1 = '' OR lower(ward) = lower($1))
		ORDER BY id`, ward)
	if err != nil {
		return nil, fmt.Errorf("beds: list beds: %w", err)
	}
	defer rows.Close()
	return scanBeds(rows)
}

func (p *PostgresInventory) VacantBeds(ctx context.Context, ward string) ([]Bed, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+bedColumns+`
		FROM beds
		WHERE status = 'vacant' AND ($1 = '' OR lower(ward) = lower($1))
		ORDER BY id`, ward)
	if err != nil {
		return nil, fmt.Errorf("beds: vacant beds: %w", err)
	}
	defer rows.Close()
	return scanBeds(rows)
}

func (p *PostgresInventory) GetBed(ctx context.Context, id string) (Bed, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+bedColumns+`
		FROM beds
		WHERE id = $1`, id)
	if err != nil {
		return Bed{}, fmt.Errorf("beds: get bed: %w", err)
	}
	defer rows.Close()
	list, err := scanBeds(rows)
	if err != nil {
		return Bed{}, err
	}
	if len(list) == 0 {
		return Bed{}, ErrBedNotFound
	}
	return list[0], nil
}

// CompareAndSwapStatus moves a bed between statuses in a single conditional
// UPDATE; zero affected rows means another writer got there first.
func (p *PostgresInventory) CompareAndSwapStatus(ctx context.Context, bedID string, expected, next Status) (bool, error) {
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("beds: swap %s %s->%s: %w", bedID, expected, next, ErrInvalidTransition)
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE beds SET status = $3, held_by = '', version = version + 1, last_change = $4
		WHERE id = $1 AND status = $2`, bedID, string(expected), string(next), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("beds: swap status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndSwapHeld swaps and tags the bed in one statement. The second
// EXISTS reads the pre-update snapshot, so it only matches when an earlier
// attempt by the same holder already applied.
func (p *PostgresInventory) CompareAndSwapHeld(ctx context.Context, bedID string, expected, next Status, holder string) (bool, error) {
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("beds: swap %s %s->%s: %w", bedID, expected, next, ErrInvalidTransition)
	}
	if strings.TrimSpace(holder) == "" {
		return false, ErrMissingHolder
	}
	var applied bool
	err := p.db.QueryRow(ctx, `
		WITH swapped AS (
			UPDATE beds SET status = $3, held_by = $4, version = version + 1, last_change = $5
			WHERE id = $1 AND status = $2 AND ($2 <> 'reserved' OR held_by = $4)
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM swapped)
			OR EXISTS (SELECT 1 FROM beds WHERE id = $1 AND status = $3 AND held_by = $4)`,
		bedID, string(expected), string(next), holder, time.Now().UTC(),
	).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("beds: swap held status: %w", err)
	}
	return applied, nil
}

func (p *PostgresInventory) UpsertPatient(ctx context.Context, pt Patient) (string, error) {
	if strings.TrimSpace(pt.PatientID) == "" {
		return "", ErrMissingPatientID
	}
	if pt.Status == "" {
		pt.Status = PatientPending
	}
	var bedID *string
	if pt.BedID != "" {
		bedID = &pt.BedID
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO patients (id, name, age, gender, condition, severity, preferred_ward, required_equipment,
			required_specialty, isolation_required, requested_at, status, bed_id, admitted_at, discharged_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, age = EXCLUDED.age, gender = EXCLUDED.gender,
			condition = EXCLUDED.condition, severity = EXCLUDED.severity,
			preferred_ward = EXCLUDED.preferred_ward, required_equipment = EXCLUDED.required_equipment,
			required_specialty = EXCLUDED.required_specialty, isolation_required = EXCLUDED.isolation_required,
			status = EXCLUDED.status, bed_id = EXCLUDED.bed_id, admitted_at = EXCLUDED.admitted_at,
			discharged_at = EXCLUDED.discharged_at, updated_at = EXCLUDED.updated_at`,
		pt.PatientID, pt.Name, pt.Age, pt.Gender, pt.Condition, string(pt.Severity), pt.PreferredWard,
		pt.RequiredEquipment, pt.RequiredSpecialty, pt.IsolationRequired, pt.RequestedAt,
		string(pt.Status), bedID, pt.AdmittedAt, pt.DischargedAt, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("beds: upsert patient: %w", err)
	}
	return pt.PatientID, nil
}

func (p *PostgresInventory) GetPatient(ctx context.Context, id string) (Patient, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, name, age, gender, condition, severity, preferred_ward, required_equipment,
			required_specialty, isolation_required, requested_at, status, bed_id, admitted_at, discharged_at, updated_at
		FROM patients
		WHERE id = $1`, id)

	var pt Patient
	var severity, status string
	var bedID *string
	err := row.Scan(
		&pt.PatientID, &pt.Name, &pt.Age, &pt.Gender, &pt.Condition, &severity, &pt.PreferredWard,
		&pt.RequiredEquipment, &pt.RequiredSpecialty, &pt.IsolationRequired, &pt.RequestedAt,
		&status, &bedID, &pt.AdmittedAt, &pt.DischargedAt, &pt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return Patient{}, fmt.Errorf("beds: get patient: %w", err)
	}
	pt.Severity = Severity(severity)
	pt.Status = PatientStatus(status)
	if bedID != nil {
		pt.BedID = *bedID
	}
	return pt, nil
}

func (p *PostgresInventory) AppendOccupancyHistory(ctx context.Context, entry HistoryEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO bed_occupancy_history (bed_id, patient_id, status, reason, actor, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.BedID, entry.PatientID, string(entry.Status), entry.Reason, entry.Actor, entry.At,
	)
	if err != nil {
		return fmt.Errorf("beds: append history: %w", err)
	}
	return nil
}

func (p *PostgresInventory) Roster(ctx context.Context) (Roster, error) {
	rows, err := p.db.Query(ctx, `
		SELECT ward, specialty
		FROM ward_staff
		WHERE on_duty
		ORDER BY ward, specialty`)
	if err != nil {
		return nil, fmt.Errorf("beds: roster: %w", err)
	}
	defer rows.Close()

	roster := make(Roster)
	for rows.Next() {
		var ward, specialty string
		if err := rows.Scan(&ward, &specialty); err != nil {
			return nil, fmt.Errorf("beds: scan roster: %w", err)
		}
		roster[ward] = append(roster[ward], specialty)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("beds: roster rows: %w", err)
	}
	return roster, nil
}

func scanBeds(rows pgx.Rows) ([]Bed, error) {
	var result []Bed
	for rows.Next() {
		var b Bed
		var status string
		err := rows.Scan(
			&b.ID, &b.Ward, &b.Type, &b.Room, &status, &b.Equipment,
			&b.IsolationCapable, &b.Private, &b.DailyRateCents, &b.Version, &b.LastChange, &b.HeldBy,
		)
		if err != nil {
			return nil, fmt.Errorf("beds: scan bed: %w", err)
		}
		b.Status = Status(status)
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("beds: bed rows: %w", err)
	}
	return result, nil
}
