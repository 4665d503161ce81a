package beds

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryInventory is an in-process Inventory used for development and tests.
// A single mutex serializes status swaps so only one of several concurrent
// swaps from the same expected status can win.
type MemoryInventory struct {
	mu       sync.Mutex
	beds     map[string]Bed
	patients map[string]Patient
	history  []HistoryEntry
	roster   Roster
	now      func() time.Time
}

// NewMemoryInventory seeds an inventory with the given beds and roster.
func NewMemoryInventory(seed []Bed, roster Roster) *MemoryInventory {
	inv := &MemoryInventory{
		beds:     make(map[string]Bed, len(seed)),
		patients: make(map[string]Patient),
		roster:   copyRoster(roster),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, b := range seed {
		inv.putLocked(b)
	}
	return inv
}

// WithClock overrides the clock used to stamp status changes.
func (m *MemoryInventory) WithClock(now func() time.Time) *MemoryInventory {
	if now != nil {
		m.mu.Lock()
		m.now = now
		m.mu.Unlock()
	}
	return m
}

// PutBed inserts or replaces a bed.
func (m *MemoryInventory) PutBed(b Bed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(b)
}

func (m *MemoryInventory) putLocked(b Bed) {
	if b.Status == "" {
		b.Status = StatusVacant
	}
	if b.LastChange.IsZero() {
		b.LastChange = m.now()
	}
	b.Equipment = append([]string(nil), b.Equipment...)
	m.beds[b.ID] = b
}

// SetRoster replaces the on-duty roster.
func (m *MemoryInventory) SetRoster(r Roster) {
	m.mu.Lock()
	m.roster = copyRoster(r)
	m.mu.Unlock()
}

func (m *MemoryInventory) ListBeds(ctx context.Context, ward string) ([]Bed, error) {
	return m.filter(ctx, ward, func(Bed) bool { return true })
}

func (m *MemoryInventory) VacantBeds(ctx context.Context, ward string) ([]Bed, error) {
	return m.filter(ctx, ward, func(b Bed) bool { return b.Status == StatusVacant })
}

func (m *MemoryInventory) filter(ctx context.Context, ward string, keep func(Bed) bool) ([]Bed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bed, 0, len(m.beds))
	for _, b := range m.beds {
		if ward != "" && !strings.EqualFold(b.Ward, ward) {
			continue
		}
		if keep(b) {
			out = append(out, cloneBed(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryInventory) GetBed(ctx context.Context, id string) (Bed, error) {
	if err := ctx.Err(); err != nil {
		return Bed{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok {
		return Bed{}, ErrBedNotFound
	}
	return cloneBed(b), nil
}

func (m *MemoryInventory) CompareAndSwapStatus(ctx context.Context, bedID string, expected, next Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("beds: swap %s %s->%s: %w", bedID, expected, next, ErrInvalidTransition)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[bedID]
	if !ok {
		return false, ErrBedNotFound
	}
	if b.Status != expected {
		return false, nil
	}
	m.swapLocked(b, next, "")
	return true, nil
}

func (m *MemoryInventory) CompareAndSwapHeld(ctx context.Context, bedID string, expected, next Status, holder string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("beds: swap %s %s->%s: %w", bedID, expected, next, ErrInvalidTransition)
	}
	if strings.TrimSpace(holder) == "" {
		return false, ErrMissingHolder
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[bedID]
	if !ok {
		return false, ErrBedNotFound
	}
	switch {
	case b.Status == next && b.HeldBy == holder:
		return true, nil
	case b.Status != expected:
		return false, nil
	case expected == StatusReserved && b.HeldBy != holder:
		return false, nil
	}
	m.swapLocked(b, next, holder)
	return true, nil
}

func (m *MemoryInventory) swapLocked(b Bed, next Status, holder string) {
	b.Status = next
	b.HeldBy = holder
	b.Version++
	b.LastChange = m.now()
	m.beds[b.ID] = b
}

func (m *MemoryInventory) UpsertPatient(ctx context.Context, p Patient) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.PatientID) == "" {
		return "", ErrMissingPatientID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = m.now()
	p.RequiredEquipment = append([]string(nil), p.RequiredEquipment...)
	m.patients[p.PatientID] = p
	return p.PatientID, nil
}

func (m *MemoryInventory) GetPatient(ctx context.Context, id string) (Patient, error) {
	if err := ctx.Err(); err != nil {
		return Patient{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return Patient{}, ErrPatientNotFound
	}
	return p, nil
}

func (m *MemoryInventory) AppendOccupancyHistory(ctx context.Context, entry HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.At.IsZero() {
		entry.At = m.now()
	}
	m.history = append(m.history, entry)
	return nil
}

// History returns a copy of the recorded occupancy history.
func (m *MemoryInventory) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history...)
}

func (m *MemoryInventory) Roster(ctx context.Context) (Roster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRoster(m.roster), nil
}

func cloneBed(b Bed) Bed {
	b.Equipment = append([]string(nil), b.Equipment...)
	return b
}

func copyRoster(r Roster) Roster {
	out := make(Roster, len(r))
	for ward, specialists := range r {
		out[ward] = append([]string(nil), specialists...)
	}
	return out
}
