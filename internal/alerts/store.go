package alerts

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// ListFilter narrows List results.
type ListFilter struct {
	IncludeResolved bool
	Department      string
	Limit           int
}

// Store persists alerts. Implementations never delete rows.
type Store interface {
	Active(ctx context.Context) ([]Alert, error)
	List(ctx context.Context, filter ListFilter) ([]Alert, error)
	Get(ctx context.Context, id string) (Alert, error)
	Insert(ctx context.Context, a Alert) error
	// Refresh replaces message and details of an active alert and bumps UpdatedAt.
	Refresh(ctx context.Context, id, message string, details Details, at time.Time) error
	// Resolve sets ResolvedAt on an active alert; false means it was already resolved.
	Resolve(ctx context.Context, id, by string, at time.Time) (bool, error)
	// Acknowledge records who acknowledged an active alert; false means it was
	// already resolved or acknowledged.
	Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	alerts map[string]Alert
	writes int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]Alert)}
}

// Writes returns how many mutating calls succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) Active(ctx context.Context) ([]Alert, error) {
	return s.List(ctx, ListFilter{})
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if !filter.IncludeResolved && !a.Active() {
			continue
		}
		if filter.Department != "" && !strings.EqualFold(a.Department, filter.Department) {
			continue
		}
		out = append(out, a)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Alert, error) {
	if err := ctx.Err(); err != nil {
		return Alert{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	return a, nil
}

func (s *MemoryStore) Insert(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	s.writes++
	return nil
}

func (s *MemoryStore) Refresh(ctx context.Context, id, message string, details Details, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if !a.Active() {
		return ErrAlreadyResolved
	}
	a.Message = message
	a.Details = details
	a.UpdatedAt = at
	s.alerts[id] = a
	s.writes++
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id, by string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, ErrAlertNotFound
	}
	if !a.Active() {
		return false, nil
	}
	resolved := at
	a.ResolvedAt = &resolved
	a.ResolvedBy = by
	a.UpdatedAt = at
	s.alerts[id] = a
	s.writes++
	return true, nil
}

func (s *MemoryStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, ErrAlertNotFound
	}
	if !a.Active() || a.AcknowledgedAt != nil {
		return false, nil
	}
	acked := at
	a.AcknowledgedAt = &acked
	a.AcknowledgedBy = by
	a.UpdatedAt = at
	s.alerts[id] = a
	s.writes++
	return true, nil
}

// sameDetails compares details by their transport rendering.
func sameDetails(a, b Details) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a.Metadata(), b.Metadata())
}
