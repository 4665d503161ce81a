// Package alerts keeps per-ward capacity and housekeeping alerts in step with
// the bed inventory.
package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Type identifies what raised an alert.
type Type string

const (
	TypeCapacityCritical Type = "capacity_critical"
	TypeCapacityHigh     Type = "capacity_high"
	TypeCleaningOverdue  Type = "cleaning_overdue"
)

// Priority orders alerts for staff attention.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	}
	return 3
}

var (
	ErrAlertNotFound   = errors.New("alerts: alert not found")
	ErrAlreadyResolved = errors.New("alerts: alert already resolved")
	ErrMissingActor    = errors.New("alerts: actor is required")
)

// Details is the typed payload of an alert. Each alert type has exactly one
// details type.
type Details interface {
	alertType() Type
	// Metadata renders the details as a flat map for transport.
	Metadata() map[string]any
}

// CapacityDetails backs capacity_high and capacity_critical alerts.
type CapacityDetails struct {
	Ward               string   `json:"ward"`
	Total              int      `json:"total"`
	Occupied           int      `json:"occupied"`
	Rate               float64  `json:"rate"`
	Threshold          float64  `json:"threshold"`
	Critical           bool     `json:"critical"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

func (d CapacityDetails) alertType() Type {
	if d.Critical {
		return TypeCapacityCritical
	}
	return TypeCapacityHigh
}

func (d CapacityDetails) Metadata() map[string]any {
	return map[string]any{
		"ward":                d.Ward,
		"total_beds":          d.Total,
		"occupied_beds":       d.Occupied,
		"occupancy_rate":      d.Rate,
		"threshold":           d.Threshold,
		"recommended_actions": append([]string(nil), d.RecommendedActions...),
	}
}

// CleaningDetails backs cleaning_overdue alerts.
type CleaningDetails struct {
	Ward         string        `json:"ward"`
	BedIDs       []string      `json:"bed_ids"`
	OldestSince  time.Time     `json:"oldest_since"`
	OverdueAfter time.Duration `json:"overdue_after"`
}

func (CleaningDetails) alertType() Type { return TypeCleaningOverdue }

func (d CleaningDetails) Metadata() map[string]any {
	return map[string]any{
		"ward":          d.Ward,
		"bed_ids":       append([]string(nil), d.BedIDs...),
		"overdue_count": len(d.BedIDs),
		"oldest_since":  d.OldestSince.UTC().Format(time.RFC3339),
		"overdue_after": d.OverdueAfter.String(),
	}
}

// Alert is a deduplicated alert keyed by type and department. Alerts are
// never deleted; resolution sets ResolvedAt.
type Alert struct {
	ID             string
	Type           Type
	Priority       Priority
	Title          string
	Message        string
	Department     string
	ActionRequired bool
	Details        Details
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	ResolvedAt     *time.Time
	ResolvedBy     string
}

// Key is the deduplication key of an alert.
type Key struct {
	Type       Type
	Department string
}

// Key returns the alert's deduplication key.
func (a Alert) Key() Key { return Key{Type: a.Type, Department: a.Department} }

// Active reports whether the alert is unresolved.
func (a Alert) Active() bool { return a.ResolvedAt == nil }

// Metadata renders the typed details, or nil when there are none.
func (a Alert) Metadata() map[string]any {
	if a.Details == nil {
		return nil
	}
	return a.Details.Metadata()
}

type alertJSON struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	Priority       Priority       `json:"priority"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Department     string         `json:"department"`
	ActionRequired bool           `json:"action_required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
}

// MarshalJSON renders typed details as the metadata map.
func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertJSON{
		ID:             a.ID,
		Type:           a.Type,
		Priority:       a.Priority,
		Title:          a.Title,
		Message:        a.Message,
		Department:     a.Department,
		ActionRequired: a.ActionRequired,
		Metadata:       a.Metadata(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		AcknowledgedAt: a.AcknowledgedAt,
		AcknowledgedBy: a.AcknowledgedBy,
		ResolvedAt:     a.ResolvedAt,
		ResolvedBy:     a.ResolvedBy,
	})
}

// encodeDetails serializes details for storage.
func encodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d)
}

// decodeDetails is the inverse of encodeDetails for the given alert type.
func decodeDetails(t Type, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch t {
	case TypeCapacityCritical, TypeCapacityHigh:
		var d CapacityDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("alerts: decode capacity details: %w", err)
		}
		d.Critical = t == TypeCapacityCritical
		return d, nil
	case TypeCleaningOverdue:
		var d CleaningDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("alerts: decode cleaning details: %w", err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("alerts: unknown alert type %q", t)
}

// SortForDisplay orders alerts by priority, then newest first.
func SortForDisplay(list []Alert) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority.rank() != list[j].Priority.rank() {
			return list[i].Priority.rank() < list[j].Priority.rank()
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
