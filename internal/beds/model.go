// Package beds holds the bed inventory model and the collaborator contract
// every other component uses to read beds and change their status.
package beds

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a bed.
type Status string

const (
	StatusVacant      Status = "vacant"
	StatusReserved    Status = "reserved"
	StatusOccupied    Status = "occupied"
	StatusCleaning    Status = "cleaning"
	StatusMaintenance Status = "maintenance"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusVacant, StatusReserved, StatusOccupied, StatusCleaning, StatusMaintenance:
		return true
	}
	return false
}

// transitions lists every legal status move. Reserved only resolves to
// Occupied (commit) or back to Vacant (rollback).
var transitions = map[Status][]Status{
	StatusVacant:      {StatusReserved, StatusMaintenance},
	StatusReserved:    {StatusOccupied, StatusVacant},
	StatusOccupied:    {StatusCleaning},
	StatusCleaning:    {StatusVacant},
	StatusMaintenance: {StatusVacant},
}

// CanTransition reports whether a bed may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Severity is the clinical acuity reported on an admission request.
type Severity string

const (
	SeverityStable   Severity = "stable"
	SeveritySerious  Severity = "serious"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityStable, SeveritySerious, SeverityCritical:
		return true
	}
	return false
}

// Bed is a single bed in the inventory.
type Bed struct {
	ID               string    `json:"id"`
	Ward             string    `json:"ward"`
	Type             string    `json:"type"`
	Room             string    `json:"room,omitempty"`
	Status           Status    `json:"status"`
	Equipment        []string  `json:"equipment,omitempty"`
	IsolationCapable bool      `json:"isolation_capable"`
	Private          bool      `json:"private"`
	DailyRateCents   int64     `json:"daily_rate_cents"`
	Version          int64     `json:"version"`
	LastChange       time.Time `json:"last_change"`
	// HeldBy is the workflow that made the last holder-tagged status change.
	HeldBy string `json:"held_by,omitempty"`
}

// HasEquipment reports whether the bed carries the named item. Matching is
// case-insensitive.
func (b Bed) HasEquipment(item string) bool {
	item = normalize(item)
	for _, have := range b.Equipment {
		if normalize(have) == item {
			return true
		}
	}
	return false
}

// AdmissionRequest carries the clinical attributes used to place a patient.
type AdmissionRequest struct {
	PatientID         string    `json:"patient_id"`
	Name              string    `json:"name"`
	Age               int       `json:"age,omitempty"`
	Gender            string    `json:"gender,omitempty"`
	Condition         string    `json:"condition"`
	Severity          Severity  `json:"severity"`
	PreferredWard     string    `json:"preferred_ward,omitempty"`
	RequiredEquipment []string  `json:"required_equipment,omitempty"`
	RequiredSpecialty string    `json:"required_specialty,omitempty"`
	IsolationRequired bool      `json:"isolation_required"`
	RequestedAt       time.Time `json:"requested_at"`
}

// Validate checks the fields placement cannot work without.
func (r AdmissionRequest) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return ErrMissingPatientID
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return ErrInvalidSeverity
	}
	if r.Age < 0 {
		return ErrInvalidAge
	}
	return nil
}

// PatientStatus tracks where a patient is in the admission lifecycle.
type PatientStatus string

const (
	PatientPending    PatientStatus = "pending"
	PatientAdmitted   PatientStatus = "admitted"
	PatientDischarged PatientStatus = "discharged"
)

// Patient is the persisted patient record.
type Patient struct {
	AdmissionRequest
	Status       PatientStatus `json:"status"`
	BedID        string        `json:"bed_id,omitempty"`
	AdmittedAt   *time.Time    `json:"admitted_at,omitempty"`
	DischargedAt *time.Time    `json:"discharged_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HistoryEntry is one row of the occupancy history.
type HistoryEntry struct {
	BedID     string    `json:"bed_id"`
	PatientID string    `json:"patient_id,omitempty"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Roster maps a ward to the specialties of the specialists currently on duty.
type Roster map[string][]string

// OnDuty returns the specialists on duty in ward.
func (r Roster) OnDuty(ward string) []string {
	if r == nil {
		return nil
	}
	if specialists, ok := r[ward]; ok {
		return specialists
	}
	for key, specialists := range r {
		if strings.EqualFold(key, ward) {
			return specialists
		}
	}
	return nil
}

// Wards returns the distinct wards of the given beds, sorted.
func Wards(list []Bed) []string {
	seen := make(map[string]struct{}, len(list))
	for _, b := range list {
		seen[b.Ward] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
