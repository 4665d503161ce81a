// Package workflow drives bed assignments through scoring, reservation and
// commit, rolling the bed back whenever a workflow cannot finish.
package workflow

import (
	"errors"
	"time"

	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
)

// State is the position of a workflow in the assignment state machine.
type State string

const (
	StateCreated    State = "created"
	StateScoring    State = "scoring"
	StateReserved   State = "reserved"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateRolledBack, StateFailed:
		return true
	}
	return false
}

// FailureKind classifies why a workflow did not commit.
type FailureKind string

const (
	FailureInvalidPatientData  FailureKind = "invalid_patient_data"
	FailureNoAvailableBed      FailureKind = "no_available_bed"
	FailureReservationConflict FailureKind = "reservation_conflict"
	FailurePersistence         FailureKind = "persistence_failure"
	FailureTimeout             FailureKind = "timeout_exceeded"
	FailureCancelled           FailureKind = "cancelled"
)

var (
	ErrWorkflowNotFound = errors.New("workflow: not found")
	ErrMissingPatientID = errors.New("workflow: patient id is required")
	ErrAlreadyFinished  = errors.New("workflow: already finished")
)

// Step is one entry of a workflow's state history.
type Step struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
}

// Attempt is a bed the workflow tried to reserve and why it was rejected.
type Attempt struct {
	BedID  string `json:"bed_id"`
	Reason string `json:"reason"`
}

// Failure explains a workflow that did not commit.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (f *Failure) Error() string { return "workflow: " + string(f.Kind) + ": " + f.Reason }

// Request starts an assignment. BedID pre-selects a bed and skips scoring.
type Request struct {
	PatientID string `json:"patient_id"`
	BedID     string `json:"bed_id,omitempty"`
}

// Workflow is a snapshot of one assignment.
type Workflow struct {
	ID         string                   `json:"id"`
	PatientID  string                   `json:"patient_id"`
	BedID      string                   `json:"bed_id,omitempty"`
	Ward       string                   `json:"ward,omitempty"`
	State      State                    `json:"state"`
	RetryCount int                      `json:"retry_count"`
	Deadline   time.Time                `json:"deadline"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	Steps      []Step                   `json:"steps"`
	Candidates []scoring.CandidateScore `json:"candidates,omitempty"`
	Attempts   []Attempt                `json:"attempts,omitempty"`
	Failure    *Failure                 `json:"failure,omitempty"`
	Reason     string                   `json:"reason"`
}

func (w Workflow) clone() Workflow {
	out := w
	out.Steps = append([]Step(nil), w.Steps...)
	out.Candidates = append([]scoring.CandidateScore(nil), w.Candidates...)
	out.Attempts = append([]Attempt(nil), w.Attempts...)
	if w.Failure != nil {
		f := *w.Failure
		out.Failure = &f
	}
	return out
}

func (w Workflow) eventAttempts() []events.AttemptV1 {
	if len(w.Attempts) == 0 {
		return nil
	}
	out := make([]events.AttemptV1, 0, len(w.Attempts))
	for _, a := range w.Attempts {
		out = append(out, events.AttemptV1{BedID: a.BedID, Reason: a.Reason})
	}
	return out
}
