package events

import "time"

const (
	TypeAlertRaised         = "alert.raised.v1"
	TypeAlertResolved       = "alert.resolved.v1"
	TypeAssignmentCommitted = "assignment.committed.v1"
	TypeAssignmentFailed    = "assignment.failed.v1"
)

// AlertRaisedV1 is emitted when a sweep opens a new alert.
type AlertRaisedV1 struct {
	AlertID        string         `json:"alert_id"`
	AlertType      string         `json:"alert_type"`
	Priority       string         `json:"priority"`
	Department     string         `json:"department"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ActionRequired bool           `json:"action_required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RaisedAt       time.Time      `json:"raised_at"`
}

func (AlertRaisedV1) EventType() string { return TypeAlertRaised }

// AlertResolvedV1 is emitted when an alert is resolved, automatically or by a caller.
type AlertResolvedV1 struct {
	AlertID    string    `json:"alert_id"`
	AlertType  string    `json:"alert_type"`
	Department string    `json:"department"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

func (AlertResolvedV1) EventType() string { return TypeAlertResolved }

// AttemptV1 records one bed a workflow tried and why it was rejected.
type AttemptV1 struct {
	BedID  string `json:"bed_id"`
	Reason string `json:"reason"`
}

// AssignmentCommittedV1 is emitted when a patient occupies a bed.
type AssignmentCommittedV1 struct {
	WorkflowID  string      `json:"workflow_id"`
	PatientID   string      `json:"patient_id"`
	BedID       string      `json:"bed_id"`
	Ward        string      `json:"ward"`
	RetryCount  int         `json:"retry_count"`
	Attempts    []AttemptV1 `json:"attempts,omitempty"`
	CommittedAt time.Time   `json:"committed_at"`
}

func (AssignmentCommittedV1) EventType() string { return TypeAssignmentCommitted }

// AssignmentFailedV1 is emitted when a workflow ends Failed or RolledBack.
type AssignmentFailedV1 struct {
	WorkflowID string      `json:"workflow_id"`
	PatientID  string      `json:"patient_id"`
	State      string      `json:"state"`
	Kind       string      `json:"kind"`
	Reason     string      `json:"reason"`
	Attempts   []AttemptV1 `json:"attempts,omitempty"`
	FailedAt   time.Time   `json:"failed_at"`
}

func (AssignmentFailedV1) EventType() string { return TypeAssignmentFailed }
