package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalEvent represents a versioned domain event.
type CanonicalEvent interface {
	EventType() string
}

// Envelope captures transport metadata for canonical events.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// OccurredAt returns the envelope timestamp.
func (e Envelope) OccurredAt() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")

	// ErrUnknownEventType is returned by Decode for types it does not know.
	ErrUnknownEventType = errors.New("events: unknown event type")

	nowFunc = time.Now
)

// NewEnvelope wraps evt for transport. aggregate names the entity the event
// is about, e.g. "ward:ICU" or "workflow:<id>".
func NewEnvelope(aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal canonical payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Aggregate:       strings.TrimSpace(aggregate),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         append([]byte(nil), payload...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Decode turns an envelope back into its typed event.
func Decode(env Envelope) (CanonicalEvent, error) {
	var evt CanonicalEvent
	switch env.EventType {
	case TypeAlertRaised:
		var v AlertRaisedV1
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = v
	case TypeAlertResolved:
		var v AlertResolvedV1
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = v
	case TypeAssignmentCommitted:
		var v AssignmentCommittedV1
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = v
	case TypeAssignmentFailed:
		var v AssignmentFailedV1
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		evt = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	return evt, nil
}
