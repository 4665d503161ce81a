package events

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// Publisher emits domain events without knowing how they are transported.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error
}

// Sink receives envelopes from the bus.
type Sink interface {
	Deliver(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, env Envelope) error

func (f SinkFunc) Deliver(ctx context.Context, env Envelope) error { return f(ctx, env) }

type namedSink struct {
	name string
	sink Sink
}

// Bus fans published events out to every subscribed sink. A failing sink is
// logged and does not stop delivery to the others.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a sink under name.
func (b *Bus) Subscribe(name string, sink Sink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
	b.mu.Unlock()
}

// Publish wraps evt in an envelope and delivers it to every sink.
func (b *Bus) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	env, err := NewEnvelope(aggregate, evt)
	if err != nil {
		return err
	}
	b.mu.RLock()
	sinks := append([]namedSink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.sink.Deliver(ctx, env); err != nil {
			b.logger.Warn("event sink delivery failed",
				"sink", s.name,
				"event_id", env.EventID,
				"type", env.EventType,
				"error", err,
			)
		}
	}
	return nil
}

// MultiSink delivers to each sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, env Envelope) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder is an in-memory sink and publisher, mostly for tests.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Deliver(_ context.Context, env Envelope) error {
	r.mu.Lock()
	r.envelopes = append(r.envelopes, env)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	env, err := NewEnvelope(aggregate, evt)
	if err != nil {
		return err
	}
	return r.Deliver(ctx, env)
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envelopes...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.envelopes))
	for _, env := range r.envelopes {
		out = append(out, env.EventType)
	}
	return out
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, CanonicalEvent) error { return nil }
