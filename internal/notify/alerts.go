// Package notify emails staff about capacity alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

const (
	dedupeConsumer = "alert-email"
	alertCategory  = "capacity-alert"
)

// ProcessedTracker remembers which envelopes were already handled.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// AlertNotifier is an event sink that emails recipients when a critical
// alert is raised or resolved. Other events are ignored.
type AlertNotifier struct {
	email      EmailSender
	recipients []string
	processed  ProcessedTracker
	logger     *logging.Logger
}

// NewAlertNotifier creates a notifier. Blank recipients are dropped.
func NewAlertNotifier(email EmailSender, recipients []string, logger *logging.Logger) *AlertNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	clean := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return &AlertNotifier{email: email, recipients: clean, logger: logger}
}

// WithProcessedTracker skips envelopes that were already emailed.
func (n *AlertNotifier) WithProcessedTracker(t ProcessedTracker) *AlertNotifier {
	n.processed = t
	return n
}

// Enabled reports whether the notifier can send anything.
func (n *AlertNotifier) Enabled() bool {
	return n != nil && n.email != nil && len(n.recipients) > 0
}

// Deliver implements events.Sink.
func (n *AlertNotifier) Deliver(ctx context.Context, env events.Envelope) error {
	if !n.Enabled() {
		return nil
	}
	if env.EventType != events.TypeAlertRaised && env.EventType != events.TypeAlertResolved {
		return nil
	}
	evt, err := events.Decode(env)
	if err != nil {
		return err
	}
	msg, ok := alertEmail(evt)
	if !ok {
		return nil
	}

	eventID := env.EventID.String()
	if n.processed != nil {
		seen, err := n.processed.AlreadyProcessed(ctx, dedupeConsumer, eventID)
		if err != nil {
			n.logger.Warn("alert email dedupe check failed", "event_id", eventID, "error", err)
		} else if seen {
			n.logger.Debug("alert email already sent", "event_id", eventID)
			return nil
		}
	}

	var errs []error
	for _, to := range n.recipients {
		m := msg
		m.To = to
		if err := n.email.Send(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("notify: email %s: %w", to, err))
		}
	}
	if len(errs) == len(n.recipients) {
		return errors.Join(errs...)
	}

	if n.processed != nil {
		if _, err := n.processed.MarkProcessed(ctx, dedupeConsumer, eventID); err != nil {
			n.logger.Warn("alert email mark processed failed", "event_id", eventID, "error", err)
		}
	}
	return errors.Join(errs...)
}

func alertEmail(evt events.CanonicalEvent) (EmailMessage, bool) {
	switch e := evt.(type) {
	case events.AlertRaisedV1:
		if e.Priority != "critical" {
			return EmailMessage{}, false
		}
		var body strings.Builder
		fmt.Fprintf(&body, "%s\n\n%s\n\n", e.Title, e.Message)
		fmt.Fprintf(&body, "Department: %s\nRaised: %s\n", e.Department, e.RaisedAt.UTC().Format("2006-01-02 15:04 MST"))
		if e.ActionRequired {
			body.WriteString("Action required.\n")
		}
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&body, "%s: %v\n", k, e.Metadata[k])
		}
		return EmailMessage{
			Subject:  fmt.Sprintf("[CRITICAL] %s", e.Title),
			Body:     body.String(),
			Category: alertCategory,
			Urgent:   true,
		}, true
	case events.AlertResolvedV1:
		if e.AlertType != "capacity_critical" {
			return EmailMessage{}, false
		}
		return EmailMessage{
			Subject:  fmt.Sprintf("[RESOLVED] %s capacity back below critical", e.Department),
			Category: alertCategory,
			Body: fmt.Sprintf("The critical capacity alert for %s was resolved by %s at %s.\n",
				e.Department, e.ResolvedBy, e.ResolvedAt.UTC().Format("2006-01-02 15:04 MST")),
		}, true
	}
	return EmailMessage{}, false
}

var _ events.Sink = (*AlertNotifier)(nil)
