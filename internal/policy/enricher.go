package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

const maxCachedAnswers = 256

// Enricher attaches a policy justification to a recommendation within a
// fixed time budget. Any failure yields an empty justification.
type Enricher struct {
	lookup  Lookup
	timeout time.Duration
	logger  *logging.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewEnricher wraps lookup. A nil lookup disables enrichment.
func NewEnricher(lookup Lookup, timeout time.Duration, logger *logging.Logger) *Enricher {
	if logger == nil {
		logger = logging.Default()
	}
	if lookup == nil {
		lookup = Disabled{}
	}
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &Enricher{lookup: lookup, timeout: timeout, logger: logger, cache: make(map[string]string)}
}

// Justify returns policy text supporting placing the patient in best, or ""
// when the lookup is unavailable or too slow.
func (e *Enricher) Justify(ctx context.Context, req beds.AdmissionRequest, best scoring.CandidateScore) string {
	if e == nil {
		return ""
	}
	query := Query(req, best)

	e.mu.Lock()
	cached, ok := e.cache[query]
	e.mu.Unlock()
	if ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		text, err := e.lookup.LookupJustification(ctx, query)
		ch <- answer{text: text, err: err}
	}()

	var got answer
	select {
	case got = <-ch:
	case <-ctx.Done():
		got.err = fmt.Errorf("%w: %w", ErrPolicyLookupUnavailable, ctx.Err())
	}
	if got.err != nil {
		if !errors.Is(got.err, ErrPolicyLookupUnavailable) {
			got.err = fmt.Errorf("%w: %w", ErrPolicyLookupUnavailable, got.err)
		}
		e.logger.Debug("policy justification skipped", "error", got.err)
		return ""
	}

	text := strings.TrimSpace(got.text)
	e.mu.Lock()
	if len(e.cache) >= maxCachedAnswers {
		clear(e.cache)
	}
	e.cache[query] = text
	e.mu.Unlock()
	return text
}

// Query phrases the policy question for a placement.
func Query(req beds.AdmissionRequest, best scoring.CandidateScore) string {
	var b strings.Builder
	severity := strings.ToLower(string(req.Severity))
	if severity == "" {
		severity = "newly admitted"
	}
	fmt.Fprintf(&b, "Which admission policy supports placing a %s patient", severity)
	if c := strings.TrimSpace(req.Condition); c != "" {
		fmt.Fprintf(&b, " with %q", strings.ToLower(c))
	}
	fmt.Fprintf(&b, " in the %s ward", best.Ward)
	if req.IsolationRequired {
		b.WriteString(" under isolation precautions")
	}
	b.WriteString("?")
	return b.String()
}
