// Package policy looks up hospital admission policy text used to justify bed
// recommendations. Lookups are best effort: callers never block on them.
package policy

import (
	"context"
	"errors"
)

// ErrPolicyLookupUnavailable is returned when no justification can be produced.
var ErrPolicyLookupUnavailable = errors.New("policy: lookup unavailable")

// Lookup answers a free-text policy question.
type Lookup interface {
	LookupJustification(ctx context.Context, query string) (string, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, query string) (string, error)

func (f LookupFunc) LookupJustification(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Disabled is the Lookup used when no provider is configured.
type Disabled struct{}

func (Disabled) LookupJustification(context.Context, string) (string, error) {
	return "", ErrPolicyLookupUnavailable
}

const systemPrompt = "You are a hospital bed-management policy assistant. " +
	"Answer in at most two sentences with the admission policy that justifies the placement. " +
	"Do not give clinical advice."
