// Package engine implements the convention resolution core: the overlap
// predicate, the price resolver and the upsert orchestrator.  It talks to
// persistence through the Store and TxStore ports so the business rules
// can be exercised without a database.
package engine

import (
	"errors"
	"fmt"
)

// ErrNoConvention is returned by the resolver when no active convention
// covers the requested date.  It is a valid outcome, not a failure:
// callers fall back to their standard non-convention rate.
var ErrNoConvention = errors.New("no convention applies")

// ErrOverlapConflict is returned by the orchestrator when a candidate
// validity window intersects another active convention for the same
// (client, category) scope key.  Nothing is written.  Handlers should
// translate this into an HTTP 409 response so interfaces can render a
// specific "dates already covered" message.
var ErrOverlapConflict = errors.New("validity window overlaps an existing convention")

// ValidationError reports caller-fixable bad input.  The orchestrator
// performs no store access when validation fails.
type ValidationError struct {
	Field  string // offending input field
	Reason string // human-readable explanation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
