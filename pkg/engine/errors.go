package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllSourcesUnavailable is the terminal resolution failure: every
	// candidate was exhausted and no stale cache entry exists.
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
	// ErrNoCandidates indicates no configured source supports the
	// requested data class.
	ErrNoCandidates = errors.New("no source supports data class")
	// ErrInvalidQuery indicates a query that cannot be normalized.
	ErrInvalidQuery = errors.New("invalid query")
)

// Attempt records why a single candidate source did not produce a result.
type Attempt struct {
	SourceID string
	Reason   error
}

// AllSourcesUnavailableError carries the per-source failure reasons for
// diagnostics. It matches ErrAllSourcesUnavailable under errors.Is.
type AllSourcesUnavailableError struct {
	Key      string
	Attempts []Attempt
}

// Error implements the error interface.
func (e *AllSourcesUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("all sources unavailable for %s", e.Key)
	}

	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %v", a.SourceID, a.Reason))
	}
	return fmt.Sprintf("all sources unavailable for %s (%s)", e.Key, strings.Join(reasons, "; "))
}

// Is reports a match against ErrAllSourcesUnavailable.
func (e *AllSourcesUnavailableError) Is(target error) bool {
	return target == ErrAllSourcesUnavailable
}
