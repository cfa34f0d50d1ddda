package healing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/resolve"
)

// Failure classifies the error that triggered healing.
type Failure string

const (
	FailureNoMatch    Failure = "element-not-found"
	FailureAmbiguous  Failure = "ambiguous-match"
	FailureNavigation Failure = "navigation"
	FailureTimeout    Failure = "timeout"
)

// Outcome is the result of one escalation level.
type Outcome string

const (
	OutcomeRecovered Outcome = "recovered"
	OutcomeEscalated Outcome = "escalated"
	OutcomeAborted   Outcome = "aborted"
)

// Record is one attempted remediation. Records are never modified after
// they are appended to a trail.
type Record struct {
	StepIndex int     `json:"step_index"`
	Failure   Failure `json:"failure"`
	Strategy  string  `json:"strategy"`
	Outcome   Outcome `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
}

// Classify maps err to a healable failure. It reports false for errors
// healing does not handle.
func Classify(err error) (Failure, bool) {
	var (
		noMatch   *resolve.ElementResolutionError
		ambiguous *resolve.AmbiguousMatchError
		nav       *browser.NavigationError
		timeout   *oracle.TimeoutError
	)
	switch {
	case errors.As(err, &ambiguous):
		return FailureAmbiguous, true
	case errors.As(err, &noMatch), errors.Is(err, browser.ErrStaleElement):
		return FailureNoMatch, true
	case errors.As(err, &nav):
		return FailureNavigation, true
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &timeout):
		return FailureTimeout, true
	}
	return "", false
}

// ExhaustedError is returned when every level failed.
type ExhaustedError struct {
	StepIndex int
	Records   []Record
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Records))
	for i, r := range e.Records {
		parts[i] = fmt.Sprintf("%s: %s", r.Strategy, r.Outcome)
	}
	return fmt.Sprintf("healing exhausted at step %d (%s)", e.StepIndex, strings.Join(parts, ", "))
}

// ErrNotApplicable is returned by a strategy that cannot handle a failure.
var ErrNotApplicable = errors.New("strategy not applicable")
