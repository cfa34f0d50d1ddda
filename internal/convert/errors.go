package convert

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTrace          = errors.New("trace is empty")
	ErrNoActionableEntries = errors.New("trace contains no actionable entries")
	ErrInvalidStepSet      = errors.New("converted steps are not a valid deterministic set")
)

// ConversionError reports a trace that cannot be turned into semantic steps.
// Step is the offending output position, or -1.
type ConversionError struct {
	Step   int
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("conversion: step %d: %s", e.Step, e.Reason)
	}
	if e.Reason == "" {
		return "conversion: " + e.Err.Error()
	}
	return "conversion: " + e.Reason
}

func (e *ConversionError) Unwrap() error { return e.Err }
