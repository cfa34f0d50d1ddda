package engine

import (
	"fmt"

	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/workflow"
)

// RunError reports why a run did not succeed. StepIndex is -1 when the run
// failed before its first step.
type RunError struct {
	RunID     string
	StepIndex int
	Kind      workflow.Kind
	Records   []healing.Record
	Err       error
}

func (e *RunError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %s: step %d (%s): %v", e.RunID, e.StepIndex, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
