package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateInput      = errors.New("duplicate input name")
	ErrUnresolvedReference = errors.New("unresolved variable reference")
	ErrMissingInput        = errors.New("missing required input")
	ErrInputType           = errors.New("input not coercible to declared type")
)

// SchemaValidationError reports a definition or input binding that violates
// the workflow schema. StepIndex is -1 when the problem is not tied to a step.
type SchemaValidationError struct {
	StepIndex int
	Field     string
	Reason    string
	Err       error
}

func (e *SchemaValidationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StepIndex >= 0 {
		return fmt.Sprintf("schema validation: step %d: %s: %s", e.StepIndex, e.Field, msg)
	}
	if e.Field != "" {
		return fmt.Sprintf("schema validation: %s: %s", e.Field, msg)
	}
	return "schema validation: " + msg
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

func schemaErr(step int, field string, err error, format string, args ...any) *SchemaValidationError {
	return &SchemaValidationError{StepIndex: step, Field: field, Err: err, Reason: fmt.Sprintf(format, args...)}
}
