package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/workflow"
)

// ExecutionContext is the live state of one run.
type ExecutionContext struct {
	RunID string
	// Inputs are the bound values of every schema entry, after coercion.
	Inputs map[string]string
	// Current is the index of the step being executed.
	Current int
	// Outputs holds the values produced by extract steps so far.
	Outputs map[string]string
	// Records is the healing trail of the run, in the order attempted.
	Records []healing.Record

	focused *browser.Element
}

// Lookup resolves a variable reference: a schema input first, then the
// most recent extract output of that name.
func (c *ExecutionContext) Lookup(name string) (string, bool) {
	if v, ok := c.Inputs[name]; ok {
		return v, true
	}
	v, ok := c.Outputs[name]
	return v, ok
}

// resolve substitutes v for the step at index.
func (c *ExecutionContext) resolve(index int, field string, v workflow.Value) (string, error) {
	s, ok := v.Resolve(c.Lookup)
	if !ok {
		return "", &workflow.SchemaValidationError{
			StepIndex: index,
			Field:     field,
			Reason:    fmt.Sprintf("variable %q is neither an input nor a prior output", v.Ref),
			Err:       workflow.ErrUnresolvedReference,
		}
	}
	return s, nil
}

// BindInputs validates inputs against the schema of def and returns the
// coerced values of every entry. Optional entries left unbound are bound to
// the empty string. Names the schema does not declare are rejected.
func BindInputs(def *workflow.Definition, inputs map[string]string) (map[string]string, error) {
	bound := make(map[string]string, len(def.InputSchema))
	for _, f := range def.InputSchema {
		raw, ok := inputs[f.Name]
		if !ok {
			if f.Required {
				return nil, &workflow.SchemaValidationError{
					StepIndex: -1,
					Field:     "inputs." + f.Name,
					Reason:    fmt.Sprintf("required input %q is not bound", f.Name),
					Err:       workflow.ErrMissingInput,
				}
			}
			bound[f.Name] = ""
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		bound[f.Name] = v
	}

	var unknown []string
	for name := range inputs {
		if _, ok := def.Input(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &workflow.SchemaValidationError{
			StepIndex: -1,
			Field:     "inputs",
			Reason:    "inputs not declared by the workflow: " + strings.Join(unknown, ", "),
		}
	}
	return bound, nil
}

func coerce(f workflow.InputField, raw string) (string, error) {
	mistyped := func() error {
		return &workflow.SchemaValidationError{
			StepIndex: -1,
			Field:     "inputs." + f.Name,
			Reason:    fmt.Sprintf("value %q is not a %s", raw, f.Type),
			Err:       workflow.ErrInputType,
		}
	}
	switch f.Type {
	case workflow.TypeNumber:
		s := strings.TrimSpace(raw)
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return "", mistyped()
		}
		return s, nil
	case workflow.TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return "", mistyped()
		}
		return strconv.FormatBool(b), nil
	}
	return raw, nil
}
