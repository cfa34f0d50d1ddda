// Package variables parameterizes converted steps: literals the oracle
// identifies as inputs are replaced by references to named variables.
package variables

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/workflow"
)

// Rejection records a suggestion that failed validation.
type Rejection struct {
	Name   string
	Value  string
	Reason string
}

// Result holds the extraction outcome. Steps is always a copy owned by the
// caller; on a no-op it equals the input.
type Result struct {
	Schema   []workflow.InputField
	Steps    []workflow.Step
	Rejected []Rejection
}

type Extractor struct {
	oracle oracle.Oracle
	logger *zap.Logger
}

// New returns an extractor backed by o. A nil oracle disables extraction.
func New(o oracle.Oracle, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{oracle: o, logger: logger.Named("variables")}
}

// Extract asks the oracle which literals in steps are parameters and
// rewrites them. existing lists schema entries the new variables must not
// collide with. Oracle failures degrade to a no-op.
func (x *Extractor) Extract(ctx context.Context, steps []workflow.Step, task string, existing []workflow.InputField) *Result {
	res := &Result{Steps: workflow.CloneSteps(steps)}
	if x.oracle == nil {
		return res
	}

	literals := collectLiterals(steps)
	if len(literals) == 0 {
		return res
	}

	suggestions, err := x.oracle.SuggestVariables(ctx, oracle.VariableRequest{Task: task, Literals: literals})
	if err != nil {
		x.logger.Warn("variable suggestion failed, keeping literal steps", zap.Error(err))
		return res
	}

	taken := make(map[string]bool)
	for _, f := range existing {
		taken[f.Name] = true
	}
	for _, s := range steps {
		if e, ok := s.(*workflow.ExtractStep); ok {
			taken[e.Output] = true
		}
	}
	claimed := make(map[string]bool)

	for _, sg := range suggestions {
		field, reason := validate(sg, taken, claimed)
		if reason == "" {
			reason = checkOccurrences(res.Steps, sg.Value)
		}
		if reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Name: sg.Name, Value: sg.Value, Reason: reason})
			x.logger.Debug("rejected variable suggestion",
				zap.String("name", sg.Name), zap.String("value", sg.Value), zap.String("reason", reason))
			continue
		}

		rewrite(res.Steps, sg.Value, field.Name)
		taken[field.Name] = true
		claimed[sg.Value] = true
		res.Schema = append(res.Schema, field)
	}

	x.logger.Info("extracted variables",
		zap.Int("suggested", len(suggestions)), zap.Int("accepted", len(res.Schema)), zap.Int("rejected", len(res.Rejected)))
	return res
}

func collectLiterals(steps []workflow.Step) []oracle.Literal {
	var out []oracle.Literal
	for i, s := range steps {
		for _, f := range workflow.Fields(s) {
			if f.Value.IsRef() || strings.TrimSpace(f.Value.Literal) == "" {
				continue
			}
			out = append(out, oracle.Literal{Step: i, Kind: string(s.Kind()), Field: f.Name, Value: f.Value.Literal})
		}
	}
	return out
}

func validate(sg oracle.VariableSuggestion, taken, claimed map[string]bool) (workflow.InputField, string) {
	name := strings.TrimSpace(sg.Name)
	switch {
	case !workflow.ValidName(name):
		return workflow.InputField{}, "invalid variable name"
	case taken[name]:
		return workflow.InputField{}, "name already in use"
	case sg.Value == "":
		return workflow.InputField{}, "empty value"
	case claimed[sg.Value]:
		return workflow.InputField{}, "value already parameterized"
	}

	typ := workflow.InputType(strings.ToLower(strings.TrimSpace(sg.Type)))
	switch typ {
	case workflow.TypeString, workflow.TypeNumber, workflow.TypeBoolean:
	default:
		return workflow.InputField{}, "unsupported type " + sg.Type
	}
	return workflow.InputField{Name: name, Type: typ, Required: sg.Required, Format: sg.Format}, ""
}

// checkOccurrences requires value to fill at least one field, and no more
// than one field of any single step.
func checkOccurrences(steps []workflow.Step, value string) string {
	found := false
	for _, s := range steps {
		n := 0
		for _, f := range workflow.Fields(s) {
			if !f.Value.IsRef() && f.Value.Literal == value {
				n++
			}
		}
		if n > 1 {
			return "ambiguous: value fills several fields of one step"
		}
		found = found || n == 1
	}
	if !found {
		return "value does not appear in any step field"
	}
	return ""
}

func rewrite(steps []workflow.Step, value, name string) {
	ref := workflow.Ref(name)
	quoted, placeholder := `"`+value+`"`, `"`+ref.String()+`"`
	for _, s := range steps {
		for _, f := range workflow.Fields(s) {
			if f.Value.IsRef() || f.Value.Literal != value {
				continue
			}
			*f.Value = ref
			setDescription(s, strings.ReplaceAll(s.Describe(), quoted, placeholder))
		}
	}
}

func setDescription(s workflow.Step, desc string) {
	switch st := s.(type) {
	case *workflow.ClickStep:
		st.Description = desc
	case *workflow.InputStep:
		st.Description = desc
	case *workflow.NavigationStep:
		st.Description = desc
	}
}
