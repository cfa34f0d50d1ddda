package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// InputType is the declared type of an input variable.
type InputType string

const (
	TypeString  InputType = "string"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
)

// InputField declares one named workflow input.
type InputField struct {
	Name     string    `json:"name" yaml:"name" validate:"required"`
	Type     InputType `json:"type" yaml:"type" validate:"oneof=string number boolean"`
	Required bool      `json:"required" yaml:"required"`
	Format   string    `json:"format,omitempty" yaml:"format,omitempty"`
}

// Origin records how a definition was produced.
type Origin string

const (
	OriginRecorded               Origin = "recorded"
	OriginGeneratedDeterministic Origin = "generated-deterministic"
	OriginGeneratedLLM           Origin = "generated-llm"
)

type Provenance struct {
	Origin     Origin `json:"origin,omitempty" yaml:"origin,omitempty" validate:"omitempty,oneof=recorded generated-deterministic generated-llm"`
	SourceTask string `json:"source_task,omitempty" yaml:"source_task,omitempty"`
}

// Definition is the versioned workflow artifact. A Definition is never
// modified once handed to the engine; patches produce a new copy.
type Definition struct {
	Name            string       `validate:"required"`
	Description     string
	Version         string       `validate:"required,semver"`
	DefaultWaitTime float64      `validate:"gte=0"`
	InputSchema     []InputField `validate:"dive"`
	Steps           []Step       `validate:"min=1"`
	Provenance      *Provenance  `validate:"omitempty"`
}

// DefaultVersion is assigned to freshly generated definitions.
const DefaultVersion = "1.0.0"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Input returns the schema entry called name.
func (d *Definition) Input(name string) (InputField, bool) {
	for _, f := range d.InputSchema {
		if f.Name == name {
			return f, true
		}
	}
	return InputField{}, false
}

// Validate checks the definition against the workflow schema. All problems
// found are returned joined; each is a *SchemaValidationError.
func (d *Definition) Validate() error {
	var problems []error

	if err := structValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return schemaErr(-1, "", err, "%v", err)
		}
		for _, fe := range verrs {
			problems = append(problems, schemaErr(-1, fieldPath(fe.Namespace()), nil, "failed %q check (value %v)", fe.Tag(), fe.Value()))
		}
	}

	inputs := make(map[string]bool, len(d.InputSchema))
	for i, f := range d.InputSchema {
		field := fmt.Sprintf("input_schema[%d].name", i)
		if !ValidName(f.Name) {
			problems = append(problems, schemaErr(-1, field, nil, "invalid variable name %q", f.Name))
			continue
		}
		if inputs[f.Name] {
			problems = append(problems, schemaErr(-1, field, ErrDuplicateInput, "duplicate input name %q", f.Name))
			continue
		}
		inputs[f.Name] = true
	}

	outputs := make(map[string]bool)
	for i, s := range d.Steps {
		problems = append(problems, validateStep(i, s, inputs, outputs)...)
	}

	return errors.Join(problems...)
}

func validateStep(i int, s Step, inputs, outputs map[string]bool) []error {
	var problems []error
	if w := s.Wait(); w != nil && *w < 0 {
		problems = append(problems, schemaErr(i, "wait_time", nil, "must not be negative"))
	}

	switch st := s.(type) {
	case *NavigationStep:
		if st.URL.IsZero() {
			problems = append(problems, schemaErr(i, "url", nil, "navigation requires a url"))
		}
	case *ClickStep:
		if isBlank(st.Target.Text) {
			problems = append(problems, schemaErr(i, "target_text", nil, "click requires target text"))
		}
	case *InputStep:
		if isBlank(st.Target.Text) {
			problems = append(problems, schemaErr(i, "target_text", nil, "input requires target text"))
		}
		if st.Value.IsZero() {
			problems = append(problems, schemaErr(i, "value", nil, "input requires a literal or a variable reference"))
		}
	case *KeypressStep:
		if strings.TrimSpace(st.Key) == "" {
			problems = append(problems, schemaErr(i, "key", nil, "keypress requires a key"))
		}
	case *ExtractStep:
		if strings.TrimSpace(st.Goal) == "" {
			problems = append(problems, schemaErr(i, "extraction_goal", nil, "extract requires a goal"))
		}
		switch {
		case !ValidName(st.Output):
			problems = append(problems, schemaErr(i, "output", nil, "invalid output variable name %q", st.Output))
		case inputs[st.Output]:
			problems = append(problems, schemaErr(i, "output", nil, "output %q collides with an input name", st.Output))
		}
	case *AgentStep:
		if strings.TrimSpace(st.Task) == "" {
			problems = append(problems, schemaErr(i, "task", nil, "agent step requires a task"))
		}
	default:
		problems = append(problems, schemaErr(i, "type", nil, "unknown step type %T", s))
		return problems
	}

	for _, f := range Fields(s) {
		v := *f.Value
		if v.Ref != "" && v.Literal != "" {
			problems = append(problems, schemaErr(i, f.Name, nil, "both a literal and a reference are set"))
			continue
		}
		if v.Ref != "" && !inputs[v.Ref] && !outputs[v.Ref] {
			problems = append(problems, schemaErr(i, f.Name, ErrUnresolvedReference, "reference {%s} matches no input or prior extract output", v.Ref))
		}
	}

	// Outputs become visible to later steps only.
	if ex, ok := s.(*ExtractStep); ok && ValidName(ex.Output) {
		outputs[ex.Output] = true
	}
	return problems
}

func isBlank(v Value) bool {
	return v.Ref == "" && strings.TrimSpace(v.Literal) == ""
}

func fieldPath(namespace string) string {
	// Namespace is "Definition.InputSchema[0].Type"; drop the struct name.
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	c := *d
	c.InputSchema = slices.Clone(d.InputSchema)
	c.Steps = CloneSteps(d.Steps)
	if d.Provenance != nil {
		p := *d.Provenance
		c.Provenance = &p
	}
	return &c
}

// Patched returns a copy of d with the next version and the target of the
// click or input step at index replaced. d itself is left untouched.
func (d *Definition) Patched(index int, target Target) (*Definition, error) {
	next, err := BumpVersion(d.Version)
	if err != nil {
		return nil, err
	}
	c := d.Clone()
	c.Version = next
	if err := c.SetTarget(index, target); err != nil {
		return nil, err
	}
	return c, nil
}

// SetTarget replaces the target of the click or input step at index. It
// mutates d and is meant for copies the caller owns.
func (d *Definition) SetTarget(index int, target Target) error {
	if index < 0 || index >= len(d.Steps) {
		return fmt.Errorf("step index %d out of range", index)
	}
	target = target.clone()
	switch st := d.Steps[index].(type) {
	case *ClickStep:
		st.Target = target
	case *InputStep:
		st.Target = target
	default:
		return fmt.Errorf("step %d (%s) has no target", index, st.Kind())
	}
	return nil
}

// BumpVersion increments the patch component of a MAJOR.MINOR.PATCH version.
func BumpVersion(version string) (string, error) {
	core, _, _ := strings.Cut(version, "-")
	core, _, _ = strings.Cut(core, "+")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("version %q is not MAJOR.MINOR.PATCH", version)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil || patch < 0 {
		return "", fmt.Errorf("version %q has an invalid patch component", version)
	}
	parts[2] = strconv.Itoa(patch + 1)
	return strings.Join(parts, "."), nil
}
