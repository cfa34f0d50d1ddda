package workflow

import (
	"fmt"
	"maps"
)

// Kind identifies a semantic step variant.
type Kind string

const (
	KindNavigation Kind = "navigation"
	KindClick      Kind = "click"
	KindInput      Kind = "input"
	KindKeypress   Kind = "keypress"
	KindExtract    Kind = "extract"
	KindAgent      Kind = "agent"
)

// DeterministicKinds are the kinds a replay can execute without an agent.
var DeterministicKinds = []Kind{KindNavigation, KindInput, KindClick, KindKeypress, KindExtract}

// Step is a closed sum type over the semantic step variants. Only the types in
// this package implement it; consumers switch over the concrete types.
type Step interface {
	Kind() Kind
	Describe() string
	Wait() *float64
	isStep()
}

// Base holds the fields shared by every step.
type Base struct {
	Description string
	// WaitTime overrides the definition's default wait before this step, in seconds.
	WaitTime *float64
}

func (b Base) Describe() string { return b.Description }
func (b Base) Wait() *float64   { return b.WaitTime }

func (b Base) clone() Base {
	if b.WaitTime != nil {
		w := *b.WaitTime
		b.WaitTime = &w
	}
	return b
}

// Target describes the element a click or input acts on. Text is the primary
// identifying hint; the rest are structural hints used when text fails.
type Target struct {
	Text       Value
	Tag        string
	Role       string
	Attributes map[string]string
}

func (t Target) clone() Target {
	t.Attributes = maps.Clone(t.Attributes)
	return t
}

// HasHints reports whether t carries any structural hint.
func (t Target) HasHints() bool {
	return t.Tag != "" || t.Role != "" || len(t.Attributes) > 0
}

type NavigationStep struct {
	Base
	URL Value
}

type ClickStep struct {
	Base
	Target Target
}

type InputStep struct {
	Base
	Target Target
	Value  Value
}

type KeypressStep struct {
	Base
	Key string
}

// ExtractStep asks the oracle for information on the current page and binds
// the answer to Output.
type ExtractStep struct {
	Base
	Goal   string
	Output string
}

// AgentStep delegates a free-form instruction to the autonomous agent.
type AgentStep struct {
	Base
	Task string
}

func (*NavigationStep) Kind() Kind { return KindNavigation }
func (*ClickStep) Kind() Kind      { return KindClick }
func (*InputStep) Kind() Kind      { return KindInput }
func (*KeypressStep) Kind() Kind   { return KindKeypress }
func (*ExtractStep) Kind() Kind    { return KindExtract }
func (*AgentStep) Kind() Kind      { return KindAgent }

func (*NavigationStep) isStep() {}
func (*ClickStep) isStep()      {}
func (*InputStep) isStep()      {}
func (*KeypressStep) isStep()   {}
func (*ExtractStep) isStep()    {}
func (*AgentStep) isStep()      {}

// CloneStep returns a deep copy of s.
func CloneStep(s Step) Step {
	switch st := s.(type) {
	case *NavigationStep:
		return &NavigationStep{Base: st.Base.clone(), URL: st.URL}
	case *ClickStep:
		return &ClickStep{Base: st.Base.clone(), Target: st.Target.clone()}
	case *InputStep:
		return &InputStep{Base: st.Base.clone(), Target: st.Target.clone(), Value: st.Value}
	case *KeypressStep:
		return &KeypressStep{Base: st.Base.clone(), Key: st.Key}
	case *ExtractStep:
		return &ExtractStep{Base: st.Base.clone(), Goal: st.Goal, Output: st.Output}
	case *AgentStep:
		return &AgentStep{Base: st.Base.clone(), Task: st.Task}
	default:
		panic(fmt.Sprintf("workflow: unknown step type %T", s))
	}
}

// CloneSteps deep-copies a step sequence.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = CloneStep(s)
	}
	return out
}

// Field is a named, addressable value field of a step.
type Field struct {
	Name  string
	Value *Value
}

// Fields lists the value fields of s in a fixed order. Rewriting through the
// returned pointers modifies s.
func Fields(s Step) []Field {
	switch st := s.(type) {
	case *NavigationStep:
		return []Field{{Name: "url", Value: &st.URL}}
	case *ClickStep:
		return []Field{{Name: "target_text", Value: &st.Target.Text}}
	case *InputStep:
		return []Field{
			{Name: "target_text", Value: &st.Target.Text},
			{Name: "value", Value: &st.Value},
		}
	case *KeypressStep, *ExtractStep, *AgentStep:
		return nil
	default:
		panic(fmt.Sprintf("workflow: unknown step type %T", s))
	}
}

// TargetOf returns the target of a click or input step.
func TargetOf(s Step) (Target, bool) {
	switch st := s.(type) {
	case *ClickStep:
		return st.Target, true
	case *InputStep:
		return st.Target, true
	default:
		return Target{}, false
	}
}
