// Package convert turns a raw action trace into semantic workflow steps
// without consulting any reasoning backend.
package convert

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/replay/internal/trace"
	"github.com/rahul/replay/internal/workflow"
)

var kindTable = map[trace.Kind]workflow.Kind{
	trace.KindNavigate:       workflow.KindNavigation,
	trace.KindClickElement:   workflow.KindClick,
	trace.KindTypeText:       workflow.KindInput,
	trace.KindSendKeys:       workflow.KindKeypress,
	trace.KindExtractContent: workflow.KindExtract,
}

// Policy selects the noise filters applied during conversion.
type Policy struct {
	// CollapseDuplicates merges consecutive actions on the same target.
	// Repeated typing into one field keeps the last value.
	CollapseDuplicates bool
	// DropRedundantNavigation drops navigations to the page already open.
	DropRedundantNavigation bool
}

// DefaultPolicy enables every filter.
var DefaultPolicy = Policy{CollapseDuplicates: true, DropRedundantNavigation: true}

// Drop records a trace entry discarded as noise.
type Drop struct {
	Order  int
	Kind   trace.Kind
	Reason string
}

// Result is the output of a conversion.
type Result struct {
	Steps   []workflow.Step
	Dropped []Drop
}

type Converter struct {
	policy Policy
	logger *zap.Logger
}

func New(policy Policy, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{policy: policy, logger: logger.Named("convert")}
}

// Convert maps every entry of t to at most one semantic step. The same trace
// and policy always produce the same steps.
func (c *Converter) Convert(t trace.Trace) (*Result, error) {
	if len(t) == 0 {
		return nil, &ConversionError{Step: -1, Err: ErrEmptyTrace}
	}

	res := &Result{}
	current := ""
	extracts := 0

	drop := func(e trace.Entry, reason string) {
		res.Dropped = append(res.Dropped, Drop{Order: e.Order, Kind: e.Kind, Reason: reason})
		c.logger.Debug("dropped trace entry",
			zap.Int("order", e.Order), zap.String("kind", string(e.Kind)), zap.String("reason", reason))
	}

	for _, e := range t.Sorted() {
		if e.PageURL != "" {
			current = e.PageURL
		}
		kind, ok := kindTable[e.Kind]
		if !ok {
			drop(e, "unmapped action kind")
			continue
		}

		var step workflow.Step
		switch kind {
		case workflow.KindNavigation:
			addr := strings.TrimSpace(e.URL)
			if addr == "" {
				addr = strings.TrimSpace(e.Value)
			}
			if addr == "" {
				drop(e, "navigation without url")
				continue
			}
			if c.policy.DropRedundantNavigation && sameURL(addr, current) {
				drop(e, "already on url")
				continue
			}
			current = addr
			step = &workflow.NavigationStep{
				Base: workflow.Base{Description: "Navigate to " + addr},
				URL:  workflow.Literal(addr),
			}

		case workflow.KindClick:
			target, ok := descriptor(e.Target)
			if !ok {
				drop(e, "empty target descriptor")
				continue
			}
			step = &workflow.ClickStep{
				Base:   workflow.Base{Description: fmt.Sprintf("Click %q", target.Text.Literal)},
				Target: target,
			}

		case workflow.KindInput:
			target, ok := descriptor(e.Target)
			if !ok {
				drop(e, "empty target descriptor")
				continue
			}
			if e.Value == "" {
				drop(e, "input without value")
				continue
			}
			step = &workflow.InputStep{
				Base:   workflow.Base{Description: inputDescription(e.Value, target.Text.Literal)},
				Target: target,
				Value:  workflow.Literal(e.Value),
			}

		case workflow.KindKeypress:
			key := strings.TrimSpace(e.Value)
			if key == "" {
				drop(e, "keypress without key")
				continue
			}
			step = &workflow.KeypressStep{
				Base: workflow.Base{Description: "Press " + key},
				Key:  key,
			}

		case workflow.KindExtract:
			goal := collapseSpace(e.Value)
			if goal == "" {
				drop(e, "extraction without goal")
				continue
			}
			extracts++
			output := strings.TrimSpace(e.Output)
			if !workflow.ValidName(output) {
				output = fmt.Sprintf("extracted_%d", extracts)
			}
			step = &workflow.ExtractStep{
				Base:   workflow.Base{Description: "Extract " + goal},
				Goal:   goal,
				Output: output,
			}
		}

		if c.policy.CollapseDuplicates && len(res.Steps) > 0 && collapse(res.Steps[len(res.Steps)-1], step) {
			drop(e, "duplicate of previous action")
			continue
		}
		res.Steps = append(res.Steps, step)
	}

	if len(res.Steps) == 0 {
		return nil, &ConversionError{Step: -1, Err: ErrNoActionableEntries}
	}
	if err := Check(res.Steps); err != nil {
		return nil, err
	}
	c.logger.Info("converted trace",
		zap.Int("entries", len(t)), zap.Int("steps", len(res.Steps)), zap.Int("dropped", len(res.Dropped)))
	return res, nil
}

// Check verifies that steps form a deterministic step set: no agent steps,
// and non-empty target text on every click and input.
func Check(steps []workflow.Step) error {
	for i, s := range steps {
		switch st := s.(type) {
		case *workflow.NavigationStep, *workflow.KeypressStep, *workflow.ExtractStep:
		case *workflow.ClickStep:
			if blankTarget(st.Target) {
				return &ConversionError{Step: i, Reason: "click without target text", Err: ErrInvalidStepSet}
			}
		case *workflow.InputStep:
			if blankTarget(st.Target) {
				return &ConversionError{Step: i, Reason: "input without target text", Err: ErrInvalidStepSet}
			}
		case *workflow.AgentStep:
			return &ConversionError{Step: i, Reason: "agent step in deterministic output", Err: ErrInvalidStepSet}
		default:
			return &ConversionError{Step: i, Reason: fmt.Sprintf("unsupported step %T", s), Err: ErrInvalidStepSet}
		}
	}
	return nil
}

func blankTarget(t workflow.Target) bool {
	return !t.Text.IsRef() && strings.TrimSpace(t.Text.Literal) == ""
}

// collapse reports whether next repeats prev. When next retypes into the
// same field, prev takes over its value.
func collapse(prev, next workflow.Step) bool {
	switch n := next.(type) {
	case *workflow.ClickStep:
		p, ok := prev.(*workflow.ClickStep)
		return ok && p.Target.Text == n.Target.Text
	case *workflow.InputStep:
		p, ok := prev.(*workflow.InputStep)
		if !ok || p.Target.Text != n.Target.Text {
			return false
		}
		p.Value = n.Value
		p.Description = n.Description
		return true
	case *workflow.ExtractStep:
		p, ok := prev.(*workflow.ExtractStep)
		return ok && p.Goal == n.Goal
	}
	return false
}

func inputDescription(value, target string) string {
	return fmt.Sprintf("Type %q into %q", value, target)
}

// sameURL compares addresses ignoring scheme/host case and a trailing slash.
func sameURL(a, b string) bool {
	if b == "" {
		return false
	}
	return normalizeURL(a) == normalizeURL(b)
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
