package healing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/replay/internal/agent"
	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/resolve"
	"github.com/rahul/replay/internal/workflow"
)

// Strategy names, in escalation order.
const (
	StrategyRelaxedMatch     = "relaxed-match"
	StrategyOracleReidentify = "oracle-reidentify"
	StrategyAgentFallback    = "agent-fallback"
)

// Default returns the standard ladder: relaxed re-match, oracle-assisted
// re-identification, then the autonomous agent. A nil oracle or agent makes
// its level fail without being skipped.
func Default(o oracle.Oracle, a Performer, maxPageChars int) []Strategy {
	return []Strategy{
		RelaxedMatch{},
		&OracleReidentify{Oracle: o, MaxPageChars: maxPageChars},
		&AgentFallback{Agent: a},
	}
}

// RelaxedMatch matches on structural hints. A failed navigation is retried
// instead.
type RelaxedMatch struct{}

func (RelaxedMatch) Name() string { return StrategyRelaxedMatch }

func (RelaxedMatch) Attempt(ctx context.Context, req Request) (*Resolution, error) {
	if _, ok := req.Step.(*workflow.NavigationStep); ok {
		if req.Retry == nil {
			return nil, ErrNotApplicable
		}
		if err := req.Retry(ctx); err != nil {
			return nil, fmt.Errorf("retry navigation: %w", err)
		}
		return &Resolution{Detail: "navigation retried"}, nil
	}

	target, ok := workflow.TargetOf(req.Step)
	if !ok || req.Apply == nil {
		return nil, ErrNotApplicable
	}
	els, err := req.Session.Elements(ctx)
	if err != nil {
		return nil, err
	}
	el, via, err := resolve.Relaxed(els, req.Text, target)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(ctx, el); err != nil {
		return nil, fmt.Errorf("apply to %s: %w", el, err)
	}
	return &Resolution{
		Detail:  fmt.Sprintf("matched %s by %s", el, via),
		Element: &el,
		Target:  patchTarget(req.Step, uniqueText(els, el.Text, el), el),
		Focused: &el,
	}, nil
}

// OracleReidentify asks the oracle which element now plays the role of the
// missing one. The oracle is consulted once per attempt.
type OracleReidentify struct {
	Oracle       oracle.Oracle
	MaxPageChars int
}

func (*OracleReidentify) Name() string { return StrategyOracleReidentify }

// maxCandidates bounds the element names sent to the oracle.
const maxCandidates = 200

func (s *OracleReidentify) Attempt(ctx context.Context, req Request) (*Resolution, error) {
	target, ok := workflow.TargetOf(req.Step)
	if !ok || req.Apply == nil {
		return nil, ErrNotApplicable
	}
	if s.Oracle == nil {
		return nil, errors.New("no oracle configured")
	}

	els, err := req.Session.Elements(ctx)
	if err != nil {
		return nil, err
	}
	html, err := req.Session.Content(ctx)
	if err != nil {
		return nil, err
	}
	u, _ := req.Session.URL(ctx)

	desc, err := s.Oracle.Reidentify(ctx, oracle.ReidentifyRequest{
		Action:      string(req.Step.Kind()),
		Description: req.Step.Describe(),
		Text:        req.Text,
		Tag:         target.Tag,
		Role:        target.Role,
		Page:        oracle.PageText(html, u, s.MaxPageChars),
		Candidates:  candidates(els),
	})
	if err != nil {
		return nil, err
	}

	el, err := resolve.Match(els, desc.Text)
	if err != nil {
		el, _, err = resolve.Relaxed(els, desc.Text, workflow.Target{Tag: desc.Tag, Role: desc.Role})
		if err != nil {
			return nil, fmt.Errorf("oracle suggested %q: %w", desc.Text, err)
		}
	}
	if err := req.Apply(ctx, el); err != nil {
		return nil, fmt.Errorf("apply to %s: %w", el, err)
	}
	return &Resolution{
		Detail:  fmt.Sprintf("oracle re-identified %q as %s", req.Text, el),
		Element: &el,
		Target:  patchTarget(req.Step, uniqueText(els, desc.Text, el), el),
		Focused: &el,
	}, nil
}

// uniqueText returns text when the primary matcher resolves it to el and
// nothing else. Otherwise it returns "" and the patch keeps the recorded
// text, leaving el to the structural hints.
func uniqueText(els []browser.Element, text string, el browser.Element) string {
	got, err := resolve.Match(els, text)
	if err != nil || got.Index != el.Index {
		return ""
	}
	return text
}

func candidates(els []browser.Element) []string {
	seen := make(map[string]bool)
	var out []string
	for _, el := range resolve.Usable(els) {
		name := strings.TrimSpace(el.Text)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == maxCandidates {
			break
		}
	}
	return out
}

// Performer carries out a single instruction on a live session.
type Performer interface {
	Perform(ctx context.Context, session browser.Session, task agent.Task) (*agent.Outcome, error)
}

// AgentFallback hands the step to the autonomous agent.
type AgentFallback struct {
	Agent Performer
}

func (*AgentFallback) Name() string { return StrategyAgentFallback }

func (s *AgentFallback) Attempt(ctx context.Context, req Request) (*Resolution, error) {
	if s.Agent == nil {
		return nil, errors.New("no agent configured")
	}
	out, err := s.Agent.Perform(ctx, req.Session, agent.Task{
		Instruction: Instruction(req.Step, req.Text, req.Value),
		Context:     req.Context,
		RunID:       req.RunID,
	})
	if err != nil {
		return nil, err
	}
	return &Resolution{Detail: "agent: " + out.Summary, Focused: out.Focused}, nil
}

// Instruction phrases a step as a task for the agent. text is the resolved
// URL or target text, value the resolved input value.
func Instruction(step workflow.Step, text, value string) string {
	switch st := step.(type) {
	case *workflow.NavigationStep:
		return fmt.Sprintf("Open the page %s.", text)
	case *workflow.ClickStep:
		return fmt.Sprintf("Click the element labelled %q.%s", text, hint(st.Description))
	case *workflow.InputStep:
		return fmt.Sprintf("Type %q into the field labelled %q.%s", value, text, hint(st.Description))
	}
	return step.Describe()
}

func hint(desc string) string {
	if desc == "" {
		return ""
	}
	return " The recorded step was: " + desc
}
