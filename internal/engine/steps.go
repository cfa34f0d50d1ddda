package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/replay/internal/agent"
	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/governance"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/resolve"
	"github.com/rahul/replay/internal/workflow"
)

// action is a step with its variables substituted.
type action struct {
	// text is the URL or target text, value the text typed by an input.
	text    string
	value   string
	perform func(ctx context.Context) error
	// apply acts on an element found by healing; retry repeats a
	// navigation. At most one is set.
	apply func(ctx context.Context, el browser.Element) error
	retry func(ctx context.Context) error
}

func (a *action) healable() bool {
	return a != nil && (a.apply != nil || a.retry != nil)
}

// prepare substitutes the variables of step. A reference that resolves to
// nothing fails here, before the page is touched.
func (r *run) prepare(i int, step workflow.Step) (*action, error) {
	switch st := step.(type) {
	case *workflow.NavigationStep:
		u, err := r.ec.resolve(i, "url", st.URL)
		if err != nil {
			return nil, err
		}
		a := &action{text: u}
		a.retry = func(ctx context.Context) error { return r.navigate(ctx, u) }
		a.perform = func(ctx context.Context) error {
			if err := governance.Check(ctx, r.engine.deps.Policy, governance.Request{
				Tool:  governance.ToolNavigate,
				URL:   u,
				RunID: r.ec.RunID,
			}); err != nil {
				return err
			}
			return r.navigate(ctx, u)
		}
		return a, nil

	case *workflow.ClickStep:
		text, err := r.ec.resolve(i, "target_text", st.Target.Text)
		if err != nil {
			return nil, err
		}
		a := &action{text: text}
		a.apply = func(ctx context.Context, el browser.Element) error {
			if err := r.session.Click(ctx, el); err != nil {
				return err
			}
			r.ec.focused = &el
			return nil
		}
		a.perform = func(ctx context.Context) error { return r.onTarget(ctx, text, a.apply) }
		return a, nil

	case *workflow.InputStep:
		text, err := r.ec.resolve(i, "target_text", st.Target.Text)
		if err != nil {
			return nil, err
		}
		value, err := r.ec.resolve(i, "value", st.Value)
		if err != nil {
			return nil, err
		}
		a := &action{text: text, value: value}
		a.apply = func(ctx context.Context, el browser.Element) error {
			if err := r.session.Type(ctx, el, value); err != nil {
				return err
			}
			r.ec.focused = &el
			return nil
		}
		a.perform = func(ctx context.Context) error { return r.onTarget(ctx, text, a.apply) }
		return a, nil

	case *workflow.KeypressStep:
		return &action{text: st.Key, perform: func(ctx context.Context) error {
			return r.session.SendKey(ctx, r.ec.focused, st.Key)
		}}, nil

	case *workflow.ExtractStep:
		return &action{text: st.Goal, perform: func(ctx context.Context) error {
			return r.extract(ctx, i, st)
		}}, nil

	case *workflow.AgentStep:
		return &action{text: st.Task, perform: func(ctx context.Context) error {
			return r.delegate(ctx, st)
		}}, nil
	}
	return nil, fmt.Errorf("unsupported step kind %s", step.Kind())
}

func (r *run) navigate(ctx context.Context, u string) error {
	if err := r.session.Navigate(ctx, u); err != nil {
		return err
	}
	if err := r.session.WaitReady(ctx); err != nil {
		return &browser.NavigationError{URL: u, Err: err}
	}
	r.ec.focused = nil
	return nil
}

// onTarget resolves text on the live page and applies the action to the
// single match.
func (r *run) onTarget(ctx context.Context, text string, apply func(context.Context, browser.Element) error) error {
	els, err := r.session.Elements(ctx)
	if err != nil {
		return err
	}
	el, err := resolve.Match(els, text)
	if err != nil {
		return err
	}
	return apply(ctx, el)
}

func (r *run) extract(ctx context.Context, i int, st *workflow.ExtractStep) error {
	o := r.engine.deps.Oracle
	if o == nil {
		return ErrNoOracle
	}
	html, err := r.session.Content(ctx)
	if err != nil {
		return err
	}
	u, err := r.session.URL(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	value, err := o.Extract(ctx, oracle.ExtractRequest{
		Goal: st.Goal,
		Page: oracle.PageText(html, u, r.engine.opts.MaxPageChars),
	})
	r.engine.deps.Events.LogOracle(r.ec.RunID, i, "extract", time.Since(start), err)
	if err != nil {
		return err
	}
	r.ec.Outputs[st.Output] = value
	return nil
}

func (r *run) delegate(ctx context.Context, st *workflow.AgentStep) error {
	a := r.engine.deps.Agent
	if a == nil {
		return ErrNoAgent
	}
	out, err := a.Perform(ctx, r.session, agent.Task{
		Instruction: st.Task,
		Context:     r.describe(),
		RunID:       r.ec.RunID,
	})
	if err != nil {
		return err
	}
	r.ec.focused = out.Focused
	return nil
}
