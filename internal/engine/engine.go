// Package engine replays a workflow definition against a live browser
// session, handing unresolvable steps to the healing coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/governance"
	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/observability"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/workflow"
)

// DefaultStepTimeout bounds a step when no timeout is configured.
const DefaultStepTimeout = 2 * time.Minute

// ErrNoOracle is returned by an extract step when no oracle is configured.
var ErrNoOracle = errors.New("no oracle configured")

// ErrNoAgent is returned by an agent step when no agent is configured.
var ErrNoAgent = errors.New("no agent configured")

// State is the state of a step, or of a whole run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateHealing   State = "healing"
	StateAborted   State = "aborted"
)

// Progress is a step state transition.
type Progress struct {
	RunID     string
	StepIndex int
	Kind      workflow.Kind
	State     State
	Err       error
}

// Observer receives every step transition of a run, in order, on the run's
// goroutine.
type Observer func(Progress)

type Options struct {
	StepTimeout time.Duration
	// DefaultWaitTime is used for definitions that declare none, in seconds.
	DefaultWaitTime   float64
	MaxConcurrentRuns int
	MaxPageChars      int
}

// Deps are the collaborators of an Engine. Only Launcher is required.
type Deps struct {
	Launcher browser.Launcher
	Oracle   oracle.Oracle
	Agent    healing.Performer
	// Healer recovers failed steps; nil disables healing.
	Healer *healing.Coordinator
	Policy governance.PolicyEngine
	Events *observability.Logger
	Status *observability.Registry
}

type Engine struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}
	return &Engine{deps: deps, opts: opts, logger: logger.Named("engine"), sleep: sleep}
}

// Result is what a run produced.
type Result struct {
	RunID   string
	Outputs map[string]string
	Records []healing.Record
	// Healed is the patched copy of the definition when healing replaced
	// at least one target, nil otherwise.
	Healed *workflow.Definition
}

// Run executes def with inputs. def is never modified. Once steps have
// started the Result is returned alongside any *RunError, holding what was
// produced until the failure.
func (e *Engine) Run(ctx context.Context, def *workflow.Definition, inputs map[string]string, observe Observer) (*Result, error) {
	runID := uuid.NewString()
	if err := def.Validate(); err != nil {
		return nil, &RunError{RunID: runID, StepIndex: -1, Err: err}
	}
	bound, err := BindInputs(def, inputs)
	if err != nil {
		return nil, &RunError{RunID: runID, StepIndex: -1, Err: err}
	}

	r := &run{
		engine:  e,
		def:     def,
		observe: observe,
		ec: &ExecutionContext{
			RunID:   runID,
			Inputs:  bound,
			Outputs: make(map[string]string),
		},
		log: e.logger.With(zap.String("run_id", runID), zap.String("workflow", def.Name)),
	}
	return r.execute(ctx)
}

type run struct {
	engine  *Engine
	def     *workflow.Definition
	ec      *ExecutionContext
	observe Observer
	session browser.Session
	healed  *workflow.Definition
	log     *zap.Logger
}

func (r *run) notify(i int, state State, err error) {
	r.engine.deps.Events.LogStep(r.ec.RunID, i, string(r.def.Steps[i].Kind()), string(state))
	r.engine.deps.Status.Update(r.ec.RunID, i, string(state))
	if r.observe != nil {
		r.observe(Progress{RunID: r.ec.RunID, StepIndex: i, Kind: r.def.Steps[i].Kind(), State: state, Err: err})
	}
}

func (r *run) execute(ctx context.Context) (res *Result, err error) {
	deps := r.engine.deps
	deps.Status.Start(r.ec.RunID, r.def.Name, len(r.def.Steps))
	deps.Events.LogRun(r.ec.RunID, r.def.Name, string(StateRunning), nil)
	defer func() {
		state := StateSucceeded
		if err != nil {
			state = StateAborted
		}
		deps.Status.Finish(r.ec.RunID, string(state))
		deps.Events.LogRun(r.ec.RunID, r.def.Name, string(state), err)
	}()

	r.session, err = deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, &RunError{RunID: r.ec.RunID, StepIndex: -1, Err: fmt.Errorf("launch browser: %w", err)}
	}
	defer func() {
		if cerr := r.session.Close(); cerr != nil {
			r.log.Warn("failed to close browser session", zap.Error(cerr))
		}
	}()

	for i := range r.def.Steps {
		r.notify(i, StatePending, nil)
	}
	r.log.Info("run started", zap.Int("steps", len(r.def.Steps)))

	for i, step := range r.def.Steps {
		r.ec.Current = i
		if err := r.wait(ctx, i, step); err != nil {
			r.notify(i, StateAborted, err)
			return r.result(), r.fail(i, err)
		}
		if err := r.step(ctx, i, step); err != nil {
			return r.result(), err
		}
	}
	r.log.Info("run succeeded", zap.Int("healed", len(r.ec.Records)))
	return r.result(), nil
}

func (r *run) result() *Result {
	return &Result{
		RunID:   r.ec.RunID,
		Outputs: r.ec.Outputs,
		Records: r.ec.Records,
		Healed:  r.healed,
	}
}

func (r *run) fail(i int, err error) *RunError {
	return &RunError{RunID: r.ec.RunID, StepIndex: i, Kind: r.def.Steps[i].Kind(), Records: r.ec.Records, Err: err}
}

// wait pauses before every step but the first. Cancellation is honoured
// here, at the step boundary.
func (r *run) wait(ctx context.Context, i int, step workflow.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	secs := r.def.DefaultWaitTime
	if secs == 0 {
		secs = r.engine.opts.DefaultWaitTime
	}
	if w := step.Wait(); w != nil {
		secs = *w
	}
	if secs <= 0 {
		return nil
	}
	return r.engine.sleep(ctx, time.Duration(secs*float64(time.Second)))
}

func (r *run) step(ctx context.Context, i int, step workflow.Step) error {
	r.notify(i, StateRunning, nil)

	// An in-flight step is not interrupted by cancellation, only by its own
	// timeout.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.engine.opts.StepTimeout)
	defer cancel()

	a, err := r.prepare(i, step)
	if err == nil {
		err = a.perform(sctx)
	}
	if err == nil {
		r.notify(i, StateSucceeded, nil)
		return nil
	}

	r.notify(i, StateFailed, err)
	failure, healable := healing.Classify(err)
	if !healable || !a.healable() || r.engine.deps.Healer == nil {
		r.notify(i, StateAborted, err)
		r.log.Error("step failed", zap.Int("step", i), zap.String("kind", string(step.Kind())), zap.Error(err))
		return r.fail(i, err)
	}

	r.notify(i, StateHealing, err)
	res, herr := r.engine.deps.Healer.Heal(context.WithoutCancel(ctx), healing.Request{
		RunID:     r.ec.RunID,
		StepIndex: i,
		Step:      step,
		Text:      a.text,
		Value:     a.value,
		Err:       err,
		Failure:   failure,
		Session:   r.session,
		Apply:     a.apply,
		Retry:     a.retry,
		Context:   r.describe(),
	})
	if herr != nil {
		var ex *healing.ExhaustedError
		if errors.As(herr, &ex) {
			r.record(ex.Records)
		}
		r.notify(i, StateAborted, herr)
		return r.fail(i, herr)
	}

	r.record(res.Records)
	if _, ok := step.(*workflow.NavigationStep); !ok {
		r.ec.focused = res.Focused
	}
	if res.Target != nil {
		if err := r.patch(i, *res.Target); err != nil {
			r.log.Warn("could not patch healed target", zap.Int("step", i), zap.Error(err))
		}
	}
	r.notify(i, StateSucceeded, nil)
	return nil
}

func (r *run) record(records []healing.Record) {
	for _, rec := range records {
		r.engine.deps.Events.LogHealing(r.ec.RunID, rec.StepIndex, rec.Strategy, string(rec.Outcome), rec.Detail)
	}
	r.ec.Records = append(r.ec.Records, records...)
}

// patch collects healed targets in one copy of the definition, carrying a
// single version increment however many steps were healed.
func (r *run) patch(i int, target workflow.Target) error {
	if r.healed == nil {
		next, err := workflow.BumpVersion(r.def.Version)
		if err != nil {
			return err
		}
		r.healed = r.def.Clone()
		r.healed.Version = next
	}
	return r.healed.SetTarget(i, target)
}

// describe summarizes the run for the agent.
func (r *run) describe() string {
	s := fmt.Sprintf("Workflow %q", r.def.Name)
	if r.def.Description != "" {
		s += ": " + r.def.Description
	}
	return fmt.Sprintf("%s. Replaying step %d of %d.", s, r.ec.Current+1, len(r.def.Steps))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
