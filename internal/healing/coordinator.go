// Package healing recovers a replay from a step whose target could not be
// resolved, escalating through an ordered list of strategies.
package healing

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/workflow"
)

// DefaultAttemptTimeout bounds one strategy attempt when none is configured.
const DefaultAttemptTimeout = 90 * time.Second

// Request describes the failed step.
type Request struct {
	RunID     string
	StepIndex int
	Step      workflow.Step
	// Text is the target text or URL the step resolved to at run time.
	Text string
	// Value is the resolved value of an input step.
	Value   string
	Err     error
	Failure Failure
	Session browser.Session
	// Apply performs the step's action on a re-identified element.
	Apply func(ctx context.Context, el browser.Element) error
	// Retry repeats a failed navigation.
	Retry func(ctx context.Context) error
	// Context describes the run to the agent.
	Context string
}

// Resolution is a successful recovery.
type Resolution struct {
	Strategy string
	Detail   string
	// Element is the element the action was applied to; nil when the agent
	// performed the step.
	Element *browser.Element
	// Target is the replacement descriptor for the step, when one was found
	// and differs from the original.
	Target *workflow.Target
	// Focused is the element holding focus after recovery.
	Focused *browser.Element
	Records []Record
}

// Strategy is one level of the escalation ladder.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*Resolution, error)
}

type Coordinator struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *zap.Logger
}

// New returns a coordinator trying strategies in the given order, each
// bounded by timeout.
func New(timeout time.Duration, logger *zap.Logger, strategies ...Strategy) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Coordinator{strategies: strategies, timeout: timeout, logger: logger.Named("healing")}
}

// Heal walks the ladder until a strategy recovers the step. Every attempt
// is recorded; when all fail the trail is returned in an *ExhaustedError.
func (c *Coordinator) Heal(ctx context.Context, req Request) (*Resolution, error) {
	if req.Failure == "" {
		req.Failure, _ = Classify(req.Err)
	}
	log := c.logger.With(zap.String("run_id", req.RunID), zap.Int("step", req.StepIndex), zap.String("failure", string(req.Failure)))

	var records []Record
	for i, s := range c.strategies {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := s.Attempt(actx, req)
		cancel()

		rec := Record{StepIndex: req.StepIndex, Failure: req.Failure, Strategy: s.Name()}
		if err == nil {
			rec.Outcome = OutcomeRecovered
			rec.Detail = res.Detail
			records = append(records, rec)
			res.Strategy = s.Name()
			res.Records = records
			log.Info("step recovered", zap.String("strategy", s.Name()), zap.String("detail", res.Detail))
			return res, nil
		}

		rec.Outcome = OutcomeEscalated
		if i == len(c.strategies)-1 {
			rec.Outcome = OutcomeAborted
		}
		rec.Detail = err.Error()
		records = append(records, rec)
		log.Warn("healing level failed", zap.String("strategy", s.Name()), zap.Error(err))
	}
	return nil, &ExhaustedError{StepIndex: req.StepIndex, Records: records}
}

// patchTarget derives the descriptor that found el. A referenced text stays
// a reference so the step remains parameterized. It returns nil when
// nothing changed.
func patchTarget(step workflow.Step, text string, el browser.Element) *workflow.Target {
	orig, ok := workflow.TargetOf(step)
	if !ok {
		return nil
	}
	next := workflow.Target{
		Text:       orig.Text,
		Tag:        el.Tag,
		Role:       el.Role,
		Attributes: workflow.StableAttributes(el.Attributes),
	}
	if !orig.Text.IsRef() && text != "" {
		next.Text = workflow.Literal(text)
	}
	if next.Text == orig.Text && next.Tag == orig.Tag && next.Role == orig.Role && maps.Equal(next.Attributes, orig.Attributes) {
		return nil
	}
	return &next
}
