package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/replay/internal/workflow"
)

// RunOutcome is the result of one run of a batch.
type RunOutcome struct {
	Inputs map[string]string
	Result *Result
	Err    error
}

// RunAll runs def once per input set, at most MaxConcurrentRuns at a time.
// Each run gets its own session; a failing run does not stop the others.
// Outcomes are in the order of sets. observe may be called from several
// runs at once.
func (e *Engine) RunAll(ctx context.Context, def *workflow.Definition, sets []map[string]string, observe Observer) []RunOutcome {
	out := make([]RunOutcome, len(sets))

	var g errgroup.Group
	g.SetLimit(e.opts.MaxConcurrentRuns)
	e.logger.Info("starting batch", zap.String("workflow", def.Name), zap.Int("runs", len(sets)), zap.Int("concurrency", e.opts.MaxConcurrentRuns))

	for i, inputs := range sets {
		g.Go(func() error {
			res, err := e.Run(ctx, def, inputs, observe)
			out[i] = RunOutcome{Inputs: inputs, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
