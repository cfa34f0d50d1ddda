// Package generator builds workflow definitions from recorded traces.
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/replay/internal/convert"
	"github.com/rahul/replay/internal/trace"
	"github.com/rahul/replay/internal/variables"
	"github.com/rahul/replay/internal/workflow"
)

type Request struct {
	Name        string
	Description string
	// Task is the instruction the recorded session was carrying out.
	Task            string
	Trace           trace.Trace
	DefaultWaitTime float64
	// ExtractVariables enables the oracle-backed parameterization pass.
	ExtractVariables bool
}

type Result struct {
	Definition *workflow.Definition
	Dropped    []convert.Drop
	Rejected   []variables.Rejection
}

type Generator struct {
	converter *convert.Converter
	extractor *variables.Extractor
	logger    *zap.Logger
}

func New(converter *convert.Converter, extractor *variables.Extractor, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{converter: converter, extractor: extractor, logger: logger.Named("generator")}
}

// Generate converts req.Trace and, when enabled, parameterizes the result.
// Conversion and validation failures are returned without a partial result.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	conv, err := g.converter.Convert(req.Trace)
	if err != nil {
		return nil, err
	}

	res := &Result{Dropped: conv.Dropped}
	steps := conv.Steps
	var schema []workflow.InputField
	if req.ExtractVariables && g.extractor != nil {
		ext := g.extractor.Extract(ctx, steps, req.Task, nil)
		steps, schema, res.Rejected = ext.Steps, ext.Schema, ext.Rejected
	}

	d := &workflow.Definition{
		Name:            definitionName(req),
		Description:     req.Description,
		Version:         workflow.DefaultVersion,
		DefaultWaitTime: req.DefaultWaitTime,
		InputSchema:     schema,
		Steps:           steps,
		Provenance: &workflow.Provenance{
			Origin:     workflow.OriginGeneratedDeterministic,
			SourceTask: req.Task,
		},
	}
	if d.Description == "" && req.Task != "" {
		d.Description = "Replays: " + req.Task
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("generated workflow is invalid: %w", err)
	}
	res.Definition = d

	g.logger.Info("generated workflow",
		zap.String("name", d.Name), zap.Int("steps", len(d.Steps)), zap.Int("inputs", len(d.InputSchema)))
	return res, nil
}

func definitionName(req Request) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	task := strings.Join(strings.Fields(req.Task), " ")
	if task == "" {
		return "recorded workflow"
	}
	if r := []rune(task); len(r) > 60 {
		return string(r[:60])
	}
	return task
}
