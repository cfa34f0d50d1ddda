package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/replay/internal/convert"
	"github.com/rahul/replay/internal/generator"
	"github.com/rahul/replay/internal/trace"
	"github.com/rahul/replay/internal/variables"
	"github.com/rahul/replay/internal/workflow"
)

type convertOptions struct {
	name             string
	description      string
	task             string
	out              string
	defaultWait      float64
	extractVariables bool
	keepDuplicates   bool
}

func newConvertCommand(a *cli) *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert <trace.json>",
		Short: "Convert a recorded action trace into a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "workflow name (derived from the task when empty)")
	f.StringVar(&opts.description, "description", "", "workflow description")
	f.StringVar(&opts.task, "task", "", "instruction the recorded session was carrying out")
	f.StringVarP(&opts.out, "out", "o", "", "output file; .json selects JSON, anything else YAML (default stdout)")
	f.Float64Var(&opts.defaultWait, "default-wait", 0, "seconds to wait before each step after the first")
	f.BoolVar(&opts.extractVariables, "extract-variables", false, "ask the oracle to parameterize literals")
	f.BoolVar(&opts.keepDuplicates, "keep-duplicates", false, "keep consecutive actions on the same target")
	return cmd
}

func (a *cli) convert(cmd *cobra.Command, tracePath string, opts convertOptions) error {
	t, err := trace.LoadFile(tracePath)
	if err != nil {
		return err
	}

	policy := convert.DefaultPolicy
	policy.CollapseDuplicates = !opts.keepDuplicates

	var extractor *variables.Extractor
	if opts.extractVariables {
		model, err := newModel(a.cfg)
		if err != nil {
			return fmt.Errorf("variable extraction needs a model: %w", err)
		}
		extractor = variables.New(a.newOracle(model), a.logger)
	}

	gen := generator.New(convert.New(policy, a.logger), extractor, a.logger)
	res, err := gen.Generate(cmd.Context(), generator.Request{
		Name:             opts.name,
		Description:      opts.description,
		Task:             opts.task,
		Trace:            t,
		DefaultWaitTime:  opts.defaultWait,
		ExtractVariables: opts.extractVariables,
	})
	if err != nil {
		return err
	}
	for _, d := range res.Dropped {
		a.logger.Debug("Dropped trace entry", zap.Int("order", d.Order), zap.String("kind", string(d.Kind)), zap.String("reason", d.Reason))
	}
	for _, r := range res.Rejected {
		a.logger.Warn("Rejected variable", zap.String("name", r.Name), zap.String("reason", r.Reason))
	}

	if err := a.saveVersion(cmd, res.Definition); err != nil {
		a.logger.Warn("Could not record workflow version", zap.Error(err))
	}
	return writeDefinition(cmd.OutOrStdout(), opts.out, res.Definition)
}

// writeDefinition writes d to path, or as YAML to w when path is empty.
func writeDefinition(w io.Writer, path string, d *workflow.Definition) error {
	format := workflow.FormatYAML
	if path != "" {
		format = workflow.FormatFromPath(path)
	}
	doc, err := workflow.Marshal(d, format)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = w.Write(doc)
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	return nil
}

// saveVersion records d in the run history when one is configured.
func (a *cli) saveVersion(cmd *cobra.Command, d *workflow.Definition) error {
	h, err := a.openStore()
	if err != nil || h == nil {
		return err
	}
	defer h.Close()
	return h.SaveVersion(cmd.Context(), d)
}
