package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rahul/replay/internal/engine"
	"github.com/rahul/replay/internal/store"
	"github.com/rahul/replay/internal/workflow"
)

type runOptions struct {
	inputs     []string
	inputsFile string
	out        string
}

func newRunCommand(a *cli) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Replay a workflow definition in a fresh browser session",
		Long: `Replay a workflow definition. With --inputs the workflow runs once per
input set, each in its own session; --input values apply to every set
unless the set overrides them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.inputs, "input", "i", nil, "workflow input as name=value (repeatable)")
	f.StringVar(&opts.inputsFile, "inputs", "", "yaml or json file holding a list of input sets")
	f.StringVarP(&opts.out, "out", "o", "", "where to write a healed definition (default next to the workflow)")
	return cmd
}

func (a *cli) run(cmd *cobra.Command, path string, opts runOptions) error {
	def, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}
	base, err := parseInputs(opts.inputs)
	if err != nil {
		return err
	}
	sets := []map[string]string{base}
	if opts.inputsFile != "" {
		if sets, err = loadInputSets(opts.inputsFile, base); err != nil {
			return err
		}
	}

	e, status, err := a.newEngine()
	if err != nil {
		return err
	}
	h, err := a.openStore()
	if err != nil {
		return err
	}
	if h != nil {
		defer h.Close()
	}

	observe := func(p engine.Progress) {
		if p.Err != nil {
			a.logger.Warn("Step failed", zap.String("run_id", p.RunID), zap.Int("step", p.StepIndex),
				zap.String("state", string(p.State)), zap.Error(p.Err))
		}
	}

	started := time.Now()
	var outcomes []engine.RunOutcome
	if len(sets) == 1 {
		res, err := e.Run(cmd.Context(), def, sets[0], observe)
		outcomes = []engine.RunOutcome{{Inputs: sets[0], Result: res, Err: err}}
	} else {
		outcomes = e.RunAll(cmd.Context(), def, sets, observe)
	}
	finished := time.Now()

	var failed []error
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Err)
		}
		if h != nil {
			rec := store.NewRunRecord(def, o.Inputs, o.Result, o.Err, started, finished)
			if rec.ID != "" {
				if err := h.AddRun(cmd.Context(), rec); err != nil {
					a.logger.Warn("Could not record run", zap.String("run_id", rec.ID), zap.Error(err))
				}
			}
		}
		if o.Result != nil && o.Result.Healed != nil {
			a.keepHealed(cmd, h, path, opts.out, o.Result.Healed)
		}
	}

	if err := status.Render(cmd.OutOrStdout()); err != nil {
		return err
	}
	switch {
	case len(failed) == 0:
		return nil
	case len(outcomes) == 1:
		return failed[0]
	default:
		return fmt.Errorf("%d of %d runs failed", len(failed), len(outcomes))
	}
}

// keepHealed writes a healed definition and records it as a new version.
func (a *cli) keepHealed(cmd *cobra.Command, h *store.HistoryStore, src, out string, healed *workflow.Definition) {
	if out == "" {
		out = healedPath(src, healed.Version)
	}
	if err := writeDefinition(cmd.OutOrStdout(), out, healed); err != nil {
		a.logger.Error("Could not write healed workflow", zap.String("path", out), zap.Error(err))
	} else {
		a.logger.Info("Wrote healed workflow", zap.String("path", out), zap.String("version", healed.Version))
	}
	if h != nil {
		if err := h.SaveVersion(cmd.Context(), healed); err != nil {
			a.logger.Warn("Could not record healed version", zap.Error(err))
		}
	}
}

// healedPath places version next to src: search.yaml -> search-1.0.1.yaml.
func healedPath(src, version string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "-" + version + ext
}

// parseInputs reads name=value pairs. Values may contain '='.
func parseInputs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid input %q, expected name=value", p)
		}
		out[name] = value
	}
	return out, nil
}

// loadInputSets reads a list of input sets, each layered over base.
func loadInputSets(path string, base map[string]string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	var raw []map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode inputs %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("inputs %s holds no input sets", path)
	}
	sets := make([]map[string]string, len(raw))
	for i, r := range raw {
		set := make(map[string]string, len(base)+len(r))
		maps.Copy(set, base)
		maps.Copy(set, r)
		sets[i] = set
	}
	return sets, nil
}
