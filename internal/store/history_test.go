package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/replay/internal/engine"
	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/workflow"
)

func newStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func definition(version string) *workflow.Definition {
	return &workflow.Definition{
		Name:        "github search",
		Version:     version,
		InputSchema: []workflow.InputField{{Name: "q", Type: workflow.TypeString, Required: true}},
		Steps: []workflow.Step{
			&workflow.NavigationStep{URL: workflow.Literal("https://github.com")},
			&workflow.InputStep{Target: workflow.Target{Text: workflow.Literal("Search")}, Value: workflow.Ref("q")},
		},
		Provenance: &workflow.Provenance{Origin: workflow.OriginGeneratedDeterministic},
	}
}

func TestHistoryStore_Runs(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	trail := []healing.Record{
		{StepIndex: 1, Failure: healing.FailureNoMatch, Strategy: healing.StrategyRelaxedMatch, Outcome: healing.OutcomeEscalated, Detail: "no element"},
		{StepIndex: 1, Failure: healing.FailureNoMatch, Strategy: healing.StrategyOracleReidentify, Outcome: healing.OutcomeRecovered},
	}
	require.NoError(t, h.AddRun(ctx, RunRecord{
		ID: "run-1", Workflow: "github search", Version: "1.0.0", Status: StatusSucceeded, StepIndex: -1,
		Inputs: map[string]string{"q": "playwright"}, Outputs: map[string]string{"stars": "70k"},
		Records: trail, StartedAt: started, FinishedAt: started.Add(3 * time.Second),
	}))
	require.NoError(t, h.AddRun(ctx, RunRecord{
		ID: "run-2", Workflow: "github search", Version: "1.0.1", Status: StatusAborted, StepIndex: 2, Error: "boom",
		StartedAt: started.Add(time.Minute), FinishedAt: started.Add(time.Minute),
	}))
	require.NoError(t, h.AddRun(ctx, RunRecord{
		ID: "run-3", Workflow: "login", Version: "1.0.0", Status: StatusSucceeded, StepIndex: -1,
		StartedAt: started.Add(2 * time.Minute), FinishedAt: started.Add(2 * time.Minute),
	}))

	got, err := h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, map[string]string{"q": "playwright"}, got.Inputs)
	assert.Equal(t, map[string]string{"stars": "70k"}, got.Outputs)
	assert.Equal(t, trail, got.Records)
	assert.WithinDuration(t, started, got.StartedAt, time.Second)
	assert.WithinDuration(t, started.Add(3*time.Second), got.FinishedAt, time.Second)

	runs, err := h.ListRuns(ctx, "github search", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[0].StepIndex)
	assert.Equal(t, map[string]string{}, runs[0].Inputs)

	all, err := h.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "run-3", all[0].ID)

	_, err = h.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, h.AddRun(ctx, RunRecord{ID: "run-1", Workflow: "x", Version: "1", Status: StatusSucceeded}), "duplicate id")
	assert.Error(t, h.AddRun(ctx, RunRecord{}))
}

func TestHistoryStore_Versions(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()

	v1 := definition("1.0.0")
	v2, err := v1.Patched(1, workflow.Target{Text: workflow.Literal("Search GitHub"), Tag: "input"})
	require.NoError(t, err)

	require.NoError(t, h.SaveVersion(ctx, v1))
	require.NoError(t, h.SaveVersion(ctx, v2))
	assert.Error(t, h.SaveVersion(ctx, v2), "versions are immutable")

	latest, err := h.GetVersion(ctx, "github search", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", latest.Version)
	assert.Equal(t, workflow.Literal("Search GitHub"), latest.Steps[1].(*workflow.InputStep).Target.Text)

	first, err := h.GetVersion(ctx, "github search", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, workflow.Literal("Search"), first.Steps[1].(*workflow.InputStep).Target.Text)

	_, err = h.GetVersion(ctx, "github search", "9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)

	versions, err := h.ListVersions(ctx, "github search")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, []string{versions[0].Version, versions[1].Version})
	assert.Equal(t, string(workflow.OriginGeneratedDeterministic), versions[0].Origin)
	assert.NotEmpty(t, versions[0].Document)
}

func TestNewRunRecord(t *testing.T) {
	def := definition("1.0.0")
	now := time.Now()
	trail := []healing.Record{{StepIndex: 1, Strategy: healing.StrategyAgentFallback, Outcome: healing.OutcomeAborted}}

	ok := NewRunRecord(def, map[string]string{"q": "x"}, &engine.Result{RunID: "r1", Outputs: map[string]string{"a": "b"}}, nil, now, now)
	assert.Equal(t, "r1", ok.ID)
	assert.Equal(t, StatusSucceeded, ok.Status)
	assert.Equal(t, -1, ok.StepIndex)
	assert.Equal(t, "github search", ok.Workflow)

	runErr := &engine.RunError{RunID: "r2", StepIndex: 1, Kind: workflow.KindInput, Records: trail, Err: errors.New("healing exhausted")}
	failed := NewRunRecord(def, nil, nil, runErr, now, now)
	assert.Equal(t, "r2", failed.ID)
	assert.Equal(t, StatusAborted, failed.Status)
	assert.Equal(t, 1, failed.StepIndex)
	assert.Equal(t, trail, failed.Records)
	assert.Contains(t, failed.Error, "healing exhausted")
}
