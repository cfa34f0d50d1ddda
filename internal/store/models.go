package store

import (
	"errors"
	"time"

	"github.com/rahul/replay/internal/engine"
	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/workflow"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusAborted   = "aborted"
)

// RunRecord is one finished run.
type RunRecord struct {
	ID       string
	Workflow string
	Version  string
	Status   string
	// StepIndex is the failed step, -1 for runs that succeeded or failed
	// before their first step.
	StepIndex  int
	Error      string
	Inputs     map[string]string
	Outputs    map[string]string
	Records    []healing.Record
	StartedAt  time.Time
	FinishedAt time.Time
}

// VersionRecord is an emitted version of a workflow definition.
type VersionRecord struct {
	Workflow  string
	Version   string
	Origin    string
	Document  []byte
	CreatedAt time.Time
}

// NewRunRecord summarizes a run of def returned by the engine.
func NewRunRecord(def *workflow.Definition, inputs map[string]string, res *engine.Result, runErr error, started, finished time.Time) RunRecord {
	rec := RunRecord{
		Workflow:   def.Name,
		Version:    def.Version,
		Status:     StatusSucceeded,
		StepIndex:  -1,
		Inputs:     inputs,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if res != nil {
		rec.ID = res.RunID
		rec.Outputs = res.Outputs
		rec.Records = res.Records
	}
	if runErr != nil {
		rec.Status = StatusAborted
		rec.Error = runErr.Error()
		var re *engine.RunError
		if errors.As(runErr, &re) {
			rec.ID = re.RunID
			rec.StepIndex = re.StepIndex
			if rec.Records == nil {
				rec.Records = re.Records
			}
		}
	}
	return rec
}
