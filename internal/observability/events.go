package observability

import (
	"time"

	"go.uber.org/zap"
)

// EventType defines the category of a run event.
type EventType string

const (
	EventTypeRun     EventType = "run"
	EventTypeStep    EventType = "step"
	EventTypeHealing EventType = "healing"
	EventTypeOracle  EventType = "oracle"
)

// Event is a structured entry about one run. StepIndex is -1 for run-level
// events.
type Event struct {
	Type      EventType
	RunID     string
	Workflow  string
	StepIndex int
	Data      map[string]any
	Timestamp time.Time
}

// Logger emits run events through zap.
type Logger struct {
	zl  *zap.Logger
	now func() time.Time
}

func NewLogger(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{zl: zl.Named("events"), now: time.Now}
}

// Log writes evt. A nil Logger discards it.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = l.now()
	}
	fields := []zap.Field{
		zap.String("type", string(evt.Type)),
		zap.String("run_id", evt.RunID),
		zap.Time("at", evt.Timestamp),
	}
	if evt.Workflow != "" {
		fields = append(fields, zap.String("workflow", evt.Workflow))
	}
	if evt.StepIndex >= 0 {
		fields = append(fields, zap.Int("step", evt.StepIndex))
	}
	if len(evt.Data) > 0 {
		fields = append(fields, zap.Any("data", evt.Data))
	}
	l.zl.Info(string(evt.Type), fields...)
}

func (l *Logger) LogRun(runID, workflow, state string, err error) {
	data := map[string]any{"state": state}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeRun, RunID: runID, Workflow: workflow, StepIndex: -1, Data: data})
}

func (l *Logger) LogStep(runID string, step int, kind, state string) {
	l.Log(Event{Type: EventTypeStep, RunID: runID, StepIndex: step, Data: map[string]any{
		"kind":  kind,
		"state": state,
	}})
}

func (l *Logger) LogHealing(runID string, step int, strategy, outcome, detail string) {
	l.Log(Event{Type: EventTypeHealing, RunID: runID, StepIndex: step, Data: map[string]any{
		"strategy": strategy,
		"outcome":  outcome,
		"detail":   detail,
	}})
}

func (l *Logger) LogOracle(runID string, step int, op string, elapsed time.Duration, err error) {
	data := map[string]any{"op": op, "elapsed_ms": elapsed.Milliseconds()}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeOracle, RunID: runID, StepIndex: step, Data: data})
}
