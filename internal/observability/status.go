package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RunStatus is the live state of one run.
type RunStatus struct {
	RunID     string
	Workflow  string
	State     string
	Step      int
	Total     int
	Healed    int
	StartedAt time.Time
	UpdatedAt time.Time
}

// Registry tracks the runs of this process. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*RunStatus), now: time.Now}
}

// Start registers a run of workflow with total steps.
func (r *Registry) Start(runID, workflow string, total int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.runs[runID] = &RunStatus{RunID: runID, Workflow: workflow, State: "running", Step: -1, Total: total, StartedAt: now, UpdatedAt: now}
}

// Update records that runID reached step in state. Unknown runs are ignored.
func (r *Registry) Update(runID string, step int, state string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.runs[runID]
	if !ok {
		return
	}
	s.Step = step
	s.UpdatedAt = r.now()
	if state == "healing" {
		s.Healed++
	}
}

// Finish sets the final state of runID.
func (r *Registry) Finish(runID, state string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.runs[runID]; ok {
		s.State = state
		s.UpdatedAt = r.now()
	}
}

// Get returns a copy of the status of runID.
func (r *Registry) Get(runID string) (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *s, true
}

// List returns copies of every run, oldest first.
func (r *Registry) List() []RunStatus {
	r.mu.RLock()
	out := make([]RunStatus, 0, len(r.runs))
	for _, s := range r.runs {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Render writes a table of every run to w.
func (r *Registry) Render(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers("RUN", "WORKFLOW", "STATE", "STEP", "HEALED", "DURATION")
	for _, s := range r.List() {
		t.Row(s.RunID, s.Workflow, s.State,
			fmt.Sprintf("%d/%d", s.Step+1, s.Total),
			strconv.Itoa(s.Healed),
			s.UpdatedAt.Sub(s.StartedAt).Round(time.Millisecond).String())
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
