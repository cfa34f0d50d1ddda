package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zaptest"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/browser/browsertest"
	"github.com/rahul/replay/internal/governance"
)

// scriptedModel answers each GenerateContent call with the next scripted
// tool call and records the tool results it was sent.
type scriptedModel struct {
	calls   [][2]string
	n       int
	results []string
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if last := messages[len(messages)-1]; last.Role == llms.ChatMessageTypeTool {
		m.results = append(m.results, last.Parts[0].(llms.ToolCallResponse).Content)
	}
	if m.n >= len(m.calls) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "done"}}}, nil
	}
	c := m.calls[m.n]
	m.n++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{ID: "call", Type: "function", FunctionCall: &llms.FunctionCall{Name: c[0], Arguments: c[1]}}},
	}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func session() *browsertest.Session {
	return browsertest.NewSession(map[string]browsertest.Site{
		"https://github.com/search": {Elements: []browser.Element{
			browsertest.El("a", "browser-use/browser-use", "href", "https://github.com/browser-use/browser-use"),
			browsertest.El("a", "Sponsors"),
		}},
		"https://github.com/browser-use/browser-use": {HTML: "<p>81k stars</p>"},
	})
}

func TestPerform_ClicksAndFinishes(t *testing.T) {
	s := session()
	require.NoError(t, s.Navigate(context.Background(), "https://github.com/search"))
	model := &scriptedModel{calls: [][2]string{
		{"browser", `{"action":"elements"}`},
		{"browser", `{"action":"click","index":0}`},
		{"finish", `{"success":true,"summary":"opened the repository"}`},
	}}
	a := New(model, nil, nil, Options{}, zaptest.NewLogger(t))

	out, err := a.Perform(context.Background(), s, Task{Instruction: "open the browser-use repository"})
	require.NoError(t, err)
	assert.Equal(t, "opened the repository", out.Summary)
	assert.Equal(t, 3, out.Steps)
	require.NotNil(t, out.Focused)
	assert.Equal(t, 0, out.Focused.Index)

	require.Len(t, model.results, 2)
	assert.Contains(t, model.results[0], "[0] <a role=link> browser-use/browser-use")
	url, _ := s.URL(context.Background())
	assert.Equal(t, "https://github.com/browser-use/browser-use", url)
}

func TestPerform_PolicyDeniesNavigation(t *testing.T) {
	s := session()
	policy, err := governance.FromRules(governance.Rules{AllowedHosts: []string{"github.com"}})
	require.NoError(t, err)
	model := &scriptedModel{calls: [][2]string{
		{"browser", `{"action":"navigate","url":"https://evil.example"}`},
		{"finish", `{"success":false,"summary":"navigation not allowed"}`},
	}}

	_, err = New(model, nil, policy, Options{}, nil).Perform(context.Background(), s, Task{Instruction: "go elsewhere"})
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "navigation not allowed", failed.Reason)
	require.Len(t, model.results, 1)
	assert.Contains(t, model.results[0], "policy denied")
	assert.Empty(t, s.Actions())
}

func TestPerform_StepLimit(t *testing.T) {
	calls := make([][2]string, 5)
	for i := range calls {
		calls[i] = [2]string{"browser", `{"action":"elements"}`}
	}
	model := &scriptedModel{calls: calls}

	_, err := New(model, nil, nil, Options{MaxSteps: 3}, nil).Perform(context.Background(), session(), Task{Instruction: "loop"})
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestPerform_UnknownToolAndPlainAnswer(t *testing.T) {
	model := &scriptedModel{calls: [][2]string{{"shell", `{}`}}}

	out, err := New(model, nil, nil, Options{}, nil).Perform(context.Background(), session(), Task{Instruction: "x"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Summary)
	assert.Equal(t, []string{"Error: Tool shell not found"}, model.results)
}
