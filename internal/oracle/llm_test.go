package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zaptest"
)

type fakeModel struct {
	respond  func(ctx context.Context) (*llms.ContentResponse, error)
	messages []llms.MessageContent
	tools    []llms.Tool
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.messages = messages
	m.tools = opts.Tools
	return m.respond(ctx)
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolAnswer(name, args string) func(context.Context) (*llms.ContentResponse, error) {
	return func(context.Context) (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}},
		}}}, nil
	}
}

func textAnswer(text string) func(context.Context) (*llms.ContentResponse, error) {
	return func(context.Context) (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
	}
}

func TestLLM_SuggestVariables(t *testing.T) {
	model := &fakeModel{respond: toolAnswer("suggest_variables",
		`{"variables":[{"name":"repo_name","type":"string","value":"browser-use","required":true}]}`)}
	o := NewLLM(model, nil, Options{Timeout: time.Second}, zaptest.NewLogger(t))

	got, err := o.SuggestVariables(context.Background(), VariableRequest{
		Task:     "find the browser-use repo",
		Literals: []Literal{{Step: 1, Kind: "input", Field: "value", Value: "browser-use"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []VariableSuggestion{{Name: "repo_name", Type: "string", Value: "browser-use", Required: true}}, got)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	user := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, user, "find the browser-use repo")
	assert.Contains(t, user, `"value": "browser-use"`)
	require.Len(t, model.tools, 1)
	assert.Equal(t, "suggest_variables", model.tools[0].Function.Name)
}

func TestLLM_ExtractFromFencedContent(t *testing.T) {
	model := &fakeModel{respond: textAnswer("Here you go:\n```json\n{\"value\": \" 81.2k \", \"found\": true}\n```")}
	o := NewLLM(model, nil, Options{}, nil)

	got, err := o.Extract(context.Background(), ExtractRequest{Goal: "star count", Page: Page{URL: "https://github.com/x/y", Text: "Star 81.2k"}})
	require.NoError(t, err)
	assert.Equal(t, "81.2k", got)
}

func TestLLM_ExtractNotFound(t *testing.T) {
	o := NewLLM(&fakeModel{respond: toolAnswer("report_extraction", `{"value":"","found":false}`)}, nil, Options{}, nil)

	_, err := o.Extract(context.Background(), ExtractRequest{Goal: "price"})
	var re *ResponseError
	assert.ErrorAs(t, err, &re)
}

func TestLLM_Reidentify(t *testing.T) {
	model := &fakeModel{respond: toolAnswer("identify_element", `{"text":" Sign in ","role":"button","found":true}`)}
	o := NewLLM(model, nil, Options{}, nil)

	got, err := o.Reidentify(context.Background(), ReidentifyRequest{
		Action:     "click",
		Text:       "Log in",
		Candidates: []string{"Sign in", "Register"},
	})
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Text: "Sign in", Role: "button"}, got)
	assert.Contains(t, model.messages[1].Parts[0].(llms.TextContent).Text, `- "Register"`)

	o = NewLLM(&fakeModel{respond: toolAnswer("identify_element", `{"text":"","found":false}`)}, nil, Options{}, nil)
	_, err = o.Reidentify(context.Background(), ReidentifyRequest{Action: "click", Text: "Log in"})
	var re *ResponseError
	assert.ErrorAs(t, err, &re)
}

func TestLLM_Timeout(t *testing.T) {
	model := &fakeModel{respond: func(ctx context.Context) (*llms.ContentResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := NewLLM(model, nil, Options{Timeout: 20 * time.Millisecond}, nil)

	_, err := o.Extract(context.Background(), ExtractRequest{Goal: "anything"})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.Equal(t, "report_extraction", te.Op)
}

func TestLLM_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &fakeModel{respond: func(ctx context.Context) (*llms.ContentResponse, error) { return nil, ctx.Err() }}

	_, err := NewLLM(model, nil, Options{}, nil).Extract(ctx, ExtractRequest{Goal: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLM_MalformedResponses(t *testing.T) {
	tests := map[string]func(context.Context) (*llms.ContentResponse, error){
		"backend error": func(context.Context) (*llms.ContentResponse, error) { return nil, errors.New("503") },
		"no choices": func(context.Context) (*llms.ContentResponse, error) {
			return &llms.ContentResponse{}, nil
		},
		"bad arguments": toolAnswer("suggest_variables", `{"variables": "nope"`),
		"prose only":    textAnswer("I think the repo name is a variable."),
		"empty":         textAnswer("  "),
	}
	for name, respond := range tests {
		t.Run(name, func(t *testing.T) {
			o := NewLLM(&fakeModel{respond: respond}, nil, Options{}, nil)
			_, err := o.SuggestVariables(context.Background(), VariableRequest{Task: "t"})
			var re *ResponseError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestPrompts_OverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extract.md"), []byte("Custom extract prompt\n"), 0o644))
	p := NewPrompts(dir)

	got, err := p.Get(PromptExtract)
	require.NoError(t, err)
	assert.Equal(t, "Custom extract prompt", got)

	got, err = p.Get(PromptVariables)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "You turn a recorded browser workflow"))

	_, err = p.Get("planner")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                     `{"a":1}`,
		"```json\n{\"a\":1}\n```":     `{"a":1}`,
		"```\n[1,2]\n```":             `[1,2]`,
		`Sure! {"a":1} hope it helps`: `{"a":1}`,
		`The list: [1, 2].`:           `[1, 2]`,
		`no json here`:                `no json here`,
	}
	for in, want := range tests {
		assert.Equal(t, want, extractJSON(in), in)
	}
}

func TestPageText(t *testing.T) {
	doc := `<html><head><title>Stars</title><script>alert(1)</script></head>
<body><div><p>The repository   has <b>81.2k</b> stars &amp; 9k forks.</p></div></body></html>`

	page := PageText(doc, "https://github.com/x/y", 0)
	assert.Equal(t, "https://github.com/x/y", page.URL)
	assert.Contains(t, page.Text, "The repository has 81.2k stars & 9k forks.")
	assert.NotContains(t, page.Text, "<b>")
	assert.NotContains(t, page.Text, "alert")

	short := PageText(doc, "https://github.com/x/y", 10)
	assert.True(t, strings.HasSuffix(short.Text, "(content truncated)"))

	wide := PageText("<p>日本語のページです</p>", "https://example.jp", 7)
	assert.True(t, utf8.ValidString(wide.Text))
	assert.True(t, strings.HasPrefix(wide.Text, "日本 ..."), wide.Text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10, "..."))
	assert.Equal(t, "abc...", Truncate("abcdef", 3, "..."))
	assert.Equal(t, "caf...", Truncate("café au lait", 4, "..."), "é is not split")
	assert.Equal(t, "...", Truncate("日本", 2, "..."))
	for n := 0; n <= len("↑↓ arrows"); n++ {
		assert.True(t, utf8.ValidString(Truncate("↑↓ arrows", n, "")), "n=%d", n)
	}
}
