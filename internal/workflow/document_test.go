package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_RoundTripIsStable(t *testing.T) {
	wait := 1.5
	d := githubWorkflow()
	d.DefaultWaitTime = 0.5
	d.Steps[2].(*KeypressStep).WaitTime = &wait
	d.Steps[1].(*InputStep).Target.Attributes = map[string]string{"placeholder": "Search", "aria-label": "Search GitHub"}
	d.Steps = append(d.Steps, &AgentStep{Task: "dismiss the cookie banner"})

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			first, err := Marshal(d, format)
			require.NoError(t, err)

			parsed, err := Parse(first, format)
			require.NoError(t, err)

			second, err := Marshal(parsed, format)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))

			assert.Equal(t, d.Steps[3].(*ClickStep).Target, parsed.Steps[3].(*ClickStep).Target)
			assert.Equal(t, Ref("repo_name"), parsed.Steps[1].(*InputStep).Value)
			assert.Equal(t, 1.5, *parsed.Steps[2].Wait())
		})
	}
}

func TestMarshal_BraceLiteralsRoundTrip(t *testing.T) {
	d := &Definition{
		Name:    "template search",
		Version: DefaultVersion,
		Steps: []Step{
			&NavigationStep{URL: Literal("https://example.com/{page}")},
			&InputStep{Target: Target{Text: Literal("{label}")}, Value: Literal("{query}")},
			&ClickStep{Target: Target{Text: Literal("{{go}}")}},
		},
	}
	require.NoError(t, d.Validate())

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			doc, err := Marshal(d, format)
			require.NoError(t, err)

			parsed, err := Parse(doc, format)
			require.NoError(t, err)
			assert.Equal(t, Literal("https://example.com/{page}"), parsed.Steps[0].(*NavigationStep).URL)
			input := parsed.Steps[1].(*InputStep)
			assert.Equal(t, Literal("{label}"), input.Target.Text)
			assert.Equal(t, Literal("{query}"), input.Value)
			assert.Equal(t, Literal("{{go}}"), parsed.Steps[2].(*ClickStep).Target.Text)
		})
	}
}

func TestParse_YAMLDocument(t *testing.T) {
	doc := `
name: GitHub Stars
description: Get star count for any repo
version: 1.0.0
default_wait_time: 0.5
input_schema:
  - name: repo_name
    type: string
    required: true
steps:
  - type: navigation
    url: https://github.com
  - type: input
    target_text: Search
    value: "{repo_name}"
  - type: keypress
    key: Enter
  - type: click
    target_text: "{repo_name}"
  - type: extract
    extraction_goal: star count
    output: stars
`
	d, err := Parse([]byte(doc), FormatYAML)
	require.NoError(t, err)
	require.Len(t, d.Steps, 5)
	assert.Equal(t, KindNavigation, d.Steps[0].Kind())
	assert.Equal(t, Literal("https://github.com"), d.Steps[0].(*NavigationStep).URL)
	assert.Equal(t, Ref("repo_name"), d.Steps[3].(*ClickStep).Target.Text)
	assert.Equal(t, 0.5, d.DefaultWaitTime)
}

func TestParse_DuplicateInputRejectedAtLoad(t *testing.T) {
	doc := `{
  "name": "dupes",
  "version": "1.0.0",
  "input_schema": [
    {"name": "query", "type": "string", "required": true},
    {"name": "query", "type": "number", "required": false}
  ],
  "steps": [{"type": "navigation", "url": "https://example.com"}]
}`
	_, err := Parse([]byte(doc), FormatJSON)
	require.Error(t, err)
	var sv *SchemaValidationError
	assert.ErrorAs(t, err, &sv)
	assert.ErrorIs(t, err, ErrDuplicateInput)
}

func TestParse_DocumentSchemaViolations(t *testing.T) {
	tests := map[string]string{
		"missing steps":     `{"name": "x", "version": "1.0.0"}`,
		"unknown step type": `{"name": "x", "version": "1.0.0", "steps": [{"type": "hover"}]}`,
		"bad input type":    `{"name": "x", "version": "1.0.0", "input_schema": [{"name": "a", "type": "date"}], "steps": [{"type": "keypress", "key": "Enter"}]}`,
		"numeric version":   `{"name": "x", "version": 1, "steps": [{"type": "keypress", "key": "Enter"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatJSON)
			var sv *SchemaValidationError
			assert.ErrorAs(t, err, &sv)
		})
	}
}

func TestLoadFile_FormatByExtension(t *testing.T) {
	dir := t.TempDir()
	d := githubWorkflow()

	for _, name := range []string{"flow.workflow.json", "flow.workflow.yaml"} {
		path := filepath.Join(dir, name)
		data, err := Marshal(d, FormatFromPath(path))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		loaded, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, d.Name, loaded.Name)
		assert.Len(t, loaded.Steps, len(d.Steps))
	}
	assert.Equal(t, FormatJSON, FormatFromPath("a/b.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yml"))
}
