package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/replay/internal/store"
	"github.com/rahul/replay/internal/workflow"
)

const githubTrace = `{"actions": [
  {"order": 0, "kind": "navigate", "url": "https://github.com"},
  {"order": 1, "kind": "type_text", "target": {"text": "Search", "tag": "input"}, "value": "browser-use"},
  {"order": 2, "kind": "send_keys", "value": "Enter"},
  {"order": 3, "kind": "click_element", "target": {"text": "browser-use", "tag": "a"}}
]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvertCommand_File(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", githubTrace)
	out := filepath.Join(dir, "search.json")

	_, err := execute(t, "convert", tracePath, "--name", "github search", "--task", "search github", "-o", out)
	require.NoError(t, err)

	def, err := workflow.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "github search", def.Name)
	assert.Equal(t, workflow.DefaultVersion, def.Version)
	require.Len(t, def.Steps, 4)
	assert.Equal(t, workflow.KindInput, def.Steps[1].Kind())
	assert.Equal(t, "search github", def.Provenance.SourceTask)
}

func TestConvertCommand_StdoutAndHistory(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", githubTrace)
	dbPath := filepath.Join(dir, "history.db")
	cfgPath := writeFile(t, dir, "config.yaml", "store:\n  path: "+dbPath+"\n")

	stdout, err := execute(t, "-c", cfgPath, "convert", tracePath, "--name", "github search")
	require.NoError(t, err)

	def, err := workflow.Parse([]byte(stdout), workflow.FormatYAML)
	require.NoError(t, err)
	assert.Len(t, def.Steps, 4)

	h, err := store.NewHistoryStore(dbPath)
	require.NoError(t, err)
	defer h.Close()
	saved, err := h.GetVersion(context.Background(), "github search", "")
	require.NoError(t, err)
	assert.Equal(t, def.Version, saved.Version)

	// Converting again keeps the recorded version and still succeeds.
	_, err = execute(t, "-c", cfgPath, "convert", tracePath, "--name", "github search")
	assert.NoError(t, err)
}

func TestConvertCommand_BracedValueLoads(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", `[
  {"order": 0, "kind": "navigate", "url": "https://github.com"},
  {"order": 1, "kind": "type_text", "target": {"text": "Search", "tag": "input"}, "value": "{query}"}
]`)
	out := filepath.Join(dir, "braces.yaml")

	_, err := execute(t, "convert", tracePath, "--name", "braces", "-o", out)
	require.NoError(t, err)

	def, err := workflow.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, workflow.Literal("{query}"), def.Steps[1].(*workflow.InputStep).Value)
}

func TestConvertCommand_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "convert", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "convert")
	assert.Error(t, err, "trace argument is required")

	_, err = execute(t, "-c", filepath.Join(dir, "missing.yaml"), "convert", writeFile(t, dir, "t.json", githubTrace))
	assert.Error(t, err, "missing config file")
}

func TestRunCommand_RejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "wf.yaml", "name: x\nversion: 1.0.0\nsteps:\n  - type: navigation\n    url: https://example.com\n")

	_, err := execute(t, "run", wf, "--input", "novalue")
	assert.ErrorContains(t, err, "expected name=value")

	_, err = execute(t, "run", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseInputs(t *testing.T) {
	got, err := parseInputs([]string{"q=browser-use", " page = 2", "filter=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "browser-use", "page": " 2", "filter": "a=b", "empty": ""}, got)

	_, err = parseInputs([]string{"=x"})
	assert.Error(t, err)
}

func TestLoadInputSets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "inputs.yaml", "- q: playwright\n- q: puppeteer\n  lang: \"go\"\n")

	sets, err := loadInputSets(path, map[string]string{"lang": "python"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"q": "playwright", "lang": "python"},
		{"q": "puppeteer", "lang": "go"},
	}, sets)

	_, err = loadInputSets(writeFile(t, dir, "empty.yaml", "[]\n"), nil)
	assert.Error(t, err)
}

func TestHealedPath(t *testing.T) {
	assert.Equal(t, "flows/search-1.0.1.yaml", healedPath("flows/search.yaml", "1.0.1"))
	assert.Equal(t, "search-2.0.0", healedPath("search", "2.0.0"))
}
