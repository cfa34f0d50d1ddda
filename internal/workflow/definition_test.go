package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubWorkflow() *Definition {
	return &Definition{
		Name:        "github repo stars",
		Description: "Find a repository and read its star count",
		Version:     DefaultVersion,
		InputSchema: []InputField{{Name: "repo_name", Type: TypeString, Required: true}},
		Steps: []Step{
			&NavigationStep{Base: Base{Description: "Open GitHub"}, URL: Literal("https://github.com")},
			&InputStep{Target: Target{Text: Literal("Search")}, Value: Ref("repo_name")},
			&KeypressStep{Key: "Enter"},
			&ClickStep{Target: Target{Text: Ref("repo_name"), Tag: "a", Role: "link"}},
			&ExtractStep{Goal: "star count", Output: "stars"},
		},
		Provenance: &Provenance{Origin: OriginGeneratedDeterministic, SourceTask: "find stars"},
	}
}

func schemaErrors(t *testing.T, err error) []*SchemaValidationError {
	t.Helper()
	require.Error(t, err)
	var out []*SchemaValidationError
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			var sv *SchemaValidationError
			require.True(t, errors.As(e, &sv), "unexpected error %v", e)
			out = append(out, sv)
		}
		return out
	}
	var sv *SchemaValidationError
	require.True(t, errors.As(err, &sv))
	return append(out, sv)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, githubWorkflow().Validate())
}

func TestValidate_DuplicateInputNames(t *testing.T) {
	d := githubWorkflow()
	d.InputSchema = append(d.InputSchema, InputField{Name: "repo_name", Type: TypeNumber})

	err := d.Validate()
	assert.ErrorIs(t, err, ErrDuplicateInput)
	var sv *SchemaValidationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "input_schema[1].name", sv.Field)
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		field  string
	}{
		{"empty steps", func(d *Definition) { d.Steps = nil }, "Steps"},
		{"bad version", func(d *Definition) { d.Version = "one" }, "Version"},
		{"bad input type", func(d *Definition) { d.InputSchema[0].Type = "date" }, "InputSchema[0].Type"},
		{"unknown reference", func(d *Definition) {
			d.Steps[1].(*InputStep).Value = Ref("missing")
		}, "value"},
		{"reference before extract", func(d *Definition) {
			d.Steps[3].(*ClickStep).Target.Text = Ref("stars")
		}, "target_text"},
		{"input without value", func(d *Definition) {
			d.Steps[1].(*InputStep).Value = Value{}
		}, "value"},
		{"both literal and ref", func(d *Definition) {
			d.Steps[1].(*InputStep).Value = Value{Literal: "x", Ref: "repo_name"}
		}, "value"},
		{"blank click target", func(d *Definition) {
			d.Steps[3].(*ClickStep).Target.Text = Literal("  ")
		}, "target_text"},
		{"output collides with input", func(d *Definition) {
			d.Steps[4].(*ExtractStep).Output = "repo_name"
		}, "output"},
		{"negative wait", func(d *Definition) {
			w := -1.0
			d.Steps[2].(*KeypressStep).WaitTime = &w
		}, "wait_time"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := githubWorkflow()
			tc.mutate(d)
			errs := schemaErrors(t, d.Validate())
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestValidate_ReferenceToPriorExtract(t *testing.T) {
	d := githubWorkflow()
	d.Steps = append(d.Steps, &InputStep{Target: Target{Text: Literal("Notes")}, Value: Ref("stars")})
	assert.NoError(t, d.Validate())
}

func TestPatched_CopyOnWrite(t *testing.T) {
	d := githubWorkflow()

	patched, err := d.Patched(3, Target{Text: Literal("browser-use/browser-use"), Tag: "a"})
	require.NoError(t, err)

	assert.Equal(t, "1.0.1", patched.Version)
	assert.Equal(t, "1.0.0", d.Version)
	assert.Equal(t, Ref("repo_name"), d.Steps[3].(*ClickStep).Target.Text)
	assert.Equal(t, Literal("browser-use/browser-use"), patched.Steps[3].(*ClickStep).Target.Text)
	assert.NotSame(t, d.Steps[0], patched.Steps[0])

	_, err = d.Patched(0, Target{Text: Literal("x")})
	assert.Error(t, err, "navigation steps have no target")
}

func TestBumpVersion(t *testing.T) {
	v, err := BumpVersion("2.3.9")
	require.NoError(t, err)
	assert.Equal(t, "2.3.10", v)

	v, err = BumpVersion("1.0.0-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", v)

	_, err = BumpVersion("1.0")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, Ref("repo_name"), ParseValue("{repo_name}"))
	assert.Equal(t, Literal("{not a ref}"), ParseValue("{not a ref}"))
	assert.Equal(t, Literal("hello {name}"), ParseValue("hello {name}"))
	assert.Equal(t, "{repo_name}", Ref("repo_name").String())

	// Literals shaped like references gain one pair of braces.
	assert.Equal(t, "{{query}}", Literal("{query}").String())
	assert.Equal(t, "{{{query}}}", Literal("{{query}}").String())
	assert.Equal(t, Literal("{query}"), ParseValue("{{query}}"))
	assert.Equal(t, Literal("{{query}}"), ParseValue("{{{query}}}"))
	assert.Equal(t, "{{query}", Literal("{{query}").String())
	assert.Equal(t, Literal("{{query}"), ParseValue("{{query}"))

	for _, v := range []Value{Literal("{q}"), Literal("{{q}}"), Literal("{{q}"), Literal("{ q }"), Literal(""), Ref("q")} {
		assert.Equal(t, v, ParseValue(v.String()), "value %#v", v)
	}
}
