package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is a workflow document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the document format from a file extension. Anything
// that is not .json is treated as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

//go:embed schema.json
var documentSchema string

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

type document struct {
	Name            string       `json:"name" yaml:"name"`
	Description     string       `json:"description,omitempty" yaml:"description,omitempty"`
	Version         string       `json:"version" yaml:"version"`
	DefaultWaitTime float64      `json:"default_wait_time,omitempty" yaml:"default_wait_time,omitempty"`
	InputSchema     []InputField `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Steps           []stepDoc    `json:"steps" yaml:"steps"`
	Provenance      *Provenance  `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

type stepDoc struct {
	Type           Kind      `json:"type" yaml:"type"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
	WaitTime       *float64  `json:"wait_time,omitempty" yaml:"wait_time,omitempty"`
	URL            string    `json:"url,omitempty" yaml:"url,omitempty"`
	TargetText     string    `json:"target_text,omitempty" yaml:"target_text,omitempty"`
	TargetHints    *hintsDoc `json:"target_hints,omitempty" yaml:"target_hints,omitempty"`
	Value          string    `json:"value,omitempty" yaml:"value,omitempty"`
	Key            string    `json:"key,omitempty" yaml:"key,omitempty"`
	ExtractionGoal string    `json:"extraction_goal,omitempty" yaml:"extraction_goal,omitempty"`
	Output         string    `json:"output,omitempty" yaml:"output,omitempty"`
	Task           string    `json:"task,omitempty" yaml:"task,omitempty"`
}

type hintsDoc struct {
	Tag        string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Role       string            `json:"role,omitempty" yaml:"role,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Marshal serializes d. The output is stable: marshalling the result of
// Parse on it yields the same bytes.
func Marshal(d *Definition, format Format) ([]byte, error) {
	doc, err := toDocument(d)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode workflow json: %w", err)
		}
		return append(out, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode workflow yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode workflow yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown workflow format %q", format)
	}
}

// Parse decodes and validates a workflow document. Structural problems and
// schema violations are reported as *SchemaValidationError.
func Parse(data []byte, format Format) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", format, err)
	}
	if err := checkDocument(raw); err != nil {
		return nil, err
	}

	var doc document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode workflow json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode workflow yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown workflow format %q", format)
	}

	d, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFile reads and parses the workflow document at path.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Parse(data, FormatFromPath(path))
}

func checkDocument(raw any) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("check workflow document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]error, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		problems = append(problems, &SchemaValidationError{StepIndex: -1, Field: re.Field(), Reason: re.Description()})
	}
	return errors.Join(problems...)
}

func toDocument(d *Definition) (document, error) {
	doc := document{
		Name:            d.Name,
		Description:     d.Description,
		Version:         d.Version,
		DefaultWaitTime: d.DefaultWaitTime,
		InputSchema:     d.InputSchema,
		Steps:           make([]stepDoc, 0, len(d.Steps)),
		Provenance:      d.Provenance,
	}
	for i, s := range d.Steps {
		sd := stepDoc{Type: s.Kind(), Description: s.Describe(), WaitTime: s.Wait()}
		switch st := s.(type) {
		case *NavigationStep:
			sd.URL = st.URL.String()
		case *ClickStep:
			sd.TargetText, sd.TargetHints = targetDoc(st.Target)
		case *InputStep:
			sd.TargetText, sd.TargetHints = targetDoc(st.Target)
			sd.Value = st.Value.String()
		case *KeypressStep:
			sd.Key = st.Key
		case *ExtractStep:
			sd.ExtractionGoal = st.Goal
			sd.Output = st.Output
		case *AgentStep:
			sd.Task = st.Task
		default:
			return document{}, fmt.Errorf("step %d: unknown step type %T", i, s)
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return doc, nil
}

func targetDoc(t Target) (string, *hintsDoc) {
	if !t.HasHints() {
		return t.Text.String(), nil
	}
	h := &hintsDoc{Tag: t.Tag, Role: t.Role}
	if len(t.Attributes) > 0 {
		h.Attributes = t.Attributes
	}
	return t.Text.String(), h
}

func fromDocument(doc document) (*Definition, error) {
	d := &Definition{
		Name:            doc.Name,
		Description:     doc.Description,
		Version:         doc.Version,
		DefaultWaitTime: doc.DefaultWaitTime,
		InputSchema:     doc.InputSchema,
		Steps:           make([]Step, 0, len(doc.Steps)),
		Provenance:      doc.Provenance,
	}
	for i, sd := range doc.Steps {
		base := Base{Description: sd.Description, WaitTime: sd.WaitTime}
		var s Step
		switch sd.Type {
		case KindNavigation:
			s = &NavigationStep{Base: base, URL: ParseValue(sd.URL)}
		case KindClick:
			s = &ClickStep{Base: base, Target: fromTargetDoc(sd)}
		case KindInput:
			s = &InputStep{Base: base, Target: fromTargetDoc(sd), Value: ParseValue(sd.Value)}
		case KindKeypress:
			s = &KeypressStep{Base: base, Key: sd.Key}
		case KindExtract:
			s = &ExtractStep{Base: base, Goal: sd.ExtractionGoal, Output: sd.Output}
		case KindAgent:
			s = &AgentStep{Base: base, Task: sd.Task}
		default:
			return nil, schemaErr(i, "type", nil, "unknown step type %q", sd.Type)
		}
		d.Steps = append(d.Steps, s)
	}
	return d, nil
}

func fromTargetDoc(sd stepDoc) Target {
	t := Target{Text: ParseValue(sd.TargetText)}
	if sd.TargetHints != nil {
		t.Tag = sd.TargetHints.Tag
		t.Role = sd.TargetHints.Role
		if len(sd.TargetHints.Attributes) > 0 {
			t.Attributes = sd.TargetHints.Attributes
		}
	}
	return t
}
