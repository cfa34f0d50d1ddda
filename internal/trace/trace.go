// Package trace models the raw action trace emitted by an autonomous
// browsing session.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// Kind is the raw action type recorded by the agent.
type Kind string

const (
	KindNavigate       Kind = "navigate"
	KindClickElement   Kind = "click_element"
	KindTypeText       Kind = "type_text"
	KindSendKeys       Kind = "send_keys"
	KindExtractContent Kind = "extract_content"
)

// Hints are the raw identifying hints captured for the element an action
// touched.
type Hints struct {
	Text       string            `json:"text,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	Role       string            `json:"role,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	XPath      string            `json:"xpath,omitempty"`
	X          *float64          `json:"x,omitempty"`
	Y          *float64          `json:"y,omitempty"`
}

// Entry is one recorded action. Entries are treated as immutable.
type Entry struct {
	Order  int       `json:"order"`
	Kind   Kind      `json:"kind"`
	Target Hints     `json:"target"`
	Value  string    `json:"value,omitempty"`
	URL    string    `json:"url,omitempty"`
	Output string    `json:"output,omitempty"`
	At     time.Time `json:"timestamp"`
	// PageURL is the address of the page when the action happened.
	PageURL string `json:"page_url,omitempty"`
}

// Trace is an ordered action trace.
type Trace []Entry

// Sorted returns the entries ordered by Order; ties keep their recorded
// position.
func (t Trace) Sorted() Trace {
	out := make(Trace, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Decode reads a JSON trace: either an array of entries or an object with an
// "actions" array. The first non-space byte selects the shape.
func Decode(r io.Reader) (Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	switch trimmed := bytes.TrimLeft(data, " \t\r\n"); {
	case len(trimmed) > 0 && trimmed[0] == '[':
		var entries Trace
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
		return entries, nil
	case len(trimmed) > 0 && trimmed[0] == '{':
		var wrapped struct {
			Actions Trace `json:"actions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
		return wrapped.Actions, nil
	default:
		return nil, errors.New("decode trace: expected a JSON array or an object with \"actions\"")
	}
}

// LoadFile decodes the trace stored at path.
func LoadFile(path string) (Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
