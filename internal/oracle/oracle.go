// Package oracle is the reasoning capability consulted for variable
// suggestions, content extraction and element re-identification.
package oracle

import "context"

// Page is the reduced content of the page a request is about.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Literal is one literal step field offered for parameterization.
type Literal struct {
	Step  int    `json:"step"`
	Kind  string `json:"kind"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type VariableRequest struct {
	Task     string
	Literals []Literal
}

// VariableSuggestion proposes that Value be replaced by a named input.
type VariableSuggestion struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Required bool   `json:"required"`
	Format   string `json:"format,omitempty"`
}

type ExtractRequest struct {
	Goal string
	Page Page
}

// ReidentifyRequest asks for an element that plays the role the original
// descriptor used to point to.
type ReidentifyRequest struct {
	Action      string
	Description string
	Text        string
	Tag         string
	Role        string
	Page        Page
	// Candidates are the accessible names of the interactive elements
	// currently on the page.
	Candidates []string
}

// Descriptor is a replacement element descriptor.
type Descriptor struct {
	Text string `json:"text"`
	Tag  string `json:"tag,omitempty"`
	Role string `json:"role,omitempty"`
}

// Oracle is the narrow contract every reasoning backend satisfies. Each call
// is bounded in time and fails with *TimeoutError or *ResponseError.
type Oracle interface {
	SuggestVariables(ctx context.Context, req VariableRequest) ([]VariableSuggestion, error)
	Extract(ctx context.Context, req ExtractRequest) (string, error)
	Reidentify(ctx context.Context, req ReidentifyRequest) (Descriptor, error)
}
