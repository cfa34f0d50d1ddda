package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single oracle call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

type Options struct {
	// Timeout bounds each call, including time spent waiting for the rate
	// limiter.
	Timeout time.Duration
	// RequestsPerMinute paces calls to the backend; zero disables pacing.
	RequestsPerMinute int
}

// LLM answers oracle requests with a langchaingo chat model. Answers are
// requested as function calls; plain JSON replies are accepted as well.
type LLM struct {
	model   llms.Model
	prompts *Prompts
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

var _ Oracle = (*LLM)(nil)

func NewLLM(model llms.Model, prompts *Prompts, opts Options, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = NewPrompts("")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &LLM{
		model:   model,
		prompts: prompts,
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
		logger:  logger.Named("oracle"),
	}
}

var suggestVariablesTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "suggest_variables",
		Description: "Report the literals that should become workflow inputs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"variables": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":     map[string]any{"type": "string"},
							"type":     map[string]any{"type": "string", "enum": []string{"string", "number", "boolean"}},
							"value":    map[string]any{"type": "string"},
							"required": map[string]any{"type": "boolean"},
							"format":   map[string]any{"type": "string"},
						},
						"required": []string{"name", "type", "value"},
					},
				},
			},
			"required": []string{"variables"},
		},
	},
}

var reportExtractionTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "report_extraction",
		Description: "Report the information extracted from the page.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
				"found": map[string]any{"type": "boolean"},
			},
			"required": []string{"value", "found"},
		},
	},
}

var identifyElementTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "identify_element",
		Description: "Report the element on the current page that replaces the missing one.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string", "description": "Visible text of the element, exactly as listed."},
				"tag":   map[string]any{"type": "string"},
				"role":  map[string]any{"type": "string"},
				"found": map[string]any{"type": "boolean"},
			},
			"required": []string{"text", "found"},
		},
	},
}

func (o *LLM) SuggestVariables(ctx context.Context, req VariableRequest) ([]VariableSuggestion, error) {
	literals, err := json.MarshalIndent(req.Literals, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode literals: %w", err)
	}
	user := fmt.Sprintf("Original task: %s\n\nLiteral values in the recorded steps:\n%s", req.Task, literals)

	out, err := call[struct {
		Variables []VariableSuggestion `json:"variables"`
	}](ctx, o, PromptVariables, user, suggestVariablesTool)
	if err != nil {
		return nil, err
	}
	return out.Variables, nil
}

func (o *LLM) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	user := fmt.Sprintf("Information to extract: %s\n\n%s", req.Goal, describePage(req.Page))

	out, err := call[struct {
		Value string `json:"value"`
		Found *bool  `json:"found"`
	}](ctx, o, PromptExtract, user, reportExtractionTool)
	if err != nil {
		return "", err
	}
	if out.Found != nil && !*out.Found {
		return "", &ResponseError{Op: reportExtractionTool.Function.Name, Reason: fmt.Sprintf("%q not found on page", req.Goal)}
	}
	return strings.TrimSpace(out.Value), nil
}

func (o *LLM) Reidentify(ctx context.Context, req ReidentifyRequest) (Descriptor, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", req.Action)
	if req.Description != "" {
		fmt.Fprintf(&b, "Step: %s\n", req.Description)
	}
	fmt.Fprintf(&b, "Original element text: %q\n", req.Text)
	if req.Tag != "" || req.Role != "" {
		fmt.Fprintf(&b, "Original element tag/role: %s/%s\n", req.Tag, req.Role)
	}
	b.WriteString("\nInteractive elements on the page now:\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- %q\n", c)
	}
	b.WriteString("\n")
	b.WriteString(describePage(req.Page))

	out, err := call[struct {
		Descriptor
		Found *bool `json:"found"`
	}](ctx, o, PromptReidentify, b.String(), identifyElementTool)
	if err != nil {
		return Descriptor{}, err
	}
	if (out.Found != nil && !*out.Found) || strings.TrimSpace(out.Text) == "" {
		return Descriptor{}, &ResponseError{Op: identifyElementTool.Function.Name, Reason: "no replacement element"}
	}
	out.Text = strings.TrimSpace(out.Text)
	return out.Descriptor, nil
}

// call sends one bounded request and decodes the answer into T.
func call[T any](ctx context.Context, o *LLM, prompt, user string, tool llms.Tool) (*T, error) {
	op := tool.Function.Name
	system, err := o.prompts.Get(prompt)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	start := time.Now()

	fail := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Op: op, Timeout: o.timeout}
		}
		return &ResponseError{Op: op, Reason: "backend call failed", Err: err}
	}

	if err := o.limiter.Wait(cctx); err != nil {
		return nil, fail(err)
	}

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(user)}},
	}
	resp, err := o.model.GenerateContent(cctx, messages, llms.WithTools([]llms.Tool{tool}), llms.WithTemperature(0))
	if err != nil {
		return nil, fail(err)
	}
	o.logger.Debug("oracle call", zap.String("op", op), zap.Duration("took", time.Since(start)))

	if resp == nil || len(resp.Choices) == 0 {
		return nil, &ResponseError{Op: op, Reason: "empty response"}
	}
	choice := resp.Choices[0]

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != op {
			continue
		}
		var out T
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &out); err != nil {
			return nil, &ResponseError{Op: op, Reason: "malformed function arguments", Err: err}
		}
		return &out, nil
	}

	if strings.TrimSpace(choice.Content) == "" {
		return nil, &ResponseError{Op: op, Reason: "no function call or content"}
	}
	out, err := parseJSON[T](choice.Content)
	if err != nil {
		return nil, &ResponseError{Op: op, Reason: "malformed content", Err: err}
	}
	return out, nil
}

func describePage(p Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page URL: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", p.Title)
	}
	b.WriteString("-- CONTENT --\n")
	b.WriteString(p.Text)
	return b.String()
}
