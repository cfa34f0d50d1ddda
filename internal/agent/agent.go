// Package agent runs an autonomous ReAct loop over the browser tool. It
// carries out single workflow steps that cannot be replayed
// deterministically.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/governance"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/tools"
)

// DefaultMaxSteps bounds the reasoning loop when no limit is configured.
const DefaultMaxSteps = 10

var (
	ErrStepLimit = errors.New("agent reached its step limit")
	ErrNoAnswer  = errors.New("agent returned an empty response")
)

// FailedError is returned when the agent reports that the task cannot be
// done.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "agent gave up: " + e.Reason
}

// Task is a single instruction for the agent.
type Task struct {
	Instruction string
	// Context is extra information such as the step being replaced and the
	// values bound so far.
	Context string
	RunID   string
}

// Outcome describes a completed task.
type Outcome struct {
	Summary string
	Steps   int
	// Focused is the element the agent last clicked or typed into, if any.
	Focused *browser.Element
}

type Options struct {
	MaxSteps int
	// MaxPageChars bounds page content returned by the browser tool.
	MaxPageChars int
}

type Agent struct {
	model   llms.Model
	prompts *oracle.Prompts
	policy  governance.PolicyEngine
	opts    Options
	logger  *zap.Logger
}

func New(model llms.Model, prompts *oracle.Prompts, policy governance.PolicyEngine, opts Options, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = oracle.NewPrompts("")
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Agent{model: model, prompts: prompts, policy: policy, opts: opts, logger: logger.Named("agent")}
}

// Perform carries out task on session. The session stays open.
func (a *Agent) Perform(ctx context.Context, session browser.Session, task Task) (*Outcome, error) {
	systemPrompt, err := a.prompts.Get(oracle.PromptAgent)
	if err != nil {
		return nil, err
	}

	bt := tools.NewBrowserTool(session, a.opts.MaxPageChars)
	registry := tools.NewRegistry(bt, finishTool{})

	input := "Step to perform: " + task.Instruction
	if task.Context != "" {
		input += "\n\n" + task.Context
	}
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(systemPrompt)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(input)}},
	}
	llmTools := registry.Definitions()
	log := a.logger.With(zap.String("run_id", task.RunID))

	for i := 0; i < a.opts.MaxSteps; i++ {
		resp, err := a.model.GenerateContent(ctx, messages, llms.WithTools(llmTools))
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", i+1, err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return nil, ErrNoAnswer
		}
		choice := resp.Choices[0]

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: assistantParts})

		// A reply without tool calls is the final answer.
		if len(choice.ToolCalls) == 0 {
			if strings.TrimSpace(choice.Content) == "" {
				return nil, ErrNoAnswer
			}
			return &Outcome{Summary: choice.Content, Steps: i + 1, Focused: bt.Focused}, nil
		}

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			name, arguments := tc.FunctionCall.Name, tc.FunctionCall.Arguments

			if name == finishToolName {
				var f finishArgs
				if err := json.Unmarshal([]byte(arguments), &f); err != nil {
					return nil, fmt.Errorf("agent finish: %w", err)
				}
				if f.Success != nil && !*f.Success {
					return nil, &FailedError{Reason: f.Summary}
				}
				log.Info("agent finished", zap.Int("steps", i+1), zap.String("summary", f.Summary))
				return &Outcome{Summary: f.Summary, Steps: i + 1, Focused: bt.Focused}, nil
			}

			result := a.execute(ctx, registry, task.RunID, name, arguments)
			log.Debug("tool call", zap.Int("step", i+1), zap.String("tool", name),
				zap.String("args", arguments), zap.String("result", oracle.Truncate(result, 200, "...")))

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{ToolCallID: tc.ID, Name: name, Content: result},
				},
			})
		}
	}
	return nil, ErrStepLimit
}

func (a *Agent) execute(ctx context.Context, registry *tools.Registry, runID, name, arguments string) string {
	tool := registry.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", name)
	}

	req := governance.Request{Tool: name, Arguments: arguments, RunID: runID}
	if args, err := tools.ParseArgs(arguments); err == nil && args.Action == "navigate" {
		req.URL = args.URL
	}
	if err := governance.Check(ctx, a.policy, req); err != nil {
		return "Error: " + err.Error()
	}

	res, err := tool.Execute(ctx, arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return res
}

const finishToolName = "finish"

type finishArgs struct {
	Success *bool  `json:"success"`
	Summary string `json:"summary"`
}

// finishTool is advertised to the model; its calls end the loop and are
// never executed.
type finishTool struct{}

func (finishTool) Name() string { return finishToolName }

func (finishTool) Description() string {
	return "Report that the step is done, or that it cannot be done."
}

func (finishTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"success": map[string]any{"type": "boolean"},
			"summary": map[string]any{"type": "string", "description": "What was done, or why it failed."},
		},
		"required": []string{"success", "summary"},
	}
}

func (finishTool) Execute(context.Context, string) (string, error) {
	return "", errors.New("finish is handled by the agent loop")
}
