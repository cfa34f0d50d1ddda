package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/oracle"
)

// BrowserTool drives the browser session of the run it was created for.
// It never opens or closes the session.
type BrowserTool struct {
	session  browser.Session
	maxChars int

	// elements is the last snapshot returned to the agent; indexes refer
	// to it.
	elements []browser.Element
	// Focused is the element last clicked or typed into.
	Focused *browser.Element
}

func NewBrowserTool(session browser.Session, maxChars int) *BrowserTool {
	return &BrowserTool{session: session, maxChars: maxChars}
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control the open browser tab. Actions: 'navigate', 'elements', 'click', 'type', 'press', 'content'. " +
		"Call 'elements' first; 'click' and 'type' take the index it reports."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"navigate", "elements", "click", "type", "press", "content"},
				"description": "The action to perform.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to navigate to (required for 'navigate')",
			},
			"index": map[string]any{
				"type":        "integer",
				"description": "Element index from the last 'elements' call (required for 'click', 'type')",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to type or key to press (required for 'type', 'press')",
			},
		},
		"required": []string{"action"},
	}
}

// Args is the decoded input of a browser tool call.
type Args struct {
	Action string `json:"action"`
	URL    string `json:"url"`
	Index  *int   `json:"index"`
	Text   string `json:"text"`
}

// ParseArgs decodes a browser tool call.
func ParseArgs(input string) (Args, error) {
	var args Args
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return Args{}, fmt.Errorf("invalid input: %w", err)
	}
	return args, nil
}

func (b *BrowserTool) Execute(ctx context.Context, input string) (string, error) {
	args, err := ParseArgs(input)
	if err != nil {
		return "", err
	}

	switch args.Action {
	case "navigate":
		if args.URL == "" {
			return "Error: url is required for 'navigate'", nil
		}
		if err := b.session.Navigate(ctx, args.URL); err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		b.elements, b.Focused = nil, nil
		return fmt.Sprintf("Successfully navigated to %s", args.URL), nil

	case "elements":
		els, err := b.session.Elements(ctx)
		if err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		b.elements = els
		return b.listing(), nil

	case "click":
		el, msg := b.lookup(args.Index)
		if msg != "" {
			return msg, nil
		}
		if err := b.session.Click(ctx, el); err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		b.Focused = &el
		return fmt.Sprintf("Clicked %s", el), nil

	case "type":
		el, msg := b.lookup(args.Index)
		if msg != "" {
			return msg, nil
		}
		if args.Text == "" {
			return "Error: text required", nil
		}
		if err := b.session.Type(ctx, el, args.Text); err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		b.Focused = &el
		return fmt.Sprintf("Typed text in %s", el), nil

	case "press":
		if args.Text == "" {
			return "Error: text (key) required", nil
		}
		if err := b.session.SendKey(ctx, b.Focused, args.Text); err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		return fmt.Sprintf("Pressed key: %s", args.Text), nil

	case "content":
		html, err := b.session.Content(ctx)
		if err != nil {
			return fmt.Sprintf("Browser action failed: %v", err), nil
		}
		u, _ := b.session.URL(ctx)
		page := oracle.PageText(html, u, b.maxChars)
		return fmt.Sprintf("URL: %s\nTITLE: %s\n\n-- CONTENT --\n%s", page.URL, page.Title, page.Text), nil

	default:
		return "Invalid action", nil
	}
}

func (b *BrowserTool) lookup(index *int) (browser.Element, string) {
	if index == nil {
		return browser.Element{}, "Error: index required"
	}
	if b.elements == nil {
		return browser.Element{}, "Error: call 'elements' first"
	}
	for _, el := range b.elements {
		if el.Index == *index {
			return el, ""
		}
	}
	return browser.Element{}, fmt.Sprintf("Error: no element with index %d", *index)
}

func (b *BrowserTool) listing() string {
	var sb strings.Builder
	n := 0
	for _, el := range b.elements {
		if !el.Visible || el.Text == "" {
			continue
		}
		n++
		fmt.Fprintf(&sb, "[%d] <%s", el.Index, el.Tag)
		if el.Role != "" {
			fmt.Fprintf(&sb, " role=%s", el.Role)
		}
		if !el.Enabled {
			sb.WriteString(" disabled")
		}
		fmt.Fprintf(&sb, "> %s\n", el.Text)
	}
	if n == 0 {
		return "No visible elements with text on this page."
	}
	return sb.String()
}
