package convert

import (
	"strings"

	"github.com/rahul/replay/internal/trace"
	"github.com/rahul/replay/internal/workflow"
)

// fallbackAttributes are consulted in order when an element has no visible
// text.
var fallbackAttributes = []string{"aria-label", "placeholder", "title", "alt", "name"}

// descriptor derives the target of an action. It reports false when no
// usable text remains after falling back to structural hints.
func descriptor(h trace.Hints) (workflow.Target, bool) {
	attrs := workflow.StableAttributes(h.Attributes)

	text := collapseSpace(h.Text)
	if text == "" {
		for _, name := range fallbackAttributes {
			if v := collapseSpace(attrs[name]); v != "" {
				text = v
				break
			}
		}
	}
	if text == "" {
		return workflow.Target{}, false
	}

	tag := strings.ToLower(strings.TrimSpace(h.Tag))
	role := strings.TrimSpace(h.Role)
	if role == "" {
		role = workflow.InferRole(tag, attrs)
	}
	return workflow.Target{
		Text:       workflow.Literal(text),
		Tag:        tag,
		Role:       role,
		Attributes: attrs,
	}, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
