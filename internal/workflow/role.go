package workflow

import "strings"

var roleByTag = map[string]string{
	"button":   "button",
	"a":        "link",
	"input":    "textbox",
	"textarea": "textbox",
	"select":   "combobox",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"img":      "img",
	"table":    "table",
	"ul":       "list",
	"ol":       "list",
	"nav":      "navigation",
}

// InferRole returns the ARIA role of an element: the explicit role
// attribute if present, otherwise the implicit role of its tag.
func InferRole(tag string, attrs map[string]string) string {
	if r := strings.TrimSpace(attrs["role"]); r != "" {
		return r
	}
	tag = strings.ToLower(tag)
	if tag == "input" {
		switch strings.ToLower(attrs["type"]) {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "submit", "button", "reset":
			return "button"
		}
	}
	return roleByTag[tag]
}

// stableAttributes are kept in target hints along with data-* attributes.
// Class and style are discarded.
var stableAttributes = map[string]bool{
	"aria-label":  true,
	"placeholder": true,
	"title":       true,
	"alt":         true,
	"name":        true,
	"id":          true,
	"type":        true,
	"role":        true,
	"href":        true,
}

// StableAttributes returns the attributes of attrs worth recording as
// hints, with lower-cased names. It returns nil when none remain.
func StableAttributes(attrs map[string]string) map[string]string {
	var out map[string]string
	for k, v := range attrs {
		k = strings.ToLower(k)
		v = strings.TrimSpace(v)
		if v == "" || !(stableAttributes[k] || strings.HasPrefix(k, "data-")) {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}
