// Package resolve locates live page elements from workflow target
// descriptors.
package resolve

import (
	"strings"

	"github.com/rahul/replay/internal/browser"
)

// Matching passes, tried in order.
const (
	PassExact     = "exact"
	PassFold      = "case-insensitive"
	PassSubstring = "substring"
)

type pass struct {
	name  string
	match func(elText, want string) bool
}

var passes = []pass{
	{PassExact, func(el, want string) bool { return el == want }},
	{PassFold, func(el, want string) bool { return strings.EqualFold(strings.TrimSpace(el), want) }},
	{PassSubstring, func(el, want string) bool {
		return strings.Contains(strings.ToLower(el), strings.ToLower(want))
	}},
}

// Match returns the single visible, enabled element whose text matches text.
// The first pass with any match decides: one match resolves, several are
// an *AmbiguousMatchError. No match in any pass is an
// *ElementResolutionError.
func Match(elements []browser.Element, text string) (browser.Element, error) {
	want := strings.TrimSpace(text)
	usable := Usable(elements)
	if want == "" {
		return browser.Element{}, &ElementResolutionError{Text: text, Considered: len(usable)}
	}

	for _, p := range passes {
		var found []browser.Element
		for _, el := range usable {
			if el.Text != "" && p.match(el.Text, want) {
				found = append(found, el)
			}
		}
		found = Innermost(elements, found)
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return browser.Element{}, &AmbiguousMatchError{Text: text, Pass: p.name, Matches: found}
		}
	}
	return browser.Element{}, &ElementResolutionError{Text: text, Considered: len(usable)}
}

// Usable filters out elements that are hidden or disabled.
func Usable(elements []browser.Element) []browser.Element {
	out := make([]browser.Element, 0, len(elements))
	for _, el := range elements {
		if el.Visible && el.Enabled {
			out = append(out, el)
		}
	}
	return out
}

// Innermost drops every match that encloses another match, so a link and
// the list item wrapping it count once.
func Innermost(all, matches []browser.Element) []browser.Element {
	if len(matches) < 2 {
		return matches
	}
	parent := make(map[int]int, len(all))
	for _, el := range all {
		parent[el.Index] = el.Parent
	}
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		matched[m.Index] = true
	}
	enclosing := make(map[int]bool)
	for _, m := range matches {
		seen := map[int]bool{m.Index: true}
		for p, ok := parent[m.Index]; ok && p >= 0 && !seen[p]; p, ok = parent[p] {
			seen[p] = true
			if matched[p] {
				enclosing[p] = true
			}
		}
	}
	out := matches[:0:0]
	for _, m := range matches {
		if !enclosing[m.Index] {
			out = append(out, m)
		}
	}
	return out
}
