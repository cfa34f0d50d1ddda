package resolve

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/workflow"
)

// FuzzyThreshold is the minimum text similarity accepted by the fuzzy
// strategy.
const FuzzyThreshold = 0.8

// Relaxed strategy names.
const (
	StrategyAttributeExact   = "attribute-exact"
	StrategyRoleText         = "role-text"
	StrategyAttributeContain = "attribute-contains"
	StrategyFuzzyText        = "fuzzy-text"
)

var identifyingAttributes = []string{"aria-label", "placeholder", "title", "alt", "name"}

type strategy struct {
	name  string
	match func(cands []browser.Element, text string, t workflow.Target) []browser.Element
}

var strategies = []strategy{
	{StrategyAttributeExact, attributeExact},
	{StrategyRoleText, roleText},
	{StrategyAttributeContain, attributeContains},
	{StrategyFuzzyText, fuzzyText},
}

// Relaxed widens matching to the structural hints of t. text is the value
// t.Text resolved to at run time. Strategies are tried in order and the
// first one that singles out exactly one element wins; its name is
// returned alongside the element.
func Relaxed(elements []browser.Element, text string, t workflow.Target) (browser.Element, string, error) {
	want := strings.TrimSpace(text)
	usable := Usable(elements)
	var ambiguous error
	for _, s := range strategies {
		found := Innermost(elements, s.match(usable, want, t))
		switch {
		case len(found) == 1:
			return found[0], s.name, nil
		case len(found) > 1 && ambiguous == nil:
			ambiguous = &AmbiguousMatchError{Text: text, Pass: s.name, Matches: found}
		}
	}
	if ambiguous != nil {
		return browser.Element{}, "", ambiguous
	}
	return browser.Element{}, "", &ElementResolutionError{Text: text, Considered: len(usable)}
}

func norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// attributeExact matches identifying attributes against the recorded
// attribute values and against the target text itself.
func attributeExact(cands []browser.Element, text string, t workflow.Target) []browser.Element {
	var out []browser.Element
	for _, el := range cands {
		for _, a := range identifyingAttributes {
			got := norm(el.Attributes[a])
			if got == "" {
				continue
			}
			if rec := norm(t.Attributes[a]); got == rec || got == norm(text) {
				out = append(out, el)
				break
			}
		}
	}
	return out
}

// roleText requires the recorded role and accepts text containment in
// either direction.
func roleText(cands []browser.Element, text string, t workflow.Target) []browser.Element {
	role := t.Role
	if role == "" {
		role = workflow.InferRole(t.Tag, t.Attributes)
	}
	want := norm(text)
	if role == "" || want == "" {
		return nil
	}
	var out []browser.Element
	for _, el := range cands {
		got := norm(el.Text)
		if el.Role != role || got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			out = append(out, el)
		}
	}
	return out
}

// attributeContains looks for the target text, or a recorded attribute
// value, inside any identifying attribute, id or href.
func attributeContains(cands []browser.Element, text string, t workflow.Target) []browser.Element {
	needles := make([]string, 0, len(t.Attributes)+1)
	if want := norm(text); len(want) >= 3 {
		needles = append(needles, want)
	}
	for _, a := range identifyingAttributes {
		if v := norm(t.Attributes[a]); len(v) >= 3 {
			needles = append(needles, v)
		}
	}
	if len(needles) == 0 {
		return nil
	}
	keys := append([]string{"id", "href"}, identifyingAttributes...)

	var out []browser.Element
	for _, el := range cands {
		if containsAny(el, keys, needles) {
			out = append(out, el)
		}
	}
	return out
}

func containsAny(el browser.Element, keys, needles []string) bool {
	for _, k := range keys {
		v := norm(el.Attributes[k])
		if v == "" {
			continue
		}
		for _, n := range needles {
			if strings.Contains(v, n) {
				return true
			}
		}
	}
	return false
}

// fuzzyText keeps the candidates with the best similarity at or above
// FuzzyThreshold.
func fuzzyText(cands []browser.Element, text string, _ workflow.Target) []browser.Element {
	want := norm(text)
	if want == "" {
		return nil
	}
	best := FuzzyThreshold
	var out []browser.Element
	for _, el := range cands {
		score := Similarity(want, norm(el.Text))
		switch {
		case score > best:
			best = score
			out = append(out[:0], el)
		case score == best:
			out = append(out, el)
		}
	}
	return out
}

// Similarity returns 1 minus the normalized Levenshtein distance of a and b.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
