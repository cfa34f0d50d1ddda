package workflow

import "regexp"

var (
	// bracedPattern matches a name wrapped in braces, e.g. "{q}" or "{{q}}".
	bracedPattern = regexp.MustCompile(`^(\{+)([A-Za-z_][A-Za-z0-9_]*)(\}+)$`)
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Value is a step field that holds either a literal or a reference to a named
// variable. Exactly one of the two is set on a valid value.
type Value struct {
	Literal string
	Ref     string
}

// Literal returns a literal value.
func Literal(s string) Value { return Value{Literal: s} }

// Ref returns a reference to the variable called name.
func Ref(name string) Value { return Value{Ref: name} }

// braces returns the brace depth of s when s is a name wrapped in equally
// many opening and closing braces, and 0 otherwise.
func braces(s string) int {
	m := bracedPattern.FindStringSubmatch(s)
	if m == nil || len(m[1]) != len(m[3]) {
		return 0
	}
	return len(m[1])
}

// ParseValue reads the document form of a value. A field consisting solely of
// "{name}" is a reference. A literal that itself looks like a reference is
// written with one extra pair of braces, so "{{name}}" reads as the literal
// "{name}". Anything else is a literal.
func ParseValue(s string) Value {
	switch braces(s) {
	case 0:
		return Value{Literal: s}
	case 1:
		return Value{Ref: s[1 : len(s)-1]}
	default:
		return Value{Literal: s[1 : len(s)-1]}
	}
}

// IsRef reports whether v references a variable.
func (v Value) IsRef() bool { return v.Ref != "" }

// IsZero reports whether neither a literal nor a reference is set.
func (v Value) IsZero() bool { return v.Ref == "" && v.Literal == "" }

// String returns the document form of v.
func (v Value) String() string {
	if v.Ref != "" {
		return "{" + v.Ref + "}"
	}
	if braces(v.Literal) > 0 {
		return "{" + v.Literal + "}"
	}
	return v.Literal
}

// Resolve returns the literal, or the value lookup yields for the reference.
func (v Value) Resolve(lookup func(name string) (string, bool)) (string, bool) {
	if v.Ref == "" {
		return v.Literal, true
	}
	return lookup(v.Ref)
}

// ValidName reports whether name can be used as an input or output variable.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
