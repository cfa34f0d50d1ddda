package resolve

import (
	"fmt"
	"strings"

	"github.com/rahul/replay/internal/browser"
)

// ElementResolutionError reports that no usable element matched.
type ElementResolutionError struct {
	Text string
	// Considered is the number of visible, enabled elements examined.
	Considered int
}

func (e *ElementResolutionError) Error() string {
	return fmt.Sprintf("no element matches %q (%d candidates)", e.Text, e.Considered)
}

// AmbiguousMatchError reports that a pass matched more than one element.
type AmbiguousMatchError struct {
	Text    string
	Pass    string
	Matches []browser.Element
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		names[i] = m.String()
	}
	return fmt.Sprintf("%d elements match %q by %s: %s", len(e.Matches), e.Text, e.Pass, strings.Join(names, ", "))
}
