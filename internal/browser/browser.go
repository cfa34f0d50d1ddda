// Package browser is the automation layer a replay drives: one Session per
// run, obtained from a Launcher.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// Element is an element of the live page as seen by the resolver.
type Element struct {
	// Index addresses the element until the next call to Elements.
	Index int
	// Parent is the index of the closest enclosing element, or -1.
	Parent int
	Tag    string
	Role   string
	// Text is the accessible name: visible text, falling back to
	// aria-label, placeholder, title, alt or value.
	Text       string
	Attributes map[string]string
	Visible    bool
	Enabled    bool
}

func (e Element) String() string {
	return fmt.Sprintf("<%s #%d %q>", e.Tag, e.Index, e.Text)
}

// Session is a live browser tab owned by a single run.
type Session interface {
	// Navigate loads url and returns once the page is ready.
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	// Elements snapshots the candidate elements of the current page.
	Elements(ctx context.Context) ([]Element, error)
	Click(ctx context.Context, el Element) error
	// Type replaces the content of el with text.
	Type(ctx context.Context, el Element, text string) error
	// SendKey presses key on el, or on the page when el is nil.
	SendKey(ctx context.Context, el *Element, key string) error
	// Content returns the HTML of the current page.
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

var (
	ErrClosed       = errors.New("browser session closed")
	ErrStaleElement = errors.New("element no longer on page")
)

// NavigationError reports a page load that failed or timed out.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
