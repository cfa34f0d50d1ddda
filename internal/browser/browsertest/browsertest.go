// Package browsertest provides an in-memory browser session for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/workflow"
)

// Site is a page the fake browser can display.
type Site struct {
	HTML     string
	Elements []browser.Element
	// Submit, when set, returns the address loaded when Enter is pressed.
	// It receives the text last typed on the page.
	Submit func(typed string) string
}

// Action is an operation recorded by a Session.
type Action struct {
	Op    string
	URL   string
	Index int
	Text  string
}

// El builds a visible, enabled element. attrs are key/value pairs.
func El(tag, text string, attrs ...string) browser.Element {
	el := browser.Element{Parent: -1, Tag: tag, Text: text, Visible: true, Enabled: true}
	if len(attrs) > 0 {
		el.Attributes = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			el.Attributes[attrs[i]] = attrs[i+1]
		}
	}
	el.Role = workflow.InferRole(tag, el.Attributes)
	return el
}

// Session is a fake browser.Session over a fixed set of sites.
type Session struct {
	// Fail makes the named operation fail with the given error.
	Fail map[string]error

	mu      sync.Mutex
	sites   map[string]Site
	current string
	typed   string
	actions []Action
	closed  bool
}

var _ browser.Session = (*Session)(nil)

func NewSession(sites map[string]Site) *Session {
	return &Session{sites: sites, Fail: map[string]error{}}
}

// Actions returns the operations performed so far.
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetSite replaces the content of url, simulating a redesign.
func (s *Session) SetSite(url string, site Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[url] = site
}

func (s *Session) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return browser.ErrClosed
	}
	return s.Fail[op]
}

func (s *Session) load(url string) error {
	if _, ok := s.sites[url]; !ok {
		return fmt.Errorf("no site at %s", url)
	}
	s.current = url
	s.typed = ""
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "navigate"); err != nil {
		return &browser.NavigationError{URL: url, Err: err}
	}
	s.actions = append(s.actions, Action{Op: "navigate", URL: url})
	if err := s.load(url); err != nil {
		return &browser.NavigationError{URL: url, Err: err}
	}
	return nil
}

func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(ctx, "wait")
}

func (s *Session) Elements(ctx context.Context) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "elements"); err != nil {
		return nil, err
	}
	src := s.sites[s.current].Elements
	out := make([]browser.Element, len(src))
	for i, el := range src {
		el.Index = i
		out[i] = el
	}
	return out, nil
}

func (s *Session) element(el browser.Element) (browser.Element, error) {
	els := s.sites[s.current].Elements
	if el.Index < 0 || el.Index >= len(els) {
		return browser.Element{}, browser.ErrStaleElement
	}
	return els[el.Index], nil
}

func (s *Session) Click(ctx context.Context, el browser.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "click"); err != nil {
		return err
	}
	live, err := s.element(el)
	if err != nil {
		return err
	}
	s.actions = append(s.actions, Action{Op: "click", URL: s.current, Index: el.Index, Text: live.Text})
	if href := live.Attributes["href"]; href != "" {
		if _, ok := s.sites[href]; ok {
			return s.load(href)
		}
	}
	return nil
}

func (s *Session) Type(ctx context.Context, el browser.Element, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "type"); err != nil {
		return err
	}
	if _, err := s.element(el); err != nil {
		return err
	}
	s.actions = append(s.actions, Action{Op: "type", URL: s.current, Index: el.Index, Text: text})
	s.typed = text
	return nil
}

// SendKey records the key; Index is -1 for a page-level key press.
func (s *Session) SendKey(ctx context.Context, el *browser.Element, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "key"); err != nil {
		return err
	}
	idx := -1
	if el != nil {
		idx = el.Index
	}
	s.actions = append(s.actions, Action{Op: "key", URL: s.current, Index: idx, Text: key})
	if site := s.sites[s.current]; key == "Enter" && site.Submit != nil {
		return s.load(site.Submit(s.typed))
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "content"); err != nil {
		return "", err
	}
	return s.sites[s.current].HTML, nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "url"); err != nil {
		return "", err
	}
	return s.current, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Launcher hands out sessions built by New and keeps track of them.
type Launcher struct {
	New func() *Session
	Err error

	mu       sync.Mutex
	sessions []*Session
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	s := l.New()
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}
