package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/rahul/replay/internal/workflow"
)

// ChromeOptions configures the Chrome instances started by Chrome.
type ChromeOptions struct {
	Headless     bool
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	// ActionTimeout bounds every browser action, page loads included.
	ActionTimeout time.Duration
	UserAgent     string
}

// Chrome launches one Chrome process per session through chromedp.
type Chrome struct {
	opts   ChromeOptions
	logger *zap.Logger
}

var _ Launcher = (*Chrome)(nil)

func NewChrome(opts ChromeOptions, logger *zap.Logger) *Chrome {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 60 * time.Second
	}
	return &Chrome{opts: opts, logger: logger.Named("browser")}
}

func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if c.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.opts.WindowWidth > 0 && c.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(c.opts.WindowWidth, c.opts.WindowHeight))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}

	// The browser outlives the launch context; Close releases it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:     browserCtx,
		timeout: c.opts.ActionTimeout,
		logger:  c.logger,
		do:      chromedp.Run,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}
	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c.logger.Debug("browser session started", zap.Bool("headless", c.opts.Headless))
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	timeout time.Duration
	logger  *zap.Logger

	// do runs actions on a chromedp context; chromedp.Run outside tests.
	do func(ctx context.Context, actions ...chromedp.Action) error

	closeOnce sync.Once
	cancel    func()
}

// start runs the first, empty action list, which allocates the browser.
// chromedp binds the Chrome process to the context of that first Run, so it
// gets the session context itself. ctx and the action timeout only bound
// how long start waits; when either expires the session is closed.
func (s *chromeSession) start(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(waitCtx, func() { s.Close() })

	err := s.do(s.ctx)
	if !stop() {
		return fmt.Errorf("%w: %w", ErrClosed, waitCtx.Err())
	}
	return err
}

// run executes actions on the tab. It stops at the action timeout or when
// ctx is done, whichever comes first.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	actionCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := s.do(actionCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

func (s *chromeSession) WaitReady(ctx context.Context) error {
	return s.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

type jsElement struct {
	Index      int               `json:"index"`
	Parent     int               `json:"parent"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
}

func (e jsElement) element() Element {
	tag := strings.ToLower(e.Tag)
	return Element{
		Index:      e.Index,
		Parent:     e.Parent,
		Tag:        tag,
		Role:       workflow.InferRole(tag, e.Attributes),
		Text:       strings.Join(strings.Fields(e.Text), " "),
		Attributes: e.Attributes,
		Visible:    e.Visible,
		Enabled:    e.Enabled,
	}
}

func (s *chromeSession) Elements(ctx context.Context) ([]Element, error) {
	var raw []jsElement
	if err := s.run(ctx, chromedp.Evaluate(scanScript, &raw)); err != nil {
		return nil, fmt.Errorf("scan elements: %w", err)
	}
	out := make([]Element, len(raw))
	for i, r := range raw {
		out[i] = r.element()
	}
	return out, nil
}

func selector(el Element) string {
	return fmt.Sprintf(`[%s="%d"]`, indexAttribute, el.Index)
}

// present reports whether el is still marked on the page. Query actions
// wait for their node, so stale elements are rejected first.
func (s *chromeSession) present(ctx context.Context, el Element) error {
	var ok bool
	js := fmt.Sprintf(`document.querySelector(%q) !== null`, selector(el))
	if err := s.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", el, ErrStaleElement)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, el Element) error {
	if err := s.present(ctx, el); err != nil {
		return err
	}
	sel := selector(el)
	return s.run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *chromeSession) Type(ctx context.Context, el Element, text string) error {
	if err := s.present(ctx, el); err != nil {
		return err
	}
	sel := selector(el)
	return s.run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
}

func (s *chromeSession) SendKey(ctx context.Context, el *Element, key string) error {
	if el != nil {
		// A stale element means the page moved on; the key goes to whatever
		// holds focus now.
		js := fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (el) el.focus(); return true; })()`, selector(*el))
		var ignored bool
		if err := s.run(ctx, chromedp.Evaluate(js, &ignored)); err != nil {
			return err
		}
	}
	return s.run(ctx, chromedp.KeyEvent(keyCode(key)))
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

func (s *chromeSession) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug("browser session closed")
	})
	return nil
}

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

// keyCode maps a key name such as "Enter" or "ArrowDown" to the sequence
// chromedp dispatches. Unknown names are sent as typed text.
func keyCode(key string) string {
	if k, ok := namedKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return k
	}
	return key
}
