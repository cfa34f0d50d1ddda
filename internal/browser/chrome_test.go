package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyCode(t *testing.T) {
	assert.Equal(t, kb.Enter, keyCode("Enter"))
	assert.Equal(t, kb.Enter, keyCode(" return "))
	assert.Equal(t, kb.ArrowDown, keyCode("ArrowDown"))
	assert.Equal(t, kb.Escape, keyCode("Esc"))
	assert.Equal(t, "a", keyCode("a"))
}

func TestJSElement(t *testing.T) {
	el := jsElement{
		Index:      3,
		Parent:     1,
		Tag:        "INPUT",
		Text:       "  Search\n GitHub ",
		Attributes: map[string]string{"type": "submit"},
		Visible:    true,
	}.element()

	assert.Equal(t, Element{
		Index:      3,
		Parent:     1,
		Tag:        "input",
		Role:       "button",
		Text:       "Search GitHub",
		Attributes: map[string]string{"type": "submit"},
		Visible:    true,
	}, el)
	assert.Equal(t, `[data-replay-index="3"]`, selector(el))
}

func fakeSession(t *testing.T, timeout time.Duration, do func(ctx context.Context, actions ...chromedp.Action) error) *chromeSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &chromeSession{ctx: ctx, timeout: timeout, logger: zap.NewNop(), do: do, cancel: cancel}
}

func TestChromeSession_StartKeepsBrowserContext(t *testing.T) {
	var calls []context.Context
	s := fakeSession(t, time.Second, func(ctx context.Context, _ ...chromedp.Action) error {
		calls = append(calls, ctx)
		return nil
	})

	require.NoError(t, s.start(context.Background()))
	require.Len(t, calls, 1)
	assert.Equal(t, s.ctx, calls[0], "browser is allocated on the session context")
	_, hasDeadline := calls[0].Deadline()
	assert.False(t, hasDeadline)
	assert.NoError(t, s.ctx.Err(), "browser outlives start")

	require.NoError(t, s.WaitReady(context.Background()))
	require.Len(t, calls, 2)
	_, hasDeadline = calls[1].Deadline()
	assert.True(t, hasDeadline, "later actions are bounded")
	assert.Error(t, calls[1].Err(), "action context is released")
	assert.NoError(t, s.ctx.Err())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.WaitReady(context.Background()), ErrClosed)
}

func blockUntilDone(ctx context.Context, _ ...chromedp.Action) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestChromeSession_StartTimesOut(t *testing.T) {
	s := fakeSession(t, 20*time.Millisecond, blockUntilDone)

	err := s.start(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Error(t, s.ctx.Err(), "session is closed")
}

func TestChromeSession_StartCancelled(t *testing.T) {
	s := fakeSession(t, time.Minute, blockUntilDone)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := s.start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, s.ctx.Err())
}
