package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePageJSON(t *testing.T) {
	var v struct {
		IsSuccess bool
	}
	err := decodePageJSON("  {\"IsSuccess\": true}\n", "https://portal/x", "/login/", &v)
	require.NoError(t, err)
	assert.True(t, v.IsSuccess)
}

func TestDecodePageJSONNotJSON(t *testing.T) {
	var v map[string]any
	err := decodePageJSON("<html>oops</html>", "https://portal/handler", "/login/", &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotJSON))
	assert.False(t, errors.Is(err, ErrSessionExpired))
}

func TestDecodePageJSONSessionExpired(t *testing.T) {
	var v map[string]any
	err := decodePageJSON("Username Password Sign in", "https://portal/2_0/Login/login.html#/Login", "/login/", &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.True(t, errors.Is(err, ErrNotJSON))
}

func TestUnpreparedDriver(t *testing.T) {
	d := New(Options{}, nil)
	_, err := d.Exists(context.Background(), "body")
	assert.ErrorIs(t, err, ErrNotPrepared)
	assert.NoError(t, d.Close())
}

func TestSettleHonoursContext(t *testing.T) {
	d := New(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Settle(ctx, time.Hour), context.Canceled)
	assert.NoError(t, d.Settle(context.Background(), 0))
}

func TestHostLimiterPerHost(t *testing.T) {
	hl := NewHostLimiter(1000, 1)
	ctx := context.Background()
	require.NoError(t, hl.WaitURL(ctx, "https://a.example.com/x"))
	require.NoError(t, hl.WaitURL(ctx, "https://b.example.com/y"))
	require.NoError(t, hl.WaitURL(ctx, "::not a url"))

	require.NoError(t, hl.WaitURL(ctx, "https://A.example.com:443/z"))
	require.NoError(t, hl.WaitURL(ctx, "about:blank"))

	assert.Len(t, hl.hosts, 3)
	assert.Same(t, hl.forHost("a.example.com"), hl.forHost("a.example.com"))
}

func TestNeedsReload(t *testing.T) {
	board := "https://portal.test/2_0/TranslatorPortal/defaultng.aspx#/jobBoard"
	assert.True(t, needsReload(board, board))
	assert.False(t, needsReload("https://portal.test/2_0/TranslatorPortal/defaultng.aspx#/home", board))
	assert.False(t, needsReload("", ""))
	assert.False(t, needsReload("about:blank", board))
}

// locations replays a fixed sequence of tab URLs, repeating the last one.
type locations struct {
	urls  []string
	calls int
}

func (l *locations) next(context.Context) (string, error) {
	i := l.calls
	if i >= len(l.urls) {
		i = len(l.urls) - 1
	}
	l.calls++
	return l.urls[i], nil
}

const loginURL = "https://portal.test/2_0/login/login.html#/Login"

func TestWaitOffLoginLeavesOnceOffLoginPages(t *testing.T) {
	l := &locations{urls: []string{
		loginURL,
		"https://portal.test/2_0/login/login.html#/Redirecting",
		"https://portal.test/2_0/TranslatorPortal/defaultng.aspx#/jobBoard",
	}}
	err := waitOffLogin(context.Background(), l.next, loginURL, "/login/", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, l.calls)
}

func TestWaitOffLoginTimesOutOnLoginPage(t *testing.T) {
	l := &locations{urls: []string{"https://portal.test/2_0/LOGIN/login.html#/Error"}}
	err := waitOffLogin(context.Background(), l.next, loginURL, "/login/", 20*time.Millisecond, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not navigate away")
	assert.Greater(t, l.calls, 1)
}

func TestWaitOffLoginLocateError(t *testing.T) {
	boom := errors.New("tab gone")
	locate := func(context.Context) (string, error) { return "", boom }
	err := waitOffLogin(context.Background(), locate, loginURL, "/login/", time.Second, time.Millisecond)
	assert.ErrorIs(t, err, boom)
}

func TestWaitOffLoginStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &locations{urls: []string{loginURL}}
	err := waitOffLogin(ctx, l.next, loginURL, "/login/", time.Minute, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsLoginURL(t *testing.T) {
	assert.True(t, isLoginURL(loginURL, "/login/"))
	assert.False(t, isLoginURL("https://portal.test/board", "/login/"))
	assert.False(t, isLoginURL(loginURL, ""))
}
