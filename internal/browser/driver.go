// Package browser owns the single headless Chrome tab used to talk to the portal.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"tmwatch/internal/evidence"
)

var (
	ErrNotPrepared    = errors.New("browser not prepared")
	ErrNotJSON        = errors.New("page did not render JSON")
	ErrSessionExpired = errors.New("portal session expired")
)

type Options struct {
	Headless    bool
	ExecPath    string
	UserAgent   string
	Width       int
	Height      int
	WaitTimeout time.Duration // bound for every single browser step

	// LoginMarker is a URL substring that identifies the portal login page.
	LoginMarker       string
	RequestsPerSecond float64
}

// LoginForm describes the portal's credential form.
type LoginForm struct {
	URL            string
	UserSelector   string
	PassSelector   string
	SubmitSelector string
	Username       string
	Password       string
}

type Driver struct {
	opts Options
	ev   *evidence.Writer
	lim  *HostLimiter

	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

func New(opts Options, ev *evidence.Writer) *Driver {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	return &Driver{
		opts: opts,
		ev:   ev,
		lim:  NewHostLimiter(opts.RequestsPerSecond, 3),
	}
}

// Prepare launches the browser and opens the tab. The browser lives until
// Close or until ctx is cancelled.
func (d *Driver) Prepare(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.opts.ExecPath))
	}
	if d.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))

	w, h := int64(d.opts.Width), int64(d.opts.Height)
	err := chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		if w <= 0 || h <= 0 {
			return nil
		}
		return emulation.SetDeviceMetricsOverride(w, h, 1.0, false).Do(ctx)
	}))
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	d.tab, d.tabCancel, d.allocCancel = tab, tabCancel, allocCancel
	return nil
}

func (d *Driver) Close() error {
	if d.tab == nil {
		return nil
	}
	err := chromedp.Cancel(d.tab)
	d.tabCancel()
	d.allocCancel()
	d.tab = nil
	return err
}

// runFor runs actions on the tab bounded by timeout and by the caller's ctx.
func (d *Driver) runFor(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if d.tab == nil {
		return ErrNotPrepared
	}
	opCtx, cancel := context.WithTimeout(d.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	return d.runFor(ctx, d.opts.WaitTimeout, actions...)
}

// Navigate loads url. Loading the URL the tab is already on reloads it,
// since a same-document hash navigation never fires a load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.lim.WaitURL(ctx, url); err != nil {
		return err
	}
	cur, _ := d.Location(ctx)
	action := chromedp.Navigate(url)
	if needsReload(cur, url) {
		action = chromedp.Reload()
	}
	if err := d.run(ctx, action); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// needsReload reports whether loading target from cur would be a no-op
// same-document navigation.
func needsReload(cur, target string) bool {
	return cur != "" && cur == target
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	var loc string
	err := d.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// WaitFor waits up to timeout for sel to become visible. Running out of time
// is reported as found=false rather than an error.
func (d *Driver) WaitFor(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	err := d.runFor(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return false, nil
	default:
		return false, fmt.Errorf("wait %s: %w", sel, err)
	}
}

// Exists reports whether sel matches anything right now, without waiting.
func (d *Driver) Exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("query %s: %w", sel, err)
	}
	return len(nodes) > 0, nil
}

func (d *Driver) Click(ctx context.Context, sel string) error {
	if err := d.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, sel, text string) error {
	if err := d.run(ctx, chromedp.SendKeys(sel, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %s: %w", sel, err)
	}
	return nil
}

func (d *Driver) OuterHTML(ctx context.Context, sel string) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html %s: %w", sel, err)
	}
	return html, nil
}

// Settle is the bounded fallback pause for pages that expose no ready signal.
func (d *Driver) Settle(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Login fills and submits the credential form, then waits for the tab to
// leave the login page. Failing to find the form is an error.
func (d *Driver) Login(ctx context.Context, f LoginForm) error {
	if err := d.Navigate(ctx, f.URL); err != nil {
		return err
	}
	found, err := d.WaitFor(ctx, f.UserSelector, d.opts.WaitTimeout)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("login form field %s never appeared", f.UserSelector)
	}
	if err := d.Type(ctx, f.UserSelector, f.Username); err != nil {
		return err
	}
	if err := d.Type(ctx, f.PassSelector, f.Password); err != nil {
		return err
	}
	if err := d.Click(ctx, f.SubmitSelector); err != nil {
		return err
	}
	return d.waitLeave(ctx, f.URL)
}

func (d *Driver) waitLeave(ctx context.Context, from string) error {
	return waitOffLogin(ctx, d.Location, from, d.opts.LoginMarker, d.opts.WaitTimeout, 250*time.Millisecond)
}

// waitOffLogin polls locate until the tab is off every login page or timeout
// passes.
func waitOffLogin(ctx context.Context, locate func(context.Context) (string, error), from, marker string, timeout, every time.Duration) error {
	deadline := time.Now().Add(timeout)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		loc, err := locate(ctx)
		if err != nil {
			return fmt.Errorf("login navigation: %w", err)
		}
		if loc != from && !isLoginURL(loc, marker) {
			log.Printf("[browser] logged in, now at %s", loc)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("login did not navigate away from %s within %s", from, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// FetchJSON navigates to an endpoint that renders raw JSON and decodes the
// page text into v.
func (d *Driver) FetchJSON(ctx context.Context, url string, v any) error {
	if err := d.Navigate(ctx, url); err != nil {
		return err
	}
	var text, loc string
	err := d.run(ctx,
		chromedp.Evaluate(`document.documentElement ? document.documentElement.textContent : ""`, &text),
		chromedp.Location(&loc),
	)
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	return decodePageJSON(text, loc, d.opts.LoginMarker, v)
}

func decodePageJSON(text, loc, loginMarker string, v any) error {
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), v); err != nil {
		if isLoginURL(loc, loginMarker) {
			return fmt.Errorf("%w: %w (landed on %s)", ErrSessionExpired, ErrNotJSON, loc)
		}
		return fmt.Errorf("%w: %s: %v", ErrNotJSON, loc, err)
	}
	return nil
}

func isLoginURL(loc, marker string) bool {
	return marker != "" && strings.Contains(strings.ToLower(loc), strings.ToLower(marker))
}

// Snapshot saves the current page HTML and a full-page PNG screenshot.
func (d *Driver) Snapshot(ctx context.Context) (evidence.Paths, error) {
	var (
		html string
		png  []byte
	)
	err := d.run(ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return evidence.Paths{}, fmt.Errorf("capture page: %w", err)
	}
	p, err := d.ev.Save(html, png)
	if err != nil {
		return evidence.Paths{}, err
	}
	log.Printf("[browser] snapshot saved %s", p.Stamp)
	return p, nil
}
