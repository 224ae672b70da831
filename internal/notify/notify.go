// Package notify relays alerts to Telegram chats.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const listingHeader = "New Job Listing:\n\n"

// Field is one key/value pair of a structured alert.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered set of pairs; Render keeps the order.
type Fields []Field

// Render turns msg into alert text. Fields get the listing header followed by
// "key: value" pairs with nothing between them; anything else is fmt.Sprint.
func Render(msg any) string {
	f, ok := msg.(Fields)
	if !ok {
		return fmt.Sprint(msg)
	}
	var b strings.Builder
	b.WriteString(listingHeader)
	for _, kv := range f {
		fmt.Fprintf(&b, "%s: %v", kv.Key, kv.Value)
	}
	return b.String()
}

type Config struct {
	APIBase           string // https://api.telegram.org
	Token             string
	ChatIDs           []string
	MessagesPerSecond float64
}

type Telegram struct {
	cfg Config
	hc  *http.Client
	lim *rate.Limiter
}

func New(cfg Config, hc *http.Client) *Telegram {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	mps := cfg.MessagesPerSecond
	if mps <= 0 {
		mps = 1
	}
	return &Telegram{
		cfg: cfg,
		hc:  hc,
		lim: rate.NewLimiter(rate.Limit(mps), len(cfg.ChatIDs)+1),
	}
}

// Send delivers msg to every chat. Failures are logged per chat and never
// stop delivery to the rest.
func (t *Telegram) Send(ctx context.Context, msg any) {
	text := Render(msg)
	if len(t.cfg.ChatIDs) == 0 {
		log.Printf("[notify] no chats configured; alert: %q", text)
		return
	}
	for _, chat := range t.cfg.ChatIDs {
		if err := t.sendOne(ctx, chat, text); err != nil {
			log.Printf("[notify] chat=%s: %v", chat, err)
		}
	}
}

func (t *Telegram) sendOne(ctx context.Context, chat, text string) error {
	if err := t.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage?chat_id=%s&text=%s",
		t.cfg.APIBase, t.cfg.Token, url.QueryEscape(chat), url.QueryEscape(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		// the URL carries the bot token; keep it out of the log
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sendMessage status=%s body=%q", resp.Status, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
