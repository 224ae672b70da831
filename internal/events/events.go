// Package events fans watcher alerts out to live subscribers of the status
// server's stream.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tmwatch/internal/notify"
	"tmwatch/internal/store"
)

type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Text string    `json:"text,omitempty"`
}

func MakeEvent(typ, text string) string {
	b, _ := json.Marshal(Event{Type: typ, At: time.Now().UTC(), Text: text})
	return string(b)
}

type Notifier interface {
	Send(ctx context.Context, msg any)
}

type Recorder interface {
	Record(ctx context.Context, e store.Event) error
}

// Tee forwards every alert to Next, journals it on Audit and publishes its
// rendered text on Hub. Audit and Hub are optional.
type Tee struct {
	Next  Notifier
	Hub   *Hub
	Audit Recorder
}

func (t Tee) Send(ctx context.Context, msg any) {
	if t.Next != nil {
		t.Next.Send(ctx, msg)
	}
	if t.Audit == nil && t.Hub == nil {
		return
	}
	text := notify.Render(msg)
	if t.Audit != nil {
		if err := t.Audit.Record(ctx, store.Event{Kind: store.KindAlert, OK: true, Detail: text}); err != nil {
			log.Printf("[events] audit: %v", err)
		}
	}
	if t.Hub != nil {
		t.Hub.Publish(MakeEvent("alert", text))
	}
}
