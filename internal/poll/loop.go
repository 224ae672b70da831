// Package poll runs the watcher's polling cycle: ongoing jobs, available
// jobs, then mail, then sleep.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"
	"time"

	"tmwatch/internal/browser"
	"tmwatch/internal/mailcheck"
	"tmwatch/internal/notify"
	"tmwatch/internal/store"
)

type Scanner interface {
	OpenJobBoard(ctx context.Context) error
	CheckOngoing(ctx context.Context) error
	CheckAvailable(ctx context.Context) error
	Snapshot(ctx context.Context)
}

type Mailbox interface {
	Poll(ctx context.Context) ([]mailcheck.Message, error)
}

type Notifier interface {
	Send(ctx context.Context, msg any)
}

type Recorder interface {
	Record(ctx context.Context, e store.Event) error
}

type Loop struct {
	Scanner Scanner
	Mail    Mailbox // nil skips the mail phase
	Notify  Notifier
	Audit   Recorder // optional

	// Relogin restores the portal session after it expired. Optional.
	Relogin func(ctx context.Context) error

	Delay time.Duration

	status atomic.Value // stores Status
}

// Status returns a copy of the latest cycle state; safe from any goroutine.
func (l *Loop) Status() Status {
	if v, ok := l.status.Load().(Status); ok {
		return v.clone()
	}
	return Status{Phases: map[string]PhaseStatus{}}
}

func (l *Loop) update(fn func(*Status)) {
	st := l.Status()
	fn(&st)
	l.status.Store(st)
}

// Run cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.update(func(st *Status) { st.StartedAt = time.Now() })
	log.Printf("[loop] started, delay=%s mail=%v", l.Delay, l.Mail != nil)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Cycle(ctx)

		t := time.NewTimer(l.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Cycle runs every phase once. No phase can stop the others.
func (l *Loop) Cycle(ctx context.Context) {
	l.phase(ctx, PhaseOngoing, l.Scanner.CheckOngoing)
	l.phase(ctx, PhaseAvailable, l.Scanner.CheckAvailable)
	if l.Mail != nil {
		l.phase(ctx, PhaseMail, l.checkMail)
	}
	l.update(func(st *Status) {
		st.Cycles++
		st.Current = ""
	})
}

func (l *Loop) phase(ctx context.Context, name string, fn func(context.Context) error) {
	err := l.runPhase(ctx, name, fn)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// shutting down
	case errors.Is(err, mailcheck.ErrAuth):
		log.Printf("[loop] warning: cannot log in to the email account: %v", err)
	case errors.Is(err, browser.ErrSessionExpired):
		log.Printf("[loop] %s: portal session expired, logging in again", name)
		if l.Relogin != nil {
			if rerr := l.Relogin(ctx); rerr != nil {
				log.Printf("[loop] relogin failed: %v", rerr)
			}
		}
	default:
		log.Printf("[loop] %s failed: %v", name, err)
	}
}

// runPhase calls fn, turning a panic into an error, and records the outcome.
func (l *Loop) runPhase(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	started := time.Now()
	l.update(func(st *Status) { st.Current = name })

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		l.update(func(st *Status) {
			ps := st.Phases[name]
			ps.Runs++
			ps.LastRunAt = started
			if err != nil {
				ps.Failures++
				ps.LastError = err.Error()
			} else {
				ps.LastError = ""
				ps.LastOkAt = time.Now()
			}
			st.Phases[name] = ps
		})
	}()

	return fn(ctx)
}

// checkMail polls the inbox; the mail session is closed before any portal
// work starts.
func (l *Loop) checkMail(ctx context.Context) error {
	msgs, err := l.Mail.Poll(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("[mail] uid=%d received %s subject=%q", m.UID, m.Date.Format(time.RFC3339), m.Subject)
		if err := l.handleMail(ctx, m); err != nil {
			log.Printf("[mail] uid=%d: %v", m.UID, err)
			errs = append(errs, fmt.Errorf("mail uid %d: %w", m.UID, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) handleMail(ctx context.Context, m mailcheck.Message) error {
	if l.Audit != nil {
		if err := l.Audit.Record(ctx, store.Event{Kind: store.KindMail, OK: true, Detail: m.Subject}); err != nil {
			log.Printf("[mail] audit: %v", err)
		}
	}
	if err := l.Scanner.OpenJobBoard(ctx); err != nil {
		return err
	}
	l.Notify.Send(ctx, notify.Fields{
		{Key: "Email task found", Value: "check the job board\n"},
		{Key: "Subject", Value: m.Subject + "\n"},
		{Key: "From", Value: m.From + "\n"},
		{Key: "Received", Value: m.Date.Format("2006-01-02 15:04:05")},
	})
	l.Scanner.Snapshot(ctx)
	return l.Scanner.CheckOngoing(ctx)
}
