// Package portal scans the translation portal for ongoing and available jobs
// and confirms them through its JSON handlers.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"tmwatch/internal/domain"
	"tmwatch/internal/evidence"
	"tmwatch/internal/store"
)

// Page is the slice of the browser driver the scanner needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, sel string, timeout time.Duration) (bool, error)
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	OuterHTML(ctx context.Context, sel string) (string, error)
	FetchJSON(ctx context.Context, url string, v any) error
	Settle(ctx context.Context, d time.Duration) error
	Snapshot(ctx context.Context) (evidence.Paths, error)
}

type Notifier interface {
	Send(ctx context.Context, msg any)
}

type Recorder interface {
	Record(ctx context.Context, e store.Event) error
}

type Config struct {
	BaseURL           string
	JobBoardPath      string
	AvailableJobsPath string
	AllocatePath      string

	OngoingRegion  string
	OngoingConfirm string

	Settle         time.Duration // upper bound for the job board to render
	AfterAvailable time.Duration
	Location       *time.Location
}

type Scanner struct {
	cfg    Config
	page   Page
	notify Notifier
	audit  Recorder
}

func NewScanner(cfg Config, page Page, n Notifier, audit Recorder) *Scanner {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Scanner{cfg: cfg, page: page, notify: n, audit: audit}
}

func (s *Scanner) JobBoardURL() string { return s.cfg.BaseURL + s.cfg.JobBoardPath }

func (s *Scanner) availableURL() string { return s.cfg.BaseURL + s.cfg.AvailableJobsPath }

func (s *Scanner) allocateURL(taskID, translationID domain.ID) string {
	q := url.Values{}
	q.Set("idTask", taskID.String())
	q.Set("idTranslation", translationID.String())
	q.Set("isPreAllocate", "1")
	return s.cfg.BaseURL + s.cfg.AllocatePath + "?" + q.Encode()
}

// OpenJobBoard loads the job board and waits, at most the settle delay, for
// the ongoing-jobs region to render.
func (s *Scanner) OpenJobBoard(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.JobBoardURL()); err != nil {
		return err
	}
	found, err := s.page.WaitFor(ctx, s.cfg.OngoingRegion, s.cfg.Settle)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("[portal] %s did not render within %s", s.cfg.OngoingRegion, s.cfg.Settle)
	}
	return nil
}

// CheckOngoing looks for a confirm button in the ongoing-jobs region, opens
// it and confirms the job when its ids can be read from the page.
func (s *Scanner) CheckOngoing(ctx context.Context) error {
	if err := s.OpenJobBoard(ctx); err != nil {
		return fmt.Errorf("open job board: %w", err)
	}

	sel := s.cfg.OngoingConfirm
	found, err := s.page.Exists(ctx, sel)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("[portal] no ongoing jobs (%s absent)", sel)
		return nil
	}

	s.snapshot(ctx)
	region, err := s.page.OuterHTML(ctx, s.cfg.OngoingRegion)
	if err != nil {
		log.Printf("[portal] read ongoing region: %v", err)
	}

	if err := s.page.Click(ctx, sel); err != nil {
		log.Printf("[portal] %s found, but not clickable: %v", sel, err)
		s.send(ctx, "A task was found, but it couldn't be clicked to open and confirm.")
		return nil
	}
	s.send(ctx, "Ongoing task details opened on the portal.")

	taskID, translationID, ok := ExtractIDs(region)
	if !ok {
		// details view may carry the ids once opened
		if page, err := s.page.OuterHTML(ctx, "html"); err == nil {
			taskID, translationID, ok = ExtractIDs(page)
		}
	}
	if !ok {
		log.Printf("[portal] ongoing task opened but ids not found on page")
		s.send(ctx, "Ongoing task opened, but its ids were not found on the page. Confirm it manually.")
		return nil
	}

	_, err = s.Confirm(ctx, taskID, translationID)
	return err
}

// CheckAvailable reads the available-jobs feed and acts on its first entry
// only: confirm, alert, then capture the job board.
func (s *Scanner) CheckAvailable(ctx context.Context) error {
	var feed domain.AvailableJobs
	if err := s.page.FetchJSON(ctx, s.availableURL(), &feed); err != nil {
		return fmt.Errorf("available jobs: %w", err)
	}
	jobs := feed.FutureAllocatedRevisionJobs
	if len(jobs) == 0 {
		return nil
	}

	job := jobs[0]
	log.Printf("[portal] %d new jobs available, taking task=%s translation=%s", len(jobs), job.TaskID, job.TranslationID)

	_, confirmErr := s.Confirm(ctx, job.TaskID, job.TranslationID)
	if confirmErr != nil {
		log.Printf("[portal] %v", confirmErr)
	}

	s.send(ctx, "Portal task found in the available-jobs feed. Saving source to examine.\n"+JobInfo(job, s.cfg.Location))

	if err := s.page.Navigate(ctx, s.JobBoardURL()); err != nil {
		return errors.Join(confirmErr, err)
	}
	s.snapshot(ctx)

	if err := s.page.Settle(ctx, s.cfg.AfterAvailable); err != nil {
		return errors.Join(confirmErr, err)
	}
	return confirmErr
}

// Confirm pre-allocates a translation. A portal refusal is reported through
// the notifier and returns (false, nil).
func (s *Scanner) Confirm(ctx context.Context, taskID, translationID domain.ID) (bool, error) {
	if taskID == "" || translationID == "" {
		return false, errors.New("confirm: task and translation ids are required")
	}

	ev := store.Event{Kind: store.KindConfirm, TaskID: taskID.String(), TranslationID: translationID.String()}

	var res domain.AllocateResult
	if err := s.page.FetchJSON(ctx, s.allocateURL(taskID, translationID), &res); err != nil {
		ev.Detail = err.Error()
		s.record(ctx, ev)
		return false, fmt.Errorf("confirm task %s: %w", taskID, err)
	}

	ev.OK = res.IsSuccess
	ev.Detail = res.Message
	s.record(ctx, ev)

	if res.IsSuccess {
		log.Printf("[portal] confirmed task=%s translation=%s", taskID, translationID)
		s.send(ctx, "Task confirmed")
	} else {
		log.Printf("[portal] task not confirmed task=%s translation=%s msg=%q", taskID, translationID, res.Message)
		s.send(ctx, "Task not confirmed")
	}
	return res.IsSuccess, nil
}

// Snapshot captures the current page; failures are logged, never returned.
func (s *Scanner) Snapshot(ctx context.Context) { s.snapshot(ctx) }

func (s *Scanner) snapshot(ctx context.Context) {
	p, err := s.page.Snapshot(ctx)
	if err != nil {
		log.Printf("[portal] snapshot failed: %v", err)
		return
	}
	s.record(ctx, store.Event{Kind: store.KindSnapshot, OK: true, Detail: p.HTML})
}

func (s *Scanner) send(ctx context.Context, msg any) {
	s.notify.Send(ctx, msg)
}

func (s *Scanner) record(ctx context.Context, e store.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, e); err != nil {
		log.Printf("[portal] audit: %v", err)
	}
}
