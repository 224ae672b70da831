package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"tmwatch/internal/browser"
	"tmwatch/internal/config"
	"tmwatch/internal/events"
	"tmwatch/internal/evidence"
	"tmwatch/internal/httpapi"
	"tmwatch/internal/mailcheck"
	"tmwatch/internal/notify"
	"tmwatch/internal/poll"
	"tmwatch/internal/portal"
	"tmwatch/internal/secrets"
	"tmwatch/internal/store"
)

const auditRetention = 30 * 24 * time.Hour

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf(".env load failed: %v", err)
	}

	dataDir := os.Getenv("TMWATCH_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}
	raw, err := config.Load(userCfgPath)
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfg, v := config.NormalizeAndValidate(raw)
	for _, w := range v.Warnings {
		log.Printf("[config] warning: %s", w)
	}
	if !v.OK() {
		log.Fatalf("config invalid (%s): %v", userCfgPath, v)
	}

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		log.Fatal(err)
	}
	logFile, err := os.OpenFile(cfg.Resolve(cfg.App.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	lock := flock.New(cfg.Resolve(cfg.App.LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("lock %s: %v", lock.Path(), err)
	}
	if !locked {
		log.Fatalf("another tmwatch instance holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("portal timezone: %v", err)
	}

	portalPass, err := secrets.Get(secrets.PortalPassword(cfg.Portal.Username))
	if err != nil {
		log.Fatalf("portal password: %v", err)
	}
	token, err := secrets.Get(secrets.BotToken())
	if err != nil {
		log.Printf("[notify] bot token unavailable, alerts will fail: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var audit *store.DB
	if cfg.App.AuditDB != "" {
		audit, err = store.Open(cfg.Resolve(cfg.App.AuditDB))
		if err != nil {
			log.Fatalf("open audit db: %v", err)
		}
		defer audit.Close()
		if n, err := audit.Cleanup(ctx, auditRetention); err != nil {
			log.Printf("[store] cleanup: %v", err)
		} else if n > 0 {
			log.Printf("[store] pruned %d events", n)
		}
	}

	var statusLn net.Listener
	if cfg.App.StatusAddr != "" {
		statusLn, err = httpapi.Listen(cfg.App.StatusAddr)
		if err != nil {
			log.Fatalf("status server: %v", err)
		}
		defer statusLn.Close()
	}

	ev := evidence.NewWriter(cfg.Resolve(cfg.App.EvidenceDir))
	driver := browser.New(browser.Options{
		Headless:          cfg.Browser.Headless,
		ExecPath:          cfg.Browser.ExecPath,
		UserAgent:         cfg.Browser.UserAgent,
		Width:             cfg.Browser.Width,
		Height:            cfg.Browser.Height,
		WaitTimeout:       cfg.WaitTimeout(),
		LoginMarker:       "/login/",
		RequestsPerSecond: cfg.Portal.RequestsPerSecond,
	}, ev)
	if err := driver.Prepare(ctx); err != nil {
		log.Fatalf("browser: %v", err)
	}
	defer driver.Close()

	form := browser.LoginForm{
		URL:            cfg.Portal.BaseURL + cfg.Portal.LoginPath,
		UserSelector:   cfg.Portal.Selectors.Username,
		PassSelector:   cfg.Portal.Selectors.Password,
		SubmitSelector: cfg.Portal.Selectors.Submit,
		Username:       cfg.Portal.Username,
		Password:       portalPass,
	}
	if err := driver.Login(ctx, form); err != nil {
		driver.Close()
		log.Fatalf("portal login: %v", err)
	}
	log.Printf("[portal] logged in as %s", cfg.Portal.Username)

	tg := notify.New(notify.Config{
		APIBase:           cfg.Telegram.APIBase,
		Token:             token,
		ChatIDs:           cfg.Telegram.ChatIDs,
		MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
	}, nil)
	var rec portal.Recorder
	var loopAudit poll.Recorder
	var alertAudit events.Recorder
	var eventSrc httpapi.EventSource
	if audit != nil {
		rec, loopAudit, alertAudit, eventSrc = audit, audit, audit, audit
	}
	hub := events.NewHub()
	alerts := events.Tee{Next: tg, Hub: hub, Audit: alertAudit}

	scanner := portal.NewScanner(portal.Config{
		BaseURL:           cfg.Portal.BaseURL,
		JobBoardPath:      cfg.Portal.JobBoardPath,
		AvailableJobsPath: cfg.Portal.AvailableJobsPath,
		AllocatePath:      cfg.Portal.AllocatePath,
		OngoingRegion:     cfg.Portal.Selectors.OngoingRegion,
		OngoingConfirm:    cfg.Portal.Selectors.OngoingConfirm,
		Settle:            cfg.SettleDelay(),
		AfterAvailable:    cfg.AfterAvailableDelay(),
		Location:          loc,
	}, driver, alerts, rec)

	loop := &poll.Loop{
		Scanner: scanner,
		Notify:  alerts,
		Audit:   loopAudit,
		Delay:   cfg.LoopDelay(),
		Relogin: func(ctx context.Context) error { return driver.Login(ctx, form) },
	}
	if cfg.Email.Enabled {
		imapPass, err := secrets.Get(secrets.IMAPPassword(cfg.Email.Username, cfg.Email.IMAPHost))
		if err != nil {
			log.Printf("[mail] password unavailable, mail checks will warn: %v", err)
		}
		loop.Mail = mailcheck.New(mailcheck.Config{
			Host:     cfg.Email.IMAPHost,
			Port:     cfg.Email.IMAPPort,
			Username: cfg.Email.Username,
			Password: imapPass,
			Mailbox:  cfg.Email.Mailbox,
			Subjects: cfg.Email.SearchSubjectAny,
			MarkSeen: cfg.Email.MarkSeen,
		})
	}

	var status func(context.Context) error
	if statusLn != nil {
		h := httpapi.NewHandler(httpapi.Deps{Loop: loop, Audit: eventSrc, Hub: hub, Started: time.Now()})
		status = func(ctx context.Context) error { return httpapi.Serve(ctx, statusLn, h) }
	}

	if err := runWatcher(ctx, loop.Run, status); err != nil {
		log.Printf("[main] stopped: %v", err)
		return
	}
	log.Printf("[main] shutdown complete")
}
