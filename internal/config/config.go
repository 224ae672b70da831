// internal/config/config.go
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Selectors struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Submit         string `yaml:"submit"`
	OngoingRegion  string `yaml:"ongoing_region"`
	OngoingConfirm string `yaml:"ongoing_confirm"`
}

type Config struct {
	App struct {
		DataDir     string `yaml:"data_dir"`
		LogFile     string `yaml:"log_file"`
		EvidenceDir string `yaml:"evidence_dir"`
		LockFile    string `yaml:"lock_file"`
		AuditDB     string `yaml:"audit_db"`    // empty disables the audit journal
		StatusAddr  string `yaml:"status_addr"` // empty disables the status server
	} `yaml:"app"`

	Polling struct {
		LoopSeconds        int `yaml:"loop_seconds"`
		SettleMillis       int `yaml:"settle_ms"`
		AfterAvailableMs   int `yaml:"after_available_ms"`
		WaitTimeoutSeconds int `yaml:"wait_timeout_seconds"`
	} `yaml:"polling"`

	Browser struct {
		Headless  bool   `yaml:"headless"`
		ExecPath  string `yaml:"exec_path"`
		UserAgent string `yaml:"user_agent"`
		Width     int    `yaml:"width"`
		Height    int    `yaml:"height"`
	} `yaml:"browser"`

	Portal struct {
		BaseURL           string    `yaml:"base_url"`
		LoginPath         string    `yaml:"login_path"`
		JobBoardPath      string    `yaml:"job_board_path"`
		AvailableJobsPath string    `yaml:"available_jobs_path"`
		AllocatePath      string    `yaml:"allocate_path"`
		Username          string    `yaml:"username"`
		Timezone          string    `yaml:"timezone"`
		RequestsPerSecond float64   `yaml:"requests_per_second"`
		Selectors         Selectors `yaml:"selectors"`
	} `yaml:"portal"`

	Email struct {
		Enabled          bool     `yaml:"enabled"`
		IMAPHost         string   `yaml:"imap_host"`
		IMAPPort         int      `yaml:"imap_port"`
		Username         string   `yaml:"username"`
		Mailbox          string   `yaml:"mailbox"`
		SearchSubjectAny []string `yaml:"search_subject_any"`
		MarkSeen         bool     `yaml:"mark_seen"`
	} `yaml:"email"`

	Telegram struct {
		APIBase           string   `yaml:"api_base"`
		ChatIDs           []string `yaml:"chat_ids"`
		MessagesPerSecond float64  `yaml:"messages_per_second"`
	} `yaml:"telegram"`
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Default is the baseline a config file is decoded on top of, so that
// booleans which default to true survive a file that omits them.
func Default() Config {
	var cfg Config
	cfg.Browser.Headless = true
	cfg.Email.Enabled = true
	cfg.Email.MarkSeen = true
	ApplyDefaults(&cfg)
	return cfg
}

func ApplyDefaults(cfg *Config) {
	setStr := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	setInt := func(p *int, v int) {
		if *p == 0 {
			*p = v
		}
	}

	setStr(&cfg.App.DataDir, ".")
	setStr(&cfg.App.LogFile, "errors.log")
	setStr(&cfg.App.EvidenceDir, "evidences")
	setStr(&cfg.App.LockFile, "tmwatch.lock")

	setInt(&cfg.Polling.LoopSeconds, 10)
	setInt(&cfg.Polling.SettleMillis, 4000)
	setInt(&cfg.Polling.AfterAvailableMs, 1000)
	setInt(&cfg.Polling.WaitTimeoutSeconds, 30)

	setInt(&cfg.Browser.Width, 1366)
	setInt(&cfg.Browser.Height, 900)

	setStr(&cfg.Portal.BaseURL, "https://www.tm-stream.com")
	setStr(&cfg.Portal.LoginPath, "/2_0/login/login.html#/Login")
	setStr(&cfg.Portal.JobBoardPath, "/2_0/TranslatorPortal/defaultng.aspx#/jobBoard")
	setStr(&cfg.Portal.AvailableJobsPath, "/2_0/Handlers/TransPortal.asmx/GetAvailableJobs")
	setStr(&cfg.Portal.AllocatePath, "/2_0/Handlers/TransPortal.asmx/AllocateTranslation")
	setStr(&cfg.Portal.Timezone, "Local")
	if cfg.Portal.RequestsPerSecond == 0 {
		cfg.Portal.RequestsPerSecond = 1
	}
	setStr(&cfg.Portal.Selectors.Username, "#form-username")
	setStr(&cfg.Portal.Selectors.Password, "#form-password")
	setStr(&cfg.Portal.Selectors.Submit, "button")
	setStr(&cfg.Portal.Selectors.OngoingRegion, ".tm-tp-ongoing-jobs")
	setStr(&cfg.Portal.Selectors.OngoingConfirm, ".tm-tp-ongoing-jobs button")

	setStr(&cfg.Email.IMAPHost, "imap.gmail.com")
	setInt(&cfg.Email.IMAPPort, 993)
	setStr(&cfg.Email.Mailbox, "INBOX")
	if len(cfg.Email.SearchSubjectAny) == 0 {
		cfg.Email.SearchSubjectAny = []string{"New Job Alert", "New revision job coming up"}
	}

	setStr(&cfg.Telegram.APIBase, "https://api.telegram.org")
	if cfg.Telegram.MessagesPerSecond == 0 {
		cfg.Telegram.MessagesPerSecond = 1
	}
}

func (c Config) LoopDelay() time.Duration {
	return time.Duration(c.Polling.LoopSeconds) * time.Second
}

func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Polling.SettleMillis) * time.Millisecond
}

func (c Config) AfterAvailableDelay() time.Duration {
	return time.Duration(c.Polling.AfterAvailableMs) * time.Millisecond
}

func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Polling.WaitTimeoutSeconds) * time.Second
}

// Location resolves portal.timezone; deadlines are rendered in it.
func (c Config) Location() (*time.Location, error) {
	if c.Portal.Timezone == "" || c.Portal.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Portal.Timezone)
}
