package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Error() string {
	return "config validation failed:\n- " + strings.Join(v.Errors, "\n- ")
}

// NormalizeAndValidate returns a normalized copy plus the problems found.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Email.SearchSubjectAny = trimList(out.Email.SearchSubjectAny)
	out.Telegram.ChatIDs = trimList(out.Telegram.ChatIDs)
	out.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(out.Portal.BaseURL), "/")

	// polling sanity
	if out.Polling.LoopSeconds <= 0 {
		res.addErr("polling.loop_seconds must be > 0")
	} else if out.Polling.LoopSeconds < 5 {
		res.addWarn("polling.loop_seconds is very low (%d) and may get the portal account throttled.", out.Polling.LoopSeconds)
	}
	if out.Polling.SettleMillis < 0 || out.Polling.AfterAvailableMs < 0 {
		res.addErr("polling delays must be >= 0")
	}
	if out.Polling.WaitTimeoutSeconds <= 0 {
		res.addErr("polling.wait_timeout_seconds must be > 0")
	}

	// portal
	if u, err := url.Parse(out.Portal.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		res.addErr("portal.base_url must be an absolute URL, got %q", out.Portal.BaseURL)
	}
	if strings.TrimSpace(out.Portal.Username) == "" {
		res.addErr("portal.username is required")
	}
	if out.Portal.RequestsPerSecond <= 0 {
		res.addErr("portal.requests_per_second must be > 0")
	}
	if _, err := out.Location(); err != nil {
		res.addErr("portal.timezone %q: %v", out.Portal.Timezone, err)
	}

	// email required fields if enabled (password not required here; it's in env/keychain)
	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort <= 0 || out.Email.IMAPPort > 65535 {
			res.addErr("email.imap_port must be 1..65535 when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addWarn("email.username is empty; mail checks will fail to log in until it is set.")
		}
		if len(out.Email.SearchSubjectAny) == 0 {
			res.addWarn("email.search_subject_any is empty; every unseen message will match.")
		}
	}

	if len(out.Telegram.ChatIDs) == 0 {
		res.addWarn("telegram.chat_ids is empty; alerts will only be logged.")
	}
	if out.Telegram.MessagesPerSecond <= 0 {
		res.addErr("telegram.messages_per_second must be > 0")
	}

	return out, res
}
