// config/overlay.go
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overlays TMWATCH_* variables onto non-secret fields.
// Secrets are resolved separately (see internal/secrets).
func ApplyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("TMWATCH_DATA_DIR", &cfg.App.DataDir)
	str("TMWATCH_STATUS_ADDR", &cfg.App.StatusAddr)
	str("TMWATCH_PORTAL_USERNAME", &cfg.Portal.Username)
	str("TMWATCH_PORTAL_BASE_URL", &cfg.Portal.BaseURL)
	str("TMWATCH_IMAP_HOST", &cfg.Email.IMAPHost)
	str("TMWATCH_IMAP_USERNAME", &cfg.Email.Username)
	boolean("TMWATCH_EMAIL_ENABLED", &cfg.Email.Enabled)
	boolean("TMWATCH_HEADLESS", &cfg.Browser.Headless)

	if v := strings.TrimSpace(os.Getenv("TMWATCH_CHAT_IDS")); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Telegram.ChatIDs = ids
	}
}
