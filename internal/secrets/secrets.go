package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// “Service” groups the watcher's secrets in the OS keychain.
	KeyringService = "tmwatch"
)

// Secret names one credential and where to look for it.
type Secret struct {
	EnvVar  string // checked first
	Account string // keyring account under KeyringService
}

func PortalPassword(username string) Secret {
	return Secret{EnvVar: "TMWATCH_PORTAL_PASSWORD", Account: "tmwatch:portal:" + username}
}

func IMAPPassword(username, host string) Secret {
	return Secret{EnvVar: "TMWATCH_IMAP_PASSWORD", Account: fmt.Sprintf("tmwatch:imap:%s@%s", username, host)}
}

func BotToken() Secret {
	return Secret{EnvVar: "TMWATCH_BOT_TOKEN", Account: "tmwatch:telegram:bot"}
}

// Get resolves the secret from the environment, then the keyring.
func Get(s Secret) (string, error) {
	if s.EnvVar != "" {
		if v := strings.TrimSpace(os.Getenv(s.EnvVar)); v != "" {
			return v, nil
		}
	}
	if strings.TrimSpace(s.Account) != "" {
		pw, err := keyring.Get(KeyringService, s.Account)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring %s: %w", s.Account, err)
		}
	}
	return "", fmt.Errorf("secret not found (set %s or store it in the keychain as %q)", s.EnvVar, s.Account)
}
