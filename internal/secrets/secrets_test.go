package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestGetPrefersEnv(t *testing.T) {
	keyring.MockInit()
	s := PortalPassword("me")
	require.NoError(t, keyring.Set(KeyringService, s.Account, "from-keyring"))
	t.Setenv(s.EnvVar, "from-env")

	v, err := Get(s)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestGetFallsBackToKeyring(t *testing.T) {
	keyring.MockInit()
	s := IMAPPassword("inbox@example.com", "imap.example.com")
	t.Setenv(s.EnvVar, "")
	require.NoError(t, keyring.Set(KeyringService, s.Account, "app-password"))

	v, err := Get(s)
	require.NoError(t, err)
	assert.Equal(t, "app-password", v)
	assert.Equal(t, "tmwatch:imap:inbox@example.com@imap.example.com", s.Account)
}

func TestGetMissing(t *testing.T) {
	keyring.MockInit()
	s := BotToken()
	t.Setenv(s.EnvVar, "")

	_, err := Get(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TMWATCH_BOT_TOKEN")
}

func TestGetIgnoresBlankKeyringEntry(t *testing.T) {
	keyring.MockInit()
	s := BotToken()
	t.Setenv(s.EnvVar, "")
	require.NoError(t, keyring.Set(KeyringService, s.Account, "  "))

	_, err := Get(s)
	assert.Error(t, err)
}
