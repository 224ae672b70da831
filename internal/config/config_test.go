package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yml", `
portal:
  username: translator@example.com
email:
  username: inbox@example.com
telegram:
  chat_ids: ["111", "222"]
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.LoopDelay())
	assert.Equal(t, 4*time.Second, cfg.SettleDelay())
	assert.Equal(t, "https://www.tm-stream.com", cfg.Portal.BaseURL)
	assert.Equal(t, "#form-username", cfg.Portal.Selectors.Username)
	assert.Equal(t, []string{"New Job Alert", "New revision job coming up"}, cfg.Email.SearchSubjectAny)
	assert.True(t, cfg.Email.Enabled)
	assert.True(t, cfg.Email.MarkSeen)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"111", "222"}, cfg.Telegram.ChatIDs)
}

func TestLoadKeepsExplicitFalse(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yml", `
browser:
  headless: false
email:
  enabled: false
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.False(t, cfg.Email.Enabled)
}

func TestApplyEnvOverlay(t *testing.T) {
	t.Setenv("TMWATCH_PORTAL_USERNAME", "env-user")
	t.Setenv("TMWATCH_CHAT_IDS", " 1, ,2 ")
	t.Setenv("TMWATCH_EMAIL_ENABLED", "false")

	cfg := Default()
	ApplyEnv(&cfg)

	assert.Equal(t, "env-user", cfg.Portal.Username)
	assert.Equal(t, []string{"1", "2"}, cfg.Telegram.ChatIDs)
	assert.False(t, cfg.Email.Enabled)
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestNormalizeAndValidate(t *testing.T) {
	cfg := Default()
	cfg.Portal.Username = "u"
	cfg.Email.Username = "inbox@example.com"
	cfg.Portal.BaseURL = "https://portal.example.com/"
	cfg.Email.SearchSubjectAny = []string{" New Job Alert ", "new job alert", ""}
	cfg.Telegram.ChatIDs = []string{"1"}

	out, res := NormalizeAndValidate(cfg)
	assert.True(t, res.OK(), res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "https://portal.example.com", out.Portal.BaseURL)
	assert.Equal(t, []string{"New Job Alert"}, out.Email.SearchSubjectAny)
}

func TestEmptyMailUsernameIsOnlyAWarning(t *testing.T) {
	cfg := Default()
	cfg.Portal.Username = "u"
	cfg.Telegram.ChatIDs = []string{"1"}

	_, res := NormalizeAndValidate(cfg)
	assert.True(t, res.OK(), res.Errors)
	assert.Equal(t, []string{"email.username is empty; mail checks will fail to log in until it is set."}, res.Warnings)
}

func TestNormalizeAndValidateReportsErrors(t *testing.T) {
	cfg := Default()
	cfg.Polling.LoopSeconds = -1
	cfg.Portal.Timezone = "Nowhere/Invalid"

	_, res := NormalizeAndValidate(cfg)
	assert.False(t, res.OK())
	assert.Contains(t, res.Errors, "polling.loop_seconds must be > 0")
	assert.Contains(t, res.Errors, "portal.username is required")
	assert.Contains(t, res.Warnings, "email.username is empty; mail checks will fail to log in until it is set.")
	assert.Contains(t, res.Warnings, "telegram.chat_ids is empty; alerts will only be logged.")
	assert.Contains(t, res.Error(), "config validation failed")
}

func TestEnsureUserConfigSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yml", "polling:\n  loop_seconds: 7\n")
	dataDir := filepath.Join(dir, "data")

	p, err := EnsureUserConfig(dataDir, def)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "config.yml"), p)

	require.NoError(t, os.WriteFile(p, []byte("polling:\n  loop_seconds: 9\n"), 0o644))
	p2, err := EnsureUserConfig(dataDir, def)
	require.NoError(t, err)

	cfg, err := Load(p2)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Polling.LoopSeconds)
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.App.DataDir = "/var/lib/tmwatch"
	assert.Equal(t, filepath.Join("/var/lib/tmwatch", "errors.log"), cfg.Resolve("errors.log"))
	assert.Equal(t, "/tmp/x.log", cfg.Resolve("/tmp/x.log"))
	assert.Equal(t, "", cfg.Resolve(""))
}
