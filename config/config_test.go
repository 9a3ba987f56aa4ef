package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Web.Port)
	assert.Equal(t, "sessions", cfg.WhatsApp.SessionsDir)
	assert.Equal(t, 0, cfg.WhatsApp.Reconnect.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Web.StartTimeout)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "wagate.yml")
	content := `
web:
  port: 8080
whatsapp:
  sessions_dir: /var/lib/wagate
  reconnect:
    max_delay: 30s
    max_attempts: 12
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	t.Setenv("PORT", "9090")
	t.Setenv("WAGATE_TERMINAL_QR", "true")

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.True(t, cfg.WhatsApp.TerminalQR)
	assert.Equal(t, 12, cfg.WhatsApp.Reconnect.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.WhatsApp.Reconnect.MaxDelay)
	assert.Equal(t, "/var/lib/wagate", cfg.GetSessionsDir())
}

func TestLoadConfigIgnoresBadPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "not-a-port")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Web.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadConfigZeroMaxDelayFallsBack(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "wagate.yml")
	content := `
whatsapp:
  reconnect:
    max_delay: 0s
    multiplier: 0.5
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.WhatsApp.Reconnect.MaxDelay)
	assert.Equal(t, float64(1), cfg.WhatsApp.Reconnect.Multiplier)
}
