package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 8315, cfg.Server.Port)
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "medikit.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "badger"), cfg.Storage.BadgerPath)
	assert.Equal(t, "https://cima.aemps.es/cima/rest", cfg.Lookup.BaseURL)
	assert.NotEmpty(t, cfg.Security.JWTSecret)
	assert.False(t, cfg.Channels.Telegram.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medikit.yaml")

	content := `
server:
  port: 9000
lookup:
  rate_per_second: 0.5
security:
  pin: "1234"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Lookup.RatePerSecond)
	assert.Equal(t, "1234", cfg.Security.PIN)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("MEDIKIT_SERVER_PORT", "9100")
	t.Setenv("MEDIKIT_SECURITY_PIN", "4321")
	t.Setenv("MEDIKIT_CHANNELS_TELEGRAM_BOT_TOKEN", "tok-123")

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "4321", cfg.Security.PIN)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "tok-123", cfg.Channels.Telegram.BotToken)
}

func TestLoad_TelegramEnabledWithoutToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medikit.yaml")

	content := `
channels:
  telegram:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path, dir)
	assert.Error(t, err)
}
