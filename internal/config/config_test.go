package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "FC", cfg.Business.DefaultModality)
	assert.Equal(t, 10*time.Minute, cfg.Calendar.CacheTTL)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
	assert.Empty(t, cfg.Notify.Supervisors)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "guardduty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
database:
  driver: pgx
  url: postgres://localhost/guardduty
business:
  timezone: Europe/Madrid
notify:
  supervisors: [sam, lee]
  timeout: 2s
`), 0o600))
	t.Setenv("GUARDDUTY_HTTP_ADDR", ":7070")
	t.Setenv("GUARDDUTY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"sam", "lee"}, cfg.Notify.Supervisors)
	assert.Equal(t, 2*time.Second, cfg.Notify.Timeout)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GUARDDUTY_AUTH_JWT_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GUARDDUTY_AUTH_JWT_SECRET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	cases := map[string]string{
		"GUARDDUTY_DATABASE_DRIVER":           "oracle",
		"GUARDDUTY_BUSINESS_TIMEZONE":         "Mars/Olympus",
		"GUARDDUTY_BUSINESS_DEFAULT_MODALITY": "not valid",
		"GUARDDUTY_NOTIFY_WORKERS":            "0",
		"GUARDDUTY_TRACING_SAMPLING_RATIO":    "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
