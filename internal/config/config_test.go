package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestFromLookup_Overrides(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"ADDR":                        "127.0.0.1:9000",
		"COUNTDOWN_MS":                "0",
		"GRACE_MS":                    "1500",
		"PROGRESS_BROADCASTS_PER_SEC": "2.5",
		"ALLOWED_ORIGINS":             "example.com, *.example.org ,",
		"LOG_FORMAT":                  "json",
		"DATABASE_URL":                "postgres://localhost/race",
	}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.Zero(t, c.Countdown)
	assert.Equal(t, 1500*time.Millisecond, c.Grace)
	assert.Equal(t, 2.5, c.ProgressPerSec)
	assert.Equal(t, []string{"example.com", "*.example.org"}, c.AllowedOrigins)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, "postgres://localhost/race", c.DatabaseURL)
}

func TestFromLookup_PortFallback(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{"PORT": "3000"}))
	require.NoError(t, err)
	assert.Equal(t, ":3000", c.Addr)
}

func TestFromLookup_BadValuesKeepDefaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"GRACE_MS":            "soon",
		"WS_MESSAGES_PER_SEC": "-1",
		"SWEEP_INTERVAL_MS":   "0",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRACE_MS")
	assert.Contains(t, err.Error(), "WS_MESSAGES_PER_SEC")
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL_MS")
	assert.Equal(t, Default().Grace, c.Grace)
	assert.Equal(t, Default().WSMessagesPerSec, c.WSMessagesPerSec)
	assert.Equal(t, Default().SweepInterval, c.SweepInterval)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GRACE_MS=4242\n"), 0o600))
	t.Setenv("GRACE_MS", "")
	os.Unsetenv("GRACE_MS")

	c, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 4242*time.Millisecond, c.Grace)
}
