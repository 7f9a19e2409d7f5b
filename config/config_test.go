package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	unsetForTest(t, "APP_PORT", "PORT", "ALLOWED_ORIGIN", "EVENT_LOG_BACKEND", "DEFAULT_CURRENCY", "EVENT_DEDUPE_TTL")

	cfg := LoadConfig()

	assert.Equal(t, "10000", cfg.AppPort)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, EventLogPostgres, cfg.EventLogBackend)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 24*time.Hour, cfg.EventDedupeTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "8081")
	t.Setenv("ALLOWED_ORIGIN", "https://a.example, https://b.example,")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("EVENT_DEDUPE_TTL", "90m")
	t.Setenv("INGEST_RATE_LIMIT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "8081", cfg.AppPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 90*time.Minute, cfg.EventDedupeTTL)
	assert.Equal(t, 600, cfg.IngestRateLimit)
}

func TestLoadConfigFallsBackToPort(t *testing.T) {
	unsetForTest(t, "APP_PORT")
	t.Setenv("PORT", "3000")

	assert.Equal(t, "3000", LoadConfig().AppPort)
}

// unsetForTest removes keys for the duration of the test and restores them afterwards.
func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
