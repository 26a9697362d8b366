package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"INTAKE_ADDR", "DATABASE_URL", "DB_MIGRATE", "REDIS_URL", "ADMIN_API_TOKEN", "SESSION_TTL",
	"CHALLENGE_TTL", "MAIL_BACKEND", "SES_REGION", "MAIL_FROM", "COOKIE_SECURE", "RATE_LIMIT_DISABLED",
}

// clearEnv blanks every key so host settings do not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_API_TOKEN", "0123456789abcdef")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Migrate)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.RateLimitOff)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, MailBackendLog, cfg.Mail.Backend)
	assert.Empty(t, cfg.Redis.URL)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_API_TOKEN", "0123456789abcdef")
	t.Setenv("INTAKE_ADDR", ":9090")
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("CHALLENGE_TTL", "5m")
	t.Setenv("MAIL_BACKEND", "ses")
	t.Setenv("MAIL_FROM", "noreply@example.org")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.Migrate)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, MailBackendSES, cfg.Mail.Backend)
}

func TestFromEnvRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short admin token", map[string]string{"ADMIN_API_TOKEN": "short"}},
		{"bad bool", map[string]string{"DB_MIGRATE": "maybe"}},
		{"bad duration", map[string]string{"SESSION_TTL": "forever"}},
		{"negative duration", map[string]string{"CHALLENGE_TTL": "-1m"}},
		{"unknown mail backend", map[string]string{"MAIL_BACKEND": "smtp"}},
		{"ses without sender", map[string]string{"MAIL_BACKEND": "ses"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ADMIN_API_TOKEN", "0123456789abcdef")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("INTAKE_ADDR")
	os.Unsetenv("ADMIN_API_TOKEN")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_API_TOKEN=fedcba9876543210\nINTAKE_ADDR=:7070\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "fedcba9876543210", cfg.AdminToken)
}
