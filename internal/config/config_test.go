package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "data/uploads", cfg.UploadDir)
	assert.Equal(t, "data/profile_pictures", cfg.ProfileDir)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.IsProd())
	assert.False(t, cfg.CookieSecure())
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL())
}

func TestLoadRejectsBadEnv(t *testing.T) {
	_, err := LoadFromEnv(env(map[string]string{"APP_ENV": "staging"}))
	assert.Error(t, err)
}

func TestLoadSessionTTL(t *testing.T) {
	cfg, err := LoadFromEnv(env(map[string]string{"APP_SESSION_TTL": "2h"}))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)

	_, err = LoadFromEnv(env(map[string]string{"APP_SESSION_TTL": "nope"}))
	assert.Error(t, err)

	_, err = LoadFromEnv(env(map[string]string{"APP_SESSION_TTL": "-1h"}))
	assert.Error(t, err)
}

func TestLoadPublicURL(t *testing.T) {
	cfg, err := LoadFromEnv(env(map[string]string{"APP_PUBLIC_URL": "https://files.example.com/"}))
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com", cfg.BaseURL())
	assert.True(t, cfg.CookieSecure())

	_, err = LoadFromEnv(env(map[string]string{"APP_PUBLIC_URL": "files.example.com"}))
	assert.Error(t, err)

	_, err = LoadFromEnv(env(map[string]string{"APP_PUBLIC_URL": "ftp://files.example.com"}))
	assert.Error(t, err)
}

func TestProdRequirements(t *testing.T) {
	_, err := LoadFromEnv(env(map[string]string{"APP_ENV": "prod"}))
	assert.Error(t, err)

	_, err = LoadFromEnv(env(map[string]string{
		"APP_ENV":        "prod",
		"APP_PUBLIC_URL": "https://files.example.com",
	}))
	assert.Error(t, err)

	cfg, err := LoadFromEnv(env(map[string]string{
		"APP_ENV":           "prod",
		"APP_PUBLIC_URL":    "https://files.example.com",
		"APP_COOKIE_SECRET": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.True(t, cfg.CookieSecure())
}

func TestAdminBootstrapDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(env(map[string]string{
		"APP_ADMIN_BOOTSTRAP_PASSWORD": "hunter2hunter2",
		"APP_ADMIN_BOOTSTRAP_EMAIL":    "Admin@Example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.AdminBootstrapUsername)
	assert.Equal(t, "admin@example.com", cfg.AdminBootstrapEmail)
}
