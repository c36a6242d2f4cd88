package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "CACHE_BACKEND", "CORS_ALLOWED_ORIGINS", "RUN_MIGRATIONS", "JWT_ACCESS_TTL", "TRUST_PROXY_HEADERS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, time.Hour, cfg.JWTAccessTTL)
	assert.Equal(t, "0 0 1 * *", cfg.CardExpirySchedule)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("AUTH_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.AuthRateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.TrustProxyHeaders)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RUN_MIGRATIONS", "maybe")
	t.Setenv("CACHE_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoadDotEnv_DoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BANKCARDS_TEST_A=from-file\nBANKCARDS_TEST_B=\"quoted\"\n"), 0o600))

	t.Setenv("BANKCARDS_TEST_A", "from-env")
	os.Unsetenv("BANKCARDS_TEST_B")
	t.Cleanup(func() { os.Unsetenv("BANKCARDS_TEST_B") })

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-env", os.Getenv("BANKCARDS_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("BANKCARDS_TEST_B"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
