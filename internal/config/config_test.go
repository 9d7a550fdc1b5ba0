package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, "dynamo", cfg.StoreDriver)
	assert.Equal(t, "users", cfg.DynamoTables.Users)
	assert.Equal(t, "user_emails", cfg.DynamoTables.UserEmails)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.VerifyTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.OTP.VerifyResendTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.ResetTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "console", cfg.LogEncoding())
}

func TestLoad_Overrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_ACCESS_SECRET")
}

func TestLoad_SameSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")

	_, err := Load()
	assert.ErrorContains(t, err, "must differ")
}

func TestLoad_AccessTTLNotShorter(t *testing.T) {
	setSecrets(t)
	t.Setenv("JWT_ACCESS_TTL", "200h")

	_, err := Load()
	assert.ErrorContains(t, err, "shorter than JWT_REFRESH_TTL")
}

func TestLoad_UnknownDriver(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestParse_SkipsValidation(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("AMQP_QUEUE", "mail")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "mail", cfg.AMQPQueue)
}

func TestLoad_RateLimitWindowTooSmall(t *testing.T) {
	setSecrets(t)
	t.Setenv("RATE_LIMIT_WINDOW", "500us")

	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_WINDOW")
}

func TestLoad_RateLimitWindowLimitZero(t *testing.T) {
	setSecrets(t)
	t.Setenv("RATE_LIMIT_WINDOW_LIMIT", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_WINDOW_LIMIT")
}

func TestLoad_TrustedProxies(t *testing.T) {
	setSecrets(t)
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.RateLimit.TrustedProxies)
}

func TestLogEncoding(t *testing.T) {
	cases := []struct {
		env, format, want string
	}{
		{"development", "", "console"},
		{"production", "", "json"},
		{"production", "console", "console"},
		{"development", "json", "json"},
	}
	for _, tc := range cases {
		c := &Config{AppEnv: tc.env, LogFormat: tc.format}
		assert.Equal(t, tc.want, c.LogEncoding(), "env=%s format=%s", tc.env, tc.format)
	}
}
