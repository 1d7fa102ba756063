package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_FallbackWhenUnset(t *testing.T) {
	assert.Equal(t, "default", getEnv("CHANNEL_SYNC_TEST_KEY_UNSET", "default"))

	t.Setenv("CHANNEL_SYNC_TEST_KEY", "custom")
	assert.Equal(t, "custom", getEnv("CHANNEL_SYNC_TEST_KEY", "default"))
}

func TestGetEnvInt_FallbackOnMissingOrInvalid(t *testing.T) {
	assert.Equal(t, 25, getEnvInt("CHANNEL_SYNC_TEST_INT_UNSET", 25))

	t.Setenv("CHANNEL_SYNC_TEST_INT", "not-a-number")
	assert.Equal(t, 25, getEnvInt("CHANNEL_SYNC_TEST_INT", 25))

	t.Setenv("CHANNEL_SYNC_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("CHANNEL_SYNC_TEST_INT", 25))
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "channel_sync", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=channel_sync sslmode=disable", d.DSN())
}

func TestDefaultRateLimits_CoversAllChannels(t *testing.T) {
	rules := DefaultRateLimits()
	for _, ch := range []string{"airbnb", "booking_com", "expedia", "fewo_direkt", "google"} {
		_, ok := rules[ch]
		assert.True(t, ok, "missing rate limit rule for %s", ch)
	}
}

func TestDefaultCircuitBreakers_CoversAllChannels(t *testing.T) {
	rules := DefaultCircuitBreakers()
	for _, ch := range []string{"airbnb", "booking_com", "expedia", "fewo_direkt", "google"} {
		rule, ok := rules[ch]
		assert.True(t, ok, "missing circuit breaker rule for %s", ch)
		assert.Equal(t, 5, rule.FailureThreshold)
	}
}

func TestDefaultRequireWebhookSignature_DefaultsAllTrue(t *testing.T) {
	rules := DefaultRequireWebhookSignature()
	for _, ch := range []string{"airbnb", "booking_com", "expedia", "fewo_direkt"} {
		required, ok := rules[ch]
		assert.True(t, ok, "missing signature requirement for %s", ch)
		assert.True(t, required, "%s must require its signature header by default", ch)
	}
}

func TestGetEnvBool_FallbackOnMissingOrInvalid(t *testing.T) {
	assert.True(t, getEnvBool("CHANNEL_SYNC_TEST_BOOL_UNSET", true))

	t.Setenv("CHANNEL_SYNC_TEST_BOOL", "not-a-bool")
	assert.True(t, getEnvBool("CHANNEL_SYNC_TEST_BOOL", true))

	t.Setenv("CHANNEL_SYNC_TEST_BOOL", "false")
	assert.False(t, getEnvBool("CHANNEL_SYNC_TEST_BOOL", true))

	t.Setenv("CHANNEL_SYNC_TEST_BOOL", "true")
	assert.True(t, getEnvBool("CHANNEL_SYNC_TEST_BOOL", false))
}

func TestLoad_RequireWebhookSignatureDefaultsTrue(t *testing.T) {
	cfg := Load()
	for _, ch := range []string{"airbnb", "booking_com", "expedia", "fewo_direkt"} {
		assert.True(t, cfg.RequireWebhookSignature[ch], "%s must default to requiring its signature", ch)
	}
}
