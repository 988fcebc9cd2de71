package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8081", cfg.OpsAddr)
	assert.Equal(t, "ipvreturn", cfg.ComponentID)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "ipvreturn.events", cfg.Kafka.InboundEventsTopic)
	assert.Equal(t, time.Hour, cfg.AuthSessionTTL)
	assert.Equal(t, 31*24*time.Hour, cfg.AsyncJourneyTTL)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)
	assert.False(t, cfg.Delivery.AtMostOnce)
	assert.False(t, cfg.RedriveEnabled)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("IPVRETURN_KAFKA_BROKERS", "broker-a:9092,broker-b:9092")
	t.Setenv("IPVRETURN_AUTH_SESSION_TTL", "30m")
	t.Setenv("IPVRETURN_DELIVERY_MAX_RETRIES", "5")
	t.Setenv("IPVRETURN_DELIVERY_AT_MOST_ONCE", "true")
	t.Setenv("IPVRETURN_CLIENT_LANDING_PAGES", `{"abCD":"https://example.test/return"}`)

	cfg := FromEnv()

	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.AuthSessionTTL)
	assert.Equal(t, 5, cfg.Delivery.MaxRetries)
	assert.True(t, cfg.Delivery.AtMostOnce)
	assert.Equal(t, "https://example.test/return", cfg.ClientLandingPages["abCD"])
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("IPVRETURN_AUTH_SESSION_TTL", "not-a-duration")
	t.Setenv("IPVRETURN_DELIVERY_MAX_RETRIES", "lots")
	t.Setenv("IPVRETURN_CLIENT_LANDING_PAGES", "{broken json")

	cfg := FromEnv()

	assert.Equal(t, time.Hour, cfg.AuthSessionTTL)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)
	assert.Equal(t, "https://signin.account.gov.uk/credential-issuer/return", cfg.ClientLandingPages["ekwU"])
}

func TestLandingPageFor(t *testing.T) {
	cfg := Config{
		ClientLandingPages: map[string]string{
			"ekwU":  "https://signin.account.gov.uk/credential-issuer/return",
			"blank": "",
		},
		DefaultLandingPage: "https://signin.account.gov.uk",
	}

	assert.Equal(t, "https://signin.account.gov.uk/credential-issuer/return", cfg.LandingPageFor("ekwU"))
	assert.Equal(t, "https://signin.account.gov.uk", cfg.LandingPageFor(""), "blank client id gets the default")
	assert.Equal(t, "https://signin.account.gov.uk", cfg.LandingPageFor("unknown"))
	assert.Equal(t, "https://signin.account.gov.uk", cfg.LandingPageFor("blank"), "empty mapping falls through")
}
