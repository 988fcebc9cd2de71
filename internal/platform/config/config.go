// Package config builds runtime configuration from environment variables so
// main stays lean. All durations accept Go duration syntax.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig carries connection settings for the aggregate stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig carries broker and topic settings for the three queues and the
// change feed.
type KafkaConfig struct {
	Brokers []string
	// ConsumerGroup prefixes the per-consumer group ids.
	ConsumerGroup string

	InboundEventsTopic  string
	SessionChangesTopic string
	NotificationsTopic  string
	AuditTopic          string
}

// DeliveryConfig bounds the notification provider retry loop.
type DeliveryConfig struct {
	MaxRetries int
	Backoff    time.Duration
	// AtMostOnce claims the notified flag atomically before enqueueing,
	// trading possible lost notifications for no duplicates. When false the
	// advisory check-then-set sequence is used and a duplicate send is
	// possible under concurrent triggers.
	AtMostOnce bool

	ProviderBaseURL string
	ProviderAPIKey  string

	StaticTemplateID   string
	DynamicTemplateID  string
	FallbackTemplateID string
	FailureTemplateID  string
}

// Config is the root configuration for the worker binary.
type Config struct {
	OpsAddr     string
	ComponentID string

	Redis    RedisConfig
	Kafka    KafkaConfig
	Delivery DeliveryConfig

	// PostgresURL enables the audit archive worker when non-empty.
	PostgresURL string

	// AuthSessionTTL bounds the short-lived auth record.
	AuthSessionTTL time.Duration
	// SessionTTL is the initial session record horizon.
	SessionTTL time.Duration
	// AsyncJourneyTTL is the long horizon applied once the journey goes
	// async; the out-of-band document check can take weeks.
	AsyncJourneyTTL time.Duration

	// RedriveEnabled bypasses the idempotency guard for deliberate replay.
	RedriveEnabled bool

	// ClientLandingPages maps OAuth client ids to the page a user returns
	// to. Unknown or blank client ids resolve to DefaultLandingPage.
	ClientLandingPages map[string]string
	DefaultLandingPage string
}

// defaultLandingPages seeds the client lookup; override with
// IPVRETURN_CLIENT_LANDING_PAGES (JSON object).
var defaultLandingPages = map[string]string{
	"ekwU": "https://signin.account.gov.uk/credential-issuer/return",
}

// FromEnv reads configuration from the environment, applying development
// defaults for anything unset.
func FromEnv() Config {
	return Config{
		OpsAddr:     envOr("IPVRETURN_OPS_ADDR", ":8081"),
		ComponentID: envOr("IPVRETURN_COMPONENT_ID", "ipvreturn"),
		Redis: RedisConfig{
			URL:          envOr("IPVRETURN_REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     envInt("IPVRETURN_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("IPVRETURN_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("IPVRETURN_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("IPVRETURN_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("IPVRETURN_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:             strings.Split(envOr("IPVRETURN_KAFKA_BROKERS", "localhost:9092"), ","),
			ConsumerGroup:       envOr("IPVRETURN_CONSUMER_GROUP", "ipvreturn"),
			InboundEventsTopic:  envOr("IPVRETURN_TOPIC_EVENTS", "ipvreturn.events"),
			SessionChangesTopic: envOr("IPVRETURN_TOPIC_SESSION_CHANGES", "ipvreturn.session-changes"),
			NotificationsTopic:  envOr("IPVRETURN_TOPIC_NOTIFICATIONS", "ipvreturn.notifications"),
			AuditTopic:          envOr("IPVRETURN_TOPIC_AUDIT", "ipvreturn.audit"),
		},
		Delivery: DeliveryConfig{
			MaxRetries:         envInt("IPVRETURN_DELIVERY_MAX_RETRIES", 3),
			Backoff:            envDuration("IPVRETURN_DELIVERY_BACKOFF", 10*time.Second),
			AtMostOnce:         os.Getenv("IPVRETURN_DELIVERY_AT_MOST_ONCE") == "true",
			ProviderBaseURL:    envOr("IPVRETURN_NOTIFY_BASE_URL", "https://api.notifications.service.gov.uk"),
			ProviderAPIKey:     os.Getenv("IPVRETURN_NOTIFY_API_KEY"),
			StaticTemplateID:   envOr("IPVRETURN_TEMPLATE_STATIC", "9f4bd7c7-6560-4e59-9c95-4b5b05ec3ab4"),
			DynamicTemplateID:  envOr("IPVRETURN_TEMPLATE_DYNAMIC", "15e295ff-a3a3-41a9-9ba9-6fcdf271c909"),
			FallbackTemplateID: envOr("IPVRETURN_TEMPLATE_FALLBACK", "897a1f0a-4d9e-4f31-9f6e-2e2c37f3b2d0"),
			FailureTemplateID:  envOr("IPVRETURN_TEMPLATE_FAILURE", "b7b65a54-36a6-41b1-9a2d-37cfb15a96b1"),
		},
		PostgresURL:        os.Getenv("IPVRETURN_POSTGRES_URL"),
		AuthSessionTTL:     envDuration("IPVRETURN_AUTH_SESSION_TTL", time.Hour),
		SessionTTL:         envDuration("IPVRETURN_SESSION_TTL", 24*time.Hour),
		AsyncJourneyTTL:    envDuration("IPVRETURN_ASYNC_JOURNEY_TTL", 31*24*time.Hour),
		RedriveEnabled:     os.Getenv("IPVRETURN_REDRIVE_ENABLED") == "true",
		ClientLandingPages: landingPagesFromEnv(),
		DefaultLandingPage: envOr("IPVRETURN_DEFAULT_LANDING_PAGE", "https://signin.account.gov.uk"),
	}
}

// LandingPageFor resolves the page a client's users return to after the
// document check. Unknown or blank client ids get the default page.
func (c Config) LandingPageFor(clientID string) string {
	if clientID == "" {
		return c.DefaultLandingPage
	}
	if page, ok := c.ClientLandingPages[clientID]; ok && page != "" {
		return page
	}
	return c.DefaultLandingPage
}

func landingPagesFromEnv() map[string]string {
	raw := os.Getenv("IPVRETURN_CLIENT_LANDING_PAGES")
	if raw == "" {
		pages := make(map[string]string, len(defaultLandingPages))
		for k, v := range defaultLandingPages {
			pages[k] = v
		}
		return pages
	}
	var pages map[string]string
	if err := json.Unmarshal([]byte(raw), &pages); err != nil {
		return defaultLandingPages
	}
	return pages
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
