package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoyaltyCacheTTL bounds how long a cached loyalty balance may inform the
// operator before a fresh fetch is required.
var LoyaltyCacheTTL = 5 * time.Minute

// Server captures process-level configuration for the checkout service.
type Server struct {
	Addr           string
	JWTSigningKey  string
	TokenIssuer    string
	OrderBackend   string // base URL of the remote order service; empty runs the embedded backend
	PostgresDSN    string // empty selects in-memory stores
	RedisURL       string // empty disables the loyalty balance cache
	KafkaBrokers   []string
	AuditTopic     string
	LocationID     string
	RequestTimeout time.Duration

	// AllowBalanceDue permits finalizing a sale whose tenders do not cover the
	// total (invoice-on-account businesses). Off by default.
	AllowBalanceDue bool
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:            envOr("CHECKOUT_ADDR", ":8080"),
		JWTSigningKey:   envOr("CHECKOUT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenIssuer:     envOr("CHECKOUT_TOKEN_ISSUER", "till"),
		OrderBackend:    os.Getenv("CHECKOUT_ORDER_BACKEND_URL"),
		PostgresDSN:     os.Getenv("CHECKOUT_POSTGRES_DSN"),
		RedisURL:        os.Getenv("CHECKOUT_REDIS_URL"),
		AuditTopic:      envOr("CHECKOUT_AUDIT_TOPIC", "till.sale-events"),
		LocationID:      envOr("CHECKOUT_LOCATION_ID", "default"),
		RequestTimeout:  30 * time.Second,
		AllowBalanceDue: os.Getenv("CHECKOUT_ALLOW_BALANCE_DUE") == "true",
	}
	if brokers := os.Getenv("CHECKOUT_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if raw := os.Getenv("CHECKOUT_REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
