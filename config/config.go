package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the cosigning marketplace service.
type Config struct {
	ListenAddress string
	Environment   string

	// DatabaseURL is a postgres DSN. Tests substitute an in-memory sqlite
	// database and never read this.
	DatabaseURL string

	// Payment processor (LNbits-compatible REST API).
	PaymentsBaseURL string
	PaymentsAPIKey  string

	// JWT verification. An empty secret enables the insecure development
	// token form and is rejected outside the "dev" environment.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTMaxSkew  time.Duration

	// SubmitRequestsPerMinute throttles PSBT admission and invoice
	// creation per authenticated subject.
	SubmitRequestsPerMinute float64
	SubmitBurst             int

	// OTLP exporter settings.
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPMetrics  bool
	OTLPTraces   bool
}

// FromEnv builds a configuration from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:           getenvDefault("COVAULT_LISTEN", ":8080"),
		Environment:             getenvDefault("COVAULT_ENV", "dev"),
		DatabaseURL:             os.Getenv("COVAULT_DB_URL"),
		PaymentsBaseURL:         os.Getenv("COVAULT_PAYMENTS_URL"),
		PaymentsAPIKey:          os.Getenv("COVAULT_PAYMENTS_API_KEY"),
		JWTSecret:               os.Getenv("COVAULT_JWT_SECRET"),
		JWTIssuer:               os.Getenv("COVAULT_JWT_ISSUER"),
		JWTAudience:             os.Getenv("COVAULT_JWT_AUDIENCE"),
		JWTMaxSkew:              30 * time.Second,
		SubmitRequestsPerMinute: 30,
		SubmitBurst:             5,
		OTLPEndpoint:            os.Getenv("COVAULT_OTLP_ENDPOINT"),
		OTLPInsecure:            parseBool(os.Getenv("COVAULT_OTLP_INSECURE")),
		OTLPMetrics:             parseBool(os.Getenv("COVAULT_OTLP_METRICS")),
		OTLPTraces:              parseBool(os.Getenv("COVAULT_OTLP_TRACES")),
	}

	if raw := strings.TrimSpace(os.Getenv("COVAULT_JWT_MAX_SKEW")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse COVAULT_JWT_MAX_SKEW: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("COVAULT_JWT_MAX_SKEW must be positive")
		}
		cfg.JWTMaxSkew = dur
	}

	if raw := strings.TrimSpace(os.Getenv("COVAULT_SUBMIT_RPM")); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse COVAULT_SUBMIT_RPM: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("COVAULT_SUBMIT_RPM must be positive")
		}
		cfg.SubmitRequestsPerMinute = val
	}

	if raw := strings.TrimSpace(os.Getenv("COVAULT_SUBMIT_BURST")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse COVAULT_SUBMIT_BURST: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("COVAULT_SUBMIT_BURST must be positive")
		}
		cfg.SubmitBurst = val
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("COVAULT_DB_URL is required")
	}
	if cfg.PaymentsBaseURL == "" {
		return Config{}, errors.New("COVAULT_PAYMENTS_URL is required")
	}
	if cfg.JWTSecret == "" && cfg.Environment != "dev" {
		return Config{}, errors.New("COVAULT_JWT_SECRET is required outside dev")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return value
}
