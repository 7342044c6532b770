// Package config loads and validates client config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backend names accepted in LEDGER_BACKEND.
const (
	LedgerBackendFile     = "file"
	LedgerBackendPostgres = "postgres"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// MDMBaseURL is the MDM REST API base URL (e.g. https://school.example.com/api). Required.
	MDMBaseURL string `mapstructure:"MDM_BASE_URL"`
	// MDMNetworkID is the network id half of the Basic credential pair.
	MDMNetworkID string `mapstructure:"MDM_NETWORK_ID"`
	// MDMAPIKey is the API key half of the Basic credential pair.
	MDMAPIKey string `mapstructure:"MDM_API_KEY"`
	// MDMAPIVersion is sent as X-Server-Protocol-Version on every request.
	MDMAPIVersion string `mapstructure:"MDM_API_VERSION"`
	// MDMHTTPTimeout is the per-request timeout (e.g. "15s").
	MDMHTTPTimeout string `mapstructure:"MDM_HTTP_TIMEOUT"`
	// MDMRateLimit caps requests per second to the MDM API; 0 disables the limit.
	MDMRateLimit float64 `mapstructure:"MDM_RATE_LIMIT"`
	// MDMRateBurst is the burst allowed above MDMRateLimit.
	MDMRateBurst int `mapstructure:"MDM_RATE_BURST"`

	// LockOwnerUserID is the remote user id assigned as device owner before an app lock.
	// When empty the device's current owner id is reused.
	LockOwnerUserID string `mapstructure:"LOCK_OWNER_USER_ID"`
	// LockStudentID is the student id targeted by apply/stop app lock.
	LockStudentID string `mapstructure:"LOCK_STUDENT_ID"`
	// LockClearAfter is how long the server keeps an app lock before releasing it (e.g. "1h").
	LockClearAfter string `mapstructure:"LOCK_CLEAR_AFTER"`
	// LockPolicyFile is an optional path to a Rego module replacing the built-in lock policy.
	LockPolicyFile string `mapstructure:"LOCK_POLICY_FILE"`

	// StateDir holds the encrypted keystore and the file ledger backend.
	StateDir string `mapstructure:"STATE_DIR"`
	// KeystorePassphrase unlocks the encrypted keystore. Never logged.
	KeystorePassphrase string `mapstructure:"KEYSTORE_PASSPHRASE"`
	// LedgerBackend is "file" (default) or "postgres".
	LedgerBackend string `mapstructure:"LEDGER_BACKEND"`
	// DatabaseURL is the Postgres DSN; required when LedgerBackend is postgres and for cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// ValidationTimeoutRaw is how long startup waits for connectivity before validating the cached token.
	ValidationTimeoutRaw string `mapstructure:"VALIDATION_TIMEOUT"`
	// ValidationRetryIntervalRaw is the poll interval of that wait.
	ValidationRetryIntervalRaw string `mapstructure:"VALIDATION_RETRY_INTERVAL"`
	// ReachabilityPollIntervalRaw is the background probe interval of the reachability monitor.
	ReachabilityPollIntervalRaw string `mapstructure:"REACHABILITY_POLL_INTERVAL"`

	// Telemetry (optional).
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the Kafka topic for client events.
	KafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// WorkerHealthAddr is the listen address of the worker's HTTP health endpoint; empty disables it.
	WorkerHealthAddr string `mapstructure:"WORKER_HEALTH_ADDR"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("MDM_BASE_URL", "")
	v.SetDefault("MDM_NETWORK_ID", "")
	v.SetDefault("MDM_API_KEY", "")
	v.SetDefault("MDM_API_VERSION", "3")
	v.SetDefault("MDM_HTTP_TIMEOUT", "15s")
	v.SetDefault("MDM_RATE_LIMIT", 0)
	v.SetDefault("MDM_RATE_BURST", 5)
	v.SetDefault("LOCK_OWNER_USER_ID", "")
	v.SetDefault("LOCK_STUDENT_ID", "")
	v.SetDefault("LOCK_CLEAR_AFTER", "1h")
	v.SetDefault("LOCK_POLICY_FILE", "")
	v.SetDefault("STATE_DIR", ".classlock")
	v.SetDefault("KEYSTORE_PASSPHRASE", "")
	v.SetDefault("LEDGER_BACKEND", LedgerBackendFile)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("VALIDATION_TIMEOUT", "30s")
	v.SetDefault("VALIDATION_RETRY_INTERVAL", "2s")
	v.SetDefault("REACHABILITY_POLL_INTERVAL", "5s")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "classlock-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "classlock-event-worker")
	v.SetDefault("WORKER_HEALTH_ADDR", ":8081")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.MDMBaseURL = strings.TrimSpace(cfg.MDMBaseURL)
	if cfg.MDMBaseURL == "" {
		return nil, errors.New("config: MDM_BASE_URL must be set")
	}
	u, err := url.Parse(cfg.MDMBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.New("config: MDM_BASE_URL must be an absolute http(s) URL")
	}

	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	if cfg.LedgerBackend == "" {
		cfg.LedgerBackend = LedgerBackendFile
	}
	switch cfg.LedgerBackend {
	case LedgerBackendFile:
	case LedgerBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when LEDGER_BACKEND=postgres")
		}
	default:
		return nil, errors.New("config: LEDGER_BACKEND must be file or postgres")
	}

	if cfg.MDMRateLimit < 0 {
		return nil, errors.New("config: MDM_RATE_LIMIT must not be negative")
	}

	if cfg.StateDir == "" {
		cfg.StateDir = ".classlock"
	}

	return &cfg, nil
}

// HTTPTimeout parses MDMHTTPTimeout. Returns 15s if unset or invalid.
func (c *Config) HTTPTimeout() time.Duration {
	return parseDuration(c.MDMHTTPTimeout, 15*time.Second)
}

// ClearAfter parses LockClearAfter. Returns 1h if unset or invalid.
func (c *Config) ClearAfter() time.Duration {
	return parseDuration(c.LockClearAfter, time.Hour)
}

// ValidationTimeout returns the startup reachability wait. Returns 30s if unset or invalid.
func (c *Config) ValidationTimeout() time.Duration {
	return parseDuration(c.ValidationTimeoutRaw, 30*time.Second)
}

// ValidationRetryInterval returns the poll interval of the startup wait. Returns 2s if unset or invalid.
func (c *Config) ValidationRetryInterval() time.Duration {
	return parseDuration(c.ValidationRetryIntervalRaw, 2*time.Second)
}

// ReachabilityPollInterval returns the background probe interval. Returns 5s if unset or invalid.
func (c *Config) ReachabilityPollInterval() time.Duration {
	return parseDuration(c.ReachabilityPollIntervalRaw, 5*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka emission is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
