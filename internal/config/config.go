// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required by the server and the retention jobs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionDir is the directory holding per-session credential blobs (one subdir per session).
	SessionDir string `mapstructure:"SESSION_DIR"`
	// CompanyName is the default sender name rendered into OTP messages when a request omits one.
	CompanyName string `mapstructure:"COMPANY_NAME"`

	// OTPLength is the number of digits in generated verification codes.
	OTPLength int `mapstructure:"OTP_LENGTH"`
	// OTPMaxAttempts is the verification attempt budget per code.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPTTL is the code lifetime (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPResendWindow is the resend rate-limit window (e.g. "5m"). Defaults to the code
	// lifetime but is configured independently of it.
	OTPResendWindow string `mapstructure:"OTP_RESEND_WINDOW"`

	// ReconnectBaseDelay is the first reconnect backoff delay (e.g. "3s").
	ReconnectBaseDelay string `mapstructure:"RECONNECT_BASE_DELAY"`
	// ReconnectMaxAttempts is the reconnect attempt budget before a session is terminated.
	ReconnectMaxAttempts int `mapstructure:"RECONNECT_MAX_ATTEMPTS"`
	// DialTimeout bounds the transport connect handshake (e.g. "60s").
	DialTimeout string `mapstructure:"DIAL_TIMEOUT"`
	// TerminalCloseCodes is a comma-separated list of transport close codes treated as
	// terminal (credentials revoked, never retried). Default "401".
	TerminalCloseCodes string `mapstructure:"TERMINAL_CLOSE_CODES"`
	// RestartCloseCodes is a comma-separated list of close codes treated as a mid-pairing
	// restart: retried at a fixed short delay without spending a reconnect attempt. Default "515".
	RestartCloseCodes string `mapstructure:"RESTART_CLOSE_CODES"`

	// PairingTTL is how long a pairing QR stays retrievable (e.g. "2m").
	PairingTTL string `mapstructure:"PAIRING_TTL"`
	// PairingSweepInterval is the cadence of the pairing cache sweep (e.g. "5m").
	PairingSweepInterval string `mapstructure:"PAIRING_SWEEP_INTERVAL"`

	// WebhookURL, when set, receives inbound-message and connection-status callbacks.
	WebhookURL string `mapstructure:"WEBHOOK_URL"`

	// OTelEndpoint is the OTLP gRPC endpoint (e.g. http://localhost:4317); empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces plaintext OTLP even for https endpoints.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// ActivityKafkaBrokers is a comma-separated list of Kafka broker addresses; when set,
	// activity records are also published to Kafka for the worker to forward.
	ActivityKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ActivityKafkaTopic is the Kafka topic for activity records (default wa-gateway-activity).
	ActivityKafkaTopic string `mapstructure:"ACTIVITY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the activity worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the worker pushes activity records to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// ActivityRetentionDays is how long activity rows are kept (default 30).
	ActivityRetentionDays int `mapstructure:"ACTIVITY_RETENTION_DAYS"`
	// OTPRetentionDays is how long verification-code rows are kept (default 7).
	OTPRetentionDays int `mapstructure:"OTP_RETENTION_DAYS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_DIR", "sessions")
	v.SetDefault("COMPANY_NAME", "WhatsApp OTP Gateway")
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_RESEND_WINDOW", "5m")
	v.SetDefault("RECONNECT_BASE_DELAY", "3s")
	v.SetDefault("RECONNECT_MAX_ATTEMPTS", 5)
	v.SetDefault("DIAL_TIMEOUT", "60s")
	v.SetDefault("TERMINAL_CLOSE_CODES", "401")
	v.SetDefault("RESTART_CLOSE_CODES", "515")
	v.SetDefault("PAIRING_TTL", "2m")
	v.SetDefault("PAIRING_SWEEP_INTERVAL", "5m")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACTIVITY_KAFKA_TOPIC", "wa-gateway-activity")
	v.SetDefault("KAFKA_GROUP_ID", "wa-gateway-activity-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("ACTIVITY_RETENTION_DAYS", 30)
	v.SetDefault("OTP_RETENTION_DAYS", 7)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.SessionDir == "" {
		return nil, errors.New("config: SESSION_DIR must be set")
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		return nil, fmt.Errorf("config: OTP_LENGTH must be between 4 and 10, got %d", cfg.OTPLength)
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, fmt.Errorf("config: OTP_MAX_ATTEMPTS must be at least 1, got %d", cfg.OTPMaxAttempts)
	}
	if cfg.ReconnectMaxAttempts < 1 {
		return nil, fmt.Errorf("config: RECONNECT_MAX_ATTEMPTS must be at least 1, got %d", cfg.ReconnectMaxAttempts)
	}

	return &cfg, nil
}

// OTPCodeTTL parses OTP_TTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) OTPCodeTTL() time.Duration {
	return durationOr(c.OTPTTL, 5*time.Minute)
}

// ResendWindow parses OTP_RESEND_WINDOW as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ResendWindow() time.Duration {
	return durationOr(c.OTPResendWindow, 5*time.Minute)
}

// BaseDelay parses RECONNECT_BASE_DELAY. Returns 3s if unset or invalid.
func (c *Config) BaseDelay() time.Duration {
	return durationOr(c.ReconnectBaseDelay, 3*time.Second)
}

// ConnectTimeout parses DIAL_TIMEOUT. Returns 60s if unset or invalid.
func (c *Config) ConnectTimeout() time.Duration {
	return durationOr(c.DialTimeout, 60*time.Second)
}

// QRTTL parses PAIRING_TTL. Returns 2m if unset or invalid.
func (c *Config) QRTTL() time.Duration {
	return durationOr(c.PairingTTL, 2*time.Minute)
}

// QRSweepInterval parses PAIRING_SWEEP_INTERVAL. Returns 5m if unset or invalid.
func (c *Config) QRSweepInterval() time.Duration {
	return durationOr(c.PairingSweepInterval, 5*time.Minute)
}

// TerminalCodes returns the close codes treated as terminal disconnects.
func (c *Config) TerminalCodes() []int {
	return intList(c.TerminalCloseCodes)
}

// RestartCodes returns the close codes treated as mid-pairing restarts.
func (c *Config) RestartCodes() []int {
	return intList(c.RestartCloseCodes)
}

// ActivityKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the activity stream is enabled (non-empty list) and to create the producer.
func (c *Config) ActivityKafkaBrokersList() []string {
	if c == nil || c.ActivityKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.ActivityKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intList(s string) []int {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}
