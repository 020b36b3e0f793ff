// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health server; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AppName is used in email subjects and templates.
	AppName string `mapstructure:"APP_NAME"`
	// DashboardURL is linked from the welcome email.
	DashboardURL string `mapstructure:"APP_DASHBOARD_URL"`
	// SupportEmail is shown in email footers.
	SupportEmail string `mapstructure:"SUPPORT_EMAIL"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	LogFormat    string `mapstructure:"LOG_FORMAT"`

	// StoreDriver selects the credential store: memory, postgres or mongo.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MongoURI is the MongoDB connection string; required when StoreDriver is mongo.
	MongoURI      string `mapstructure:"MONGODB_URI"`
	MongoDatabase string `mapstructure:"MONGODB_DATABASE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	// When both are empty outside production an ephemeral key is generated at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "60m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) for passwords and OTPs; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PasswordPolicyFile is an optional Rego file replacing the built-in password policy.
	PasswordPolicyFile string `mapstructure:"PASSWORD_POLICY_FILE"`

	OTPLength             int           `mapstructure:"OTP_LENGTH"`
	OTPTTL                time.Duration `mapstructure:"OTP_TTL"`
	OTPResendMinInterval  time.Duration `mapstructure:"OTP_RESEND_MIN_INTERVAL"`
	OTPResendWindow       time.Duration `mapstructure:"OTP_RESEND_WINDOW"`
	OTPResendMaxPerWindow int           `mapstructure:"OTP_RESEND_MAX_PER_WINDOW"`
	OTPMaxAttempts        int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	ResetTokenTTL         time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	ResetMinInterval      time.Duration `mapstructure:"RESET_MIN_INTERVAL"`
	ResetWindow           time.Duration `mapstructure:"RESET_WINDOW"`
	ResetMaxPerWindow     int           `mapstructure:"RESET_MAX_PER_WINDOW"`
	ResetPurgeInterval    time.Duration `mapstructure:"RESET_PURGE_INTERVAL"`
	ResetURLBase          string        `mapstructure:"RESET_URL_BASE"`
	MailAPIURL            string        `mapstructure:"MAIL_API_URL"`
	MailAPIKey            string        `mapstructure:"MAIL_API_KEY"`
	MailSender            string        `mapstructure:"MAIL_SENDER"`
	MailTimeout           time.Duration `mapstructure:"MAIL_TIMEOUT"`
	// MailDevOutbox when true keeps sent mail in memory for GET /dev/outbox
	// instead of calling the mail API. Must not be true when Env is production.
	MailDevOutbox bool `mapstructure:"MAIL_DEV_OUTBOX"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables account events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AccountEventsTopic is the Kafka topic for account lifecycle events.
	AccountEventsTopic string `mapstructure:"ACCOUNT_EVENTS_TOPIC"`

	// Worker-only: Loki URL the account events worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the account events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_HEALTH_ADDR", ":8081")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("APP_NAME", "Naija Nutri Hub")
	v.SetDefault("APP_DASHBOARD_URL", "")
	v.SetDefault("SUPPORT_EMAIL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MONGODB_URI", "")
	v.SetDefault("MONGODB_DATABASE", "auth")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "nutrihub-auth")
	v.SetDefault("JWT_AUDIENCE", "nutrihub-api")
	v.SetDefault("JWT_ACCESS_TTL", "60m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PASSWORD_POLICY_FILE", "")
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RESEND_MIN_INTERVAL", "30s")
	v.SetDefault("OTP_RESEND_WINDOW", "1h")
	v.SetDefault("OTP_RESEND_MAX_PER_WINDOW", 5)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("RESET_TOKEN_TTL", "30m")
	v.SetDefault("RESET_MIN_INTERVAL", "30s")
	v.SetDefault("RESET_WINDOW", "1h")
	v.SetDefault("RESET_MAX_PER_WINDOW", 5)
	v.SetDefault("RESET_PURGE_INTERVAL", "1h")
	v.SetDefault("RESET_URL_BASE", "http://localhost:3000/reset-password")
	v.SetDefault("MAIL_API_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_SENDER", "")
	v.SetDefault("MAIL_TIMEOUT", "5s")
	v.SetDefault("MAIL_DEV_OUTBOX", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACCOUNT_EVENTS_TOPIC", "nutrihub-account-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "nutrihub-account-events-worker")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.MailDevOutbox && c.IsProduction() {
		return errors.New("config: MAIL_DEV_OUTBOX must not be true when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("config: STORE_DRIVER=memory is not allowed when APP_ENV=production")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGODB_URI must be set when STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("config: STORE_DRIVER must be one of memory, postgres, mongo; got %q", c.StoreDriver)
	}

	if !c.MailDevOutbox && c.MailAPIURL == "" {
		return errors.New("config: MAIL_API_URL must be set unless MAIL_DEV_OUTBOX=true")
	}
	if c.IsProduction() && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return errors.New("config: OTP_LENGTH must be between 4 and 10")
	}
	for name, d := range map[string]time.Duration{
		"OTP_TTL":                 c.OTPTTL,
		"OTP_RESEND_MIN_INTERVAL": c.OTPResendMinInterval,
		"OTP_RESEND_WINDOW":       c.OTPResendWindow,
		"RESET_TOKEN_TTL":         c.ResetTokenTTL,
		"RESET_MIN_INTERVAL":      c.ResetMinInterval,
		"RESET_WINDOW":            c.ResetWindow,
		"MAIL_TIMEOUT":            c.MailTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration", name)
		}
	}
	if c.OTPResendMaxPerWindow <= 0 || c.ResetMaxPerWindow <= 0 || c.OTPMaxAttempts <= 0 {
		return errors.New("config: OTP_RESEND_MAX_PER_WINDOW, RESET_MAX_PER_WINDOW and OTP_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 60m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 60 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if account events are enabled (non-empty list) and to create the producer.
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
