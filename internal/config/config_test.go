package config

import (
	"os"
	"testing"
	"time"
)

// devEnv clears the environment and sets the minimum for a local run.
func devEnv(t *testing.T) {
	t.Helper()
	os.Clearenv()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("MAIL_DEV_OUTBOX", "true")
}

func TestLoad_Defaults(t *testing.T) {
	devEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
	}
	if cfg.GRPCHealthAddr != ":8081" {
		t.Errorf("GRPCHealthAddr = %q, want :8081", cfg.GRPCHealthAddr)
	}
	if cfg.AppName != "Naija Nutri Hub" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.JWTIssuer != "nutrihub-auth" || cfg.JWTAudience != "nutrihub-api" {
		t.Errorf("JWT iss/aud = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPLength != 6 {
		t.Errorf("OTPLength = %d, want 6", cfg.OTPLength)
	}
	if cfg.OTPTTL != 10*time.Minute {
		t.Errorf("OTPTTL = %v, want 10m", cfg.OTPTTL)
	}
	if cfg.OTPResendMinInterval != 30*time.Second || cfg.OTPResendWindow != time.Hour || cfg.OTPResendMaxPerWindow != 5 {
		t.Errorf("OTP resend policy = %v/%v/%d", cfg.OTPResendMinInterval, cfg.OTPResendWindow, cfg.OTPResendMaxPerWindow)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.ResetTokenTTL != 30*time.Minute {
		t.Errorf("ResetTokenTTL = %v, want 30m", cfg.ResetTokenTTL)
	}
	if cfg.MailTimeout != 5*time.Second {
		t.Errorf("MailTimeout = %v, want 5s", cfg.MailTimeout)
	}
	if cfg.AccountEventsTopic != "nutrihub-account-events" {
		t.Errorf("AccountEventsTopic = %q", cfg.AccountEventsTopic)
	}
	if cfg.KafkaBrokersList() != nil {
		t.Error("Kafka should be disabled by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	devEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("RESET_WINDOW", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Errorf("OTPTTL = %v, want 5m", cfg.OTPTTL)
	}
	if cfg.ResetWindow != 15*time.Minute {
		t.Errorf("ResetWindow = %v, want 15m", cfg.ResetWindow)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bcrypt cost too low", map[string]string{"BCRYPT_COST": "3"}},
		{"bcrypt cost too high", map[string]string{"BCRYPT_COST": "32"}},
		{"dev outbox in production", map[string]string{"APP_ENV": "production", "STORE_DRIVER": "postgres", "DATABASE_URL": "postgres://x"}},
		{"memory store in production", map[string]string{"APP_ENV": "production", "MAIL_DEV_OUTBOX": "false", "MAIL_API_URL": "https://mail"}},
		{"unknown store driver", map[string]string{"STORE_DRIVER": "redis"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"mongo without uri", map[string]string{"STORE_DRIVER": "mongo"}},
		{"no mail api", map[string]string{"MAIL_DEV_OUTBOX": "false"}},
		{"zero otp ttl", map[string]string{"OTP_TTL": "0s"}},
		{"negative reset window", map[string]string{"RESET_WINDOW": "-1m"}},
		{"otp length", map[string]string{"OTP_LENGTH": "2"}},
		{"zero max per window", map[string]string{"OTP_RESEND_MAX_PER_WINDOW": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_ProductionRequiresKeys(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/nutrihub")
	t.Setenv("MAIL_API_URL", "https://mail.example.com/send")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT keys")
	}
	t.Setenv("JWT_PRIVATE_KEY", "/keys/private.pem")
	t.Setenv("JWT_PUBLIC_KEY", "/keys/public.pem")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction = false")
	}
}

func TestLoad_StoreDriverNormalized(t *testing.T) {
	devEnv(t)
	t.Setenv("STORE_DRIVER", " Mongo ")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != StoreMongo {
		t.Errorf("StoreDriver = %q, want mongo", cfg.StoreDriver)
	}
	if cfg.MongoDatabase != "auth" {
		t.Errorf("MongoDatabase = %q, want auth", cfg.MongoDatabase)
	}
}

func TestAccessTTL(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"invalid", 60 * time.Minute},
		{"0s", 60 * time.Minute},
		{"-5m", 60 * time.Minute},
		{"", 60 * time.Minute},
	}
	for _, tt := range tests {
		cfg := &Config{JWTAccessTTL: tt.in}
		if got := cfg.AccessTTL(); got != tt.want {
			t.Errorf("AccessTTL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " kafka-1:9092, ,kafka-2:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should yield nil brokers")
	}
}
