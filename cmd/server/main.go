// Server runs the account HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"naija-nutri-hub/backend/internal/account/service"
	"naija-nutri-hub/backend/internal/config"
	"naija-nutri-hub/backend/internal/events"
	healthhandler "naija-nutri-hub/backend/internal/health/handler"
	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/notify"
	"naija-nutri-hub/backend/internal/otp"
	"naija-nutri-hub/backend/internal/passwordreset"
	"naija-nutri-hub/backend/internal/policy/engine"
	"naija-nutri-hub/backend/internal/ratelimit"
	"naija-nutri-hub/backend/internal/security"
	"naija-nutri-hub/backend/internal/server"
	telemetryotel "naija-nutri-hub/backend/internal/telemetry/otel"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	serviceName         = "nutrihub-auth"
	healthRefreshPeriod = 10 * time.Second
	shutdownTimeout     = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	mailer, outbox, err := newMailer(cfg)
	if err != nil {
		return err
	}

	var checker *engine.OPAEvaluator
	if cfg.PasswordPolicyFile != "" {
		checker, err = engine.NewOPAEvaluatorFromFile(ctx, cfg.PasswordPolicyFile)
	} else {
		checker, err = engine.NewOPAEvaluator(ctx, "")
	}
	if err != nil {
		return fmt.Errorf("password policy: %w", err)
	}

	tokens, err := newTokenProvider(cfg, log)
	if err != nil {
		return err
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	otpMgr := otp.NewManager(st.users, mailer, hasher, otp.Policy{
		Length: cfg.OTPLength,
		TTL:    cfg.OTPTTL,
		Resend: ratelimit.Policy{
			MinInterval:  cfg.OTPResendMinInterval,
			Window:       cfg.OTPResendWindow,
			MaxPerWindow: cfg.OTPResendMaxPerWindow,
		},
		MaxAttempts: cfg.OTPMaxAttempts,
	}, otp.WithLogger(log.With("component", "otp")))
	resetMgr := passwordreset.NewManager(st.users, st.resets, mailer, hasher, checker, passwordreset.Policy{
		TokenTTL: cfg.ResetTokenTTL,
		Throttle: ratelimit.Policy{
			MinInterval:  cfg.ResetMinInterval,
			Window:       cfg.ResetWindow,
			MaxPerWindow: cfg.ResetMaxPerWindow,
		},
	}, passwordreset.WithLogger(log.With("component", "password_reset")))

	producer := events.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AccountEventsTopic)
	emitters := events.Multi{events.NewLogEmitter(providers.LoggerProvider)}
	if producer != nil {
		emitters = append(emitters, producer)
		log.Info("account events enabled", "topic", cfg.AccountEventsTopic)
	}

	accounts := service.NewAccountService(service.Deps{
		Users:   st.users,
		OTP:     otpMgr,
		Reset:   resetMgr,
		Hasher:  hasher,
		Checker: checker,
		Tokens:  tokens,
		Welcome: mailer,
		Events:  emitters,
		Log:     log.With("component", "account"),
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	health := healthhandler.NewServer(st.users, checker)
	router := server.NewRouter(server.Deps{
		AppName:   cfg.AppName,
		Accounts:  accounts,
		Tokens:    tokens,
		Outbox:    outbox,
		Readiness: health,
		Log:       log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go health.Run(bgCtx, healthRefreshPeriod)
	go resetMgr.RunPurger(bgCtx, cfg.ResetPurgeInterval)

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	grpcSrv := healthhandler.NewGRPCServer(health)
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCHealthAddr, err)
		}
		go func() {
			log.Info("gRPC health server listening", "addr", cfg.GRPCHealthAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed; shutting down", "error", runErr)
	}

	health.Shutdown()
	cancelBg()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()

	// Let in-flight async emits finish before closing the producer.
	if producer != nil {
		time.Sleep(events.ShutdownDrainDuration)
	}
	if err := producer.Close(); err != nil {
		log.Warn("kafka producer close", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", "error", err)
	}
	log.Info("stopped")
	return runErr
}

// newMailer returns the mailer and, in dev outbox mode, the outbox backing it.
func newMailer(cfg *config.Config) (*notify.Mailer, *notify.Outbox, error) {
	var (
		gw     notify.Gateway
		outbox *notify.Outbox
	)
	if cfg.MailDevOutbox {
		outbox = notify.NewOutbox()
		gw = outbox
	} else {
		gw = notify.NewHTTPMailClient(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailSender)
	}
	mailer, err := notify.NewMailer(gw, notify.MailerConfig{
		AppName:      cfg.AppName,
		SupportEmail: cfg.SupportEmail,
		DashboardURL: cfg.DashboardURL,
		ResetURLBase: cfg.ResetURLBase,
		Timeout:      cfg.MailTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mailer: %w", err)
	}
	return mailer, outbox, nil
}

// newTokenProvider loads the configured JWT key pair. Without one (allowed
// outside production only) it generates an ephemeral ES256 key.
func newTokenProvider(cfg *config.Config, log *slog.Logger) (*security.TokenProvider, error) {
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" {
		key, err := security.GenerateSigningKey()
		if err != nil {
			return nil, fmt.Errorf("jwt: generate key: %w", err)
		}
		log.Warn("JWT keys not configured; using an ephemeral signing key")
		priv, pub = key, key.Public()
	} else {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, fmt.Errorf("jwt private key: %w", err)
		}
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, fmt.Errorf("jwt public key: %w", err)
		}
		if security.KeyAlg(pub) == "" {
			return nil, fmt.Errorf("jwt public key: %w", security.ErrInvalidKey)
		}
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
