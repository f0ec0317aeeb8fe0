// Server is the gateway process: it manages the messaging-network sessions,
// issues and verifies one-time codes, and serves the JSON API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-otp-gateway/internal/activity"
	"whatsapp-otp-gateway/internal/activity/producer"
	activityrepo "whatsapp-otp-gateway/internal/activity/repository"
	"whatsapp-otp-gateway/internal/config"
	"whatsapp-otp-gateway/internal/db"
	"whatsapp-otp-gateway/internal/httpapi"
	otprepo "whatsapp-otp-gateway/internal/otp/repository"
	otpservice "whatsapp-otp-gateway/internal/otp/service"
	"whatsapp-otp-gateway/internal/pairing"
	"whatsapp-otp-gateway/internal/session/manager"
	"whatsapp-otp-gateway/internal/session/registry"
	sessionrepo "whatsapp-otp-gateway/internal/session/repository"
	"whatsapp-otp-gateway/internal/telemetry"
	otelsetup "whatsapp-otp-gateway/internal/telemetry/otel"
	"whatsapp-otp-gateway/internal/transport"
	"whatsapp-otp-gateway/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, "wa-gateway", cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("telemetry: metrics: %v", err)
	}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.ActivityKafkaBrokersList(), cfg.ActivityKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}

	actRepo := activityrepo.NewPostgresRepository(conn)
	emitters := []activity.Emitter{otelsetup.NewActivityEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}
	recorder := activity.NewLogger(actRepo, emitters...)

	credStore, err := transport.NewFileStore(cfg.SessionDir)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}
	dialer, err := transport.DefaultDialer()
	if err != nil {
		log.Fatalf("transport: %v (link a protocol adapter into this binary)", err)
	}

	cache := pairing.NewCache(cfg.QRTTL())
	cache.StartSweeper(ctx, cfg.QRSweepInterval())

	sessionStore := sessionrepo.NewPostgresRepository(conn)
	mgr := manager.New(manager.Deps{
		Registry:    registry.New(),
		Dialer:      dialer,
		Credentials: credStore,
		Pairing:     cache,
		Store:       sessionStore,
		Activity:    recorder,
		Metrics:     metrics,
		Classifier:  manager.NewClassifier(cfg.TerminalCodes(), cfg.RestartCodes()),
		Notifier:    notifierOrNil(cfg.WebhookURL),
	}, manager.Config{
		BaseDelay:   cfg.BaseDelay(),
		MaxAttempts: cfg.ReconnectMaxAttempts,
		DialTimeout: cfg.ConnectTimeout(),
	})

	otpSvc := otpservice.New(otprepo.NewPostgresRepository(conn), mgr, recorder, metrics, otpservice.Config{
		CodeLength:   cfg.OTPLength,
		CodeTTL:      cfg.OTPCodeTTL(),
		ResendWindow: cfg.ResendWindow(),
		MaxAttempts:  cfg.OTPMaxAttempts,
		CompanyName:  cfg.CompanyName,
	})
	otpSvc.StartExpiryLoop(ctx, time.Minute)

	go runRetention(ctx, actRepo, otpSvc, cfg)

	app := httpapi.NewRouter(mgr, otpSvc, actRepo, sessionStore).App()
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("stopped")
}

// notifierOrNil avoids wrapping a nil *webhook.Notifier in a non-nil interface.
func notifierOrNil(url string) manager.Notifier {
	if n := webhook.New(url); n != nil {
		return n
	}
	return nil
}

// runRetention deletes old activity and verification-code rows once a day.
func runRetention(ctx context.Context, actRepo activityrepo.Repository, otpSvc *otpservice.Service, cfg *config.Config) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			actCutoff := now.AddDate(0, 0, -cfg.ActivityRetentionDays)
			if n, err := actRepo.DeleteOlderThan(ctx, actCutoff); err != nil {
				log.Printf("retention: activity cleanup: %v", err)
			} else if n > 0 {
				log.Printf("retention: deleted %d activity rows", n)
			}
			otpCutoff := now.AddDate(0, 0, -cfg.OTPRetentionDays)
			if n, err := otpSvc.PurgeOlderThan(ctx, otpCutoff); err != nil {
				log.Printf("retention: otp cleanup: %v", err)
			} else if n > 0 {
				log.Printf("retention: deleted %d verification-code rows", n)
			}
		}
	}
}
