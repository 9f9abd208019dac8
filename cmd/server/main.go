package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/PromptForge/internal/api"
	"github.com/digkill/PromptForge/internal/config"
	"github.com/digkill/PromptForge/internal/database"
	"github.com/digkill/PromptForge/internal/email"
	"github.com/digkill/PromptForge/internal/gemini"
	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/notify"
	"github.com/digkill/PromptForge/internal/ratelimit"
	"github.com/digkill/PromptForge/internal/razorpay"
	"github.com/digkill/PromptForge/internal/repository"
	"github.com/digkill/PromptForge/internal/scheduler"
	"github.com/digkill/PromptForge/internal/service"
	"github.com/digkill/PromptForge/internal/storage"
	"github.com/digkill/PromptForge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	userRepo := repository.NewUserRepository(db)
	promptRepo := repository.NewPromptRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	var alerts service.Alerter
	var resetAlerts scheduler.Alerter
	if cfg.TelegramEnabled() {
		notifier, err := notify.Dial(cfg.TelegramBotToken, cfg.TelegramAlertChatID, logr)
		if err != nil {
			logr.Error("telegram alerts disabled", "err", err)
		} else {
			alerts, resetAlerts = notifier, notifier
		}
	}

	var mailer service.VerificationSender
	if mail := email.NewClient(cfg.ResendAPIKey, cfg.EmailFrom, cfg.ResendBaseURL, cfg.FrontendURL); mail.Configured() {
		mailer = mail
	} else {
		logr.Warn("RESEND_API_KEY not set, verification emails disabled")
	}

	var uploader service.HistoryUploader
	if cfg.S3Enabled() {
		up, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = up
	}

	creditService := service.NewCreditService(logr, userRepo, promptRepo, paymentRepo, m, cfg.StoreTimeout)
	userService := service.NewUserService(logr, userRepo, sessionRepo, mailer, cfg.SessionTTL, cfg.StoreTimeout)
	paymentService := service.NewPaymentService(logr, razorpay.NewClient(cfg, logr), repository.NewOrderRepository(db), service.NewPaymentVerifier(cfg.RazorpayKeySecret), creditService, alerts, m, cfg.PaymentCurrency, cfg.RequestTimeout)
	generationService := service.NewGenerationService(logr, creditService, gemini.NewClient(cfg, logr), m, cfg.RequestTimeout)
	historyService := service.NewHistoryService(logr, promptRepo, uploader, cfg.StoreTimeout)

	var authLimiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := ratelimit.NewClient(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			logr.Error("auth rate limiting disabled", "err", err)
		} else {
			defer rdb.Close()
			authLimiter = ratelimit.New(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, "promptforge:auth", logr)
		}
	}

	opts := api.Options{
		Accounts:       userService,
		Payments:       paymentService,
		Generator:      generationService,
		History:        historyService,
		Metrics:        m,
		Gatherer:       registry,
		AllowedOrigins: []string{cfg.FrontendURL},
		RequestTimeout: cfg.RequestTimeout,
	}
	if authLimiter != nil {
		opts.AuthLimiter = authLimiter.Middleware
	}
	server := api.NewServer(cfg.HTTPAddr, logr, opts)

	resets, err := scheduler.New(logr, creditService, resetAlerts, cfg.ResetSchedule, cfg.ResetTimezone)
	if err != nil {
		log.Fatalf("reset scheduler: %v", err)
	}
	resets.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		cleanupSessions(gctx, logr, sessionRepo)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := resets.Stop(stopCtx); err != nil {
		logr.Error("reset scheduler stop", "err", err)
	}
	logr.Info("shutdown complete")
}

func cleanupSessions(ctx context.Context, log *slog.Logger, sessions *repository.SessionRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Error("delete expired sessions", "err", err)
				continue
			}
			if n > 0 {
				log.Info("expired sessions removed", "count", n)
			}
		}
	}
}
