package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/background"
	"github.com/Ray-dawg/Myralight-sub002/internal/config"
	"github.com/Ray-dawg/Myralight-sub002/internal/database"
	"github.com/Ray-dawg/Myralight-sub002/internal/handlers"
	"github.com/Ray-dawg/Myralight-sub002/internal/mfa"
	middlewareCustom "github.com/Ray-dawg/Myralight-sub002/internal/middleware"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/notify"
	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
	"github.com/Ray-dawg/Myralight-sub002/internal/routes"
	"github.com/Ray-dawg/Myralight-sub002/internal/services"
	"github.com/Ray-dawg/Myralight-sub002/pkg/httpx"
	pkglogger "github.com/Ray-dawg/Myralight-sub002/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	attemptRepo := repositories.NewAttemptRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	lockRepo := repositories.NewLockStateRepository(db)
	mfaRepo := repositories.NewMFARepository(db)
	accountRepo := repositories.NewAccountRepository(db)

	// Audit log with local fallback: a storage outage must never block the
	// authentication path.
	fallback := pkglogger.NewFallbackAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, logger, fallback)

	ledgerService := services.NewLedgerService(attemptRepo, services.LedgerConfig{
		Retention: cfg.Security.AttemptRetention,
	}, logger)

	rateLimitService := services.NewRateLimitService(attemptRepo, services.RateLimitConfig{
		MaxAttempts: map[models.AuthAction]int{
			models.ActionLogin:    cfg.Security.MaxLoginAttempts,
			models.ActionRegister: cfg.Security.MaxRegisterAttempts,
			models.ActionReset:    cfg.Security.MaxResetAttempts,
			models.ActionNotify:   cfg.Security.MaxNotifyAttempts,
		},
		Window: cfg.Security.RateLimitWindow,
	}, logger)

	lockoutService := services.NewLockoutService(lockRepo, auditService, services.LockoutConfig{
		Threshold:    cfg.Security.LockoutThreshold,
		LockDuration: cfg.Security.LockoutDuration,
	}, logger)

	riskService := services.NewRiskService(attemptRepo, auditService, logger)

	// Notification dispatcher: SES-backed, throttled through the same limiter
	// as the auth actions, outcomes recorded in the attempt ledger.
	sender, err := notify.NewSESSender(cfg.Notify.AWSRegion, cfg.Notify.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize notification sender", slog.Any("error", err))
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(sender, rateLimitService, ledgerService, logger, cfg.Notify.QueueSize)

	totpManager, err := mfa.NewTOTPManager([]byte(cfg.MFA.EncryptionKey), cfg.MFA.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	tokenManager := mfa.NewTokenManager(cfg.Security.MFATokenSecret)

	mfaService := services.NewMFAService(mfaRepo, totpManager, auditService, dispatcher, services.MFAServiceConfig{
		ChallengeTTL:         cfg.MFA.ChallengeTTL,
		MaxChallengeAttempts: cfg.MFA.MaxChallengeAttempts,
		CodeDigits:           6,
	}, logger)

	directory := services.NewDirectoryService(accountRepo, logger)

	orchestrator := services.NewOrchestrator(
		directory,
		directory,
		ledgerService,
		rateLimitService,
		lockoutService,
		auditService,
		mfaService,
		tokenManager,
		dispatcher,
		services.OrchestratorConfig{VerifyTimeout: cfg.Security.VerifyTimeout},
		logger,
	)

	// Handlers
	ipConfig := &httpx.IPConfig{}
	authHandler := handlers.NewAuthHandler(orchestrator, ipConfig)
	mfaHandler := handlers.NewMFAHandler(orchestrator)
	securityHandler := handlers.NewSecurityHandler(orchestrator, riskService)

	// Background pruning of expired ledger rows and challenges
	cleanupManager := background.NewCleanupManager(attemptRepo, mfaRepo, logger, cfg.Security.CleanupInterval)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, mfaHandler, securityHandler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	dispatcher.Start(workerCtx)
	go cleanupManager.Start(workerCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	workerCancel()
	cleanupManager.Stop()
	dispatcher.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
