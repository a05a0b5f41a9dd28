package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ArowuTest/uptime-rewards-backend/api/routes"
	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/internal/handlers"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/storage"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/ArowuTest/uptime-rewards-backend/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info(".env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the configured store
	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
		defer cancel()
		if err := stores.Close(closeCtx); err != nil {
			slog.Error("Error closing storage", "error", err)
		}
	}()

	// Initialize Services
	retries := cfg.Retry.MaxConflictRetries
	ledgerService := services.NewLedgerService(stores.Ledger, cfg.Storage.Timeout, retries)
	userService := services.NewUserService(stores.Users, cfg.Users.AutoRegister, cfg.Storage.Timeout)
	sessionService := services.NewSessionService(stores.Sessions, ledgerService, services.SessionConfig{
		RatePerMinute:  cfg.Accrual.RatePerMinute,
		Multiplier:     cfg.Accrual.Multiplier,
		StaleAfter:     cfg.Liveness.StaleAfter,
		StorageTimeout: cfg.Storage.Timeout,
		MaxRetries:     retries,
		BatchSize:      cfg.Worker.BatchSize,
	})

	// Initialize Handlers
	backoff := utils.Backoff{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Initial:     cfg.Retry.InitialBackoff,
		Max:         cfg.Retry.MaxBackoff,
	}
	handlerDeps := routes.HandlerDependencies{
		SessionHandler:    handlers.NewSessionHandler(sessionService, userService, backoff),
		LedgerHandler:     handlers.NewLedgerHandler(ledgerService, backoff),
		UserHandler:       handlers.NewUserHandler(userService),
		AdminHandler:      handlers.NewAdminHandler(sessionService, utils.NewCSVImporter(ledgerService, userService)),
		NodeSocketHandler: handlers.NewNodeSocketHandler(sessionService, userService, cfg.Server.AllowedOrigins),
	}
	router := routes.SetupRouter(cfg, handlerDeps)

	var scheduler *worker.Scheduler
	if cfg.Worker.Enabled {
		scheduler = worker.NewScheduler(sessionService, cfg.Worker.AccrualInterval, cfg.Worker.SweepInterval)
		scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Run server in a goroutine so that it doesn't block
	go func() {
		slog.Info("Server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if scheduler != nil {
		scheduler.Wait()
	}

	slog.Info("Server exiting")
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
