package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conti/internal/amqp"
	"conti/internal/auth"
	"conti/internal/config"
	apphttp "conti/internal/http"
	applog "conti/internal/log"
	"conti/internal/parse"
	"conti/internal/services"
	"conti/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup()
	logger.Info("Starting conti API server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional at startup: writes still work without it and the
	// worker's reconcile pass catches up once the broker is back.
	var publisher services.ChangePublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, change notifications disabled", "error", err)
	} else {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	var parser parse.ExpenseParser
	if cfg.ParserURL != "" {
		parser = parse.NewRemoteParser(cfg.ParserURL, cfg.ParserTimeout)
		logger.Info("Using remote expense parser", "url", cfg.ParserURL)
	} else {
		parser = parse.NewNaiveParser()
		logger.Info("Using naive expense parser")
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)
	groups := services.NewGroupService(repo, publisher, cfg.CacheTTL)
	personal := services.NewInsightsService(repo, publisher, parser, cfg.CacheTTL)

	srv := apphttp.NewServer(cfg, groups, personal, jwtManager)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
