package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay-lab/auth"
	"relay-lab/domain/event"
	"relay-lab/infrastructure/storage"
	"relay-lab/infrastructure/transport"
	"relay-lab/internal"
	"relay-lab/observability"
	"relay-lab/runtime"
	"relay-lab/runtime/workers"
	"relay-lab/sink"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (badger cleanup included)
// executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config validation error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB) for the delivery history archive
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	history := storage.NewHistory(db, logger)
	clients := storage.NewClientStore(db, logger)

	// 3. Hub assembly
	authService := auth.NewService(logger, clients, []byte(config.JWTSecret),
		config.TokenDuration, lo.Compact(strings.Split(config.SystemSenders, ",")))
	stats := observability.NewStats()
	registry := runtime.NewRegistry(config.ConnectionTimeout)
	queue := runtime.NewQueue(config.QueueCapacity, stats)
	adapter := transport.NewAdapter(logger, config.WriteTimeout)
	authStore := auth.NewStore()
	dispatcher := runtime.NewDispatcher(logger, registry, adapter, stats)

	events := make(chan event.Event, config.BufferSize)
	telemetry := make(chan event.Event, config.BufferSize)
	supervisor := workers.NewSupervisor(logger, telemetry, 0)

	orchestrator := runtime.NewOrchestrator(
		logger, supervisor, registry, queue, stats, dispatcher,
		adapter, authStore, history, history,
		events, telemetry,
		runtime.Options{
			BatchSize:            config.BatchSize,
			PollInterval:         config.PollInterval,
			ReapInterval:         config.ReapInterval,
			RetentionWindow:      config.RetentionWindow,
			SinkTimeout:          config.SinkTimeout,
			MetricInterval:       config.MetricInterval,
			HeartbeatInterval:    config.HeartbeatInterval,
			RateLimit:            rate.Limit(config.RateLimit),
			RateBurst:            config.RateBurst,
			LowCapacityThreshold: config.LowCapacityThreshold,
			CPUWarnThreshold:     config.CPUWarnThreshold,
		},
	)
	orchestrator.AddSinks(sink.NewAuditSink(logger))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error (HTTP & Orchestrator)
	errChan := make(chan error, 2)

	// 5. Start the engine (workers and fanout)
	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. WebSocket endpoint
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr: address,
		Handler: newHubHandler(logger, orchestrator, adapter, authStore, authService,
			[]byte(config.JWTSecret), config.MaxRetries, config.RetryBackoff),
	}
	go func() {
		logger.Info("Starting websocket listener", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final cleanup (graceful shutdown): let active sockets finish and
	// workers drain their in-flight batch.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
