package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chimera-dev/chimera/internal/actor"
	"github.com/chimera-dev/chimera/internal/chat"
	"github.com/chimera-dev/chimera/internal/config"
	"github.com/chimera-dev/chimera/internal/eventstore"
	"github.com/chimera-dev/chimera/internal/limits"
	"github.com/chimera-dev/chimera/internal/llm"
	"github.com/chimera-dev/chimera/internal/logging"
	"github.com/chimera-dev/chimera/internal/observability"
	"github.com/chimera-dev/chimera/internal/resilience"
	"github.com/chimera-dev/chimera/internal/session"
	"github.com/chimera-dev/chimera/internal/telegram"
)

// Version is set via ldflags.
var Version = "dev"

var (
	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	devLog     = flag.Bool("dev-log", false, "Use human-readable console logging")
)

const llmDependency = "deepseek"

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chimera: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting chimera", zap.String("version", Version))

	observability.InitMetrics()
	if err := observability.InitTracing(cfg.Observability); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// Core pipeline.
	breaker := resilience.NewBreaker(cfg.Breaker)
	retrier := resilience.NewExecutor(cfg.Retry, breaker)
	dlq := resilience.NewDeadLetterQueue(cfg.DLQ)
	store, err := eventstore.NewMemoryStore(cfg.EventStore)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}

	detector, err := session.NewDetector(cfg.Mode)
	if err != nil {
		return fmt.Errorf("mode detector: %w", err)
	}

	limiter := limits.New(cfg.Limits)
	defer func() { _ = limiter.Close() }()

	generator := llm.NewClient(cfg.LLM)
	tg, err := telegram.New(cfg.Telegram, log)
	if err != nil {
		return err
	}

	factory := func(userID string) (actor.Handler, error) {
		return chat.NewActor(userID, cfg.Mode.HistorySize, chat.Options{
			Detector:  detector,
			Generator: generator,
			Deliverer: tg,
			Events:    store,
			Limiter:   limiter,
			Logger:    log,
		})
	}

	system := actor.NewSystem(cfg.Actor, factory, actor.SystemOptions{
		Retrier:    retrier,
		DLQ:        dlq,
		Events:     store,
		Dependency: llmDependency,
		Logger:     log,
	})
	system.OnProcessed(func(_ string, failed bool, elapsed time.Duration) {
		outcome := "ok"
		if failed {
			outcome = "failed"
		}
		observability.RecordMessage(outcome, elapsed)
	})

	if cfg.DLQ.MetricsEnabled {
		var lastEvicted uint64
		dlq.OnSize(func(size int, evicted, _ uint64) {
			observability.SetDLQStats(size, evicted, dlq.OldestAge())
			if evicted > lastEvicted {
				observability.AddDLQEvicted(evicted - lastEvicted)
				lastEvicted = evicted
			}
		})
	}

	// Periodic housekeeping: DLQ retention sweep, event store cleanup,
	// gauge refresh.
	scheduler := cron.New()
	scheduler.Schedule(cron.Every(cfg.DLQ.CleanupInterval), cron.FuncJob(dlq.Sweep))
	scheduler.Schedule(cron.Every(cfg.EventStore.CleanupInterval), cron.FuncJob(func() { store.Cleanup() }))
	scheduler.Schedule(cron.Every(15*time.Second), cron.FuncJob(func() {
		observability.SetEventStoreSize(store.Len())
		observability.SetActiveActors(system.ActiveActors())
		observability.SetBreakerState(llmDependency, int(breaker.State(llmDependency)))
	}))
	scheduler.Start()
	defer scheduler.Stop()

	obsServer := observability.NewServer(cfg.Observability.MetricsPort)
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.Int("port", cfg.Observability.MetricsPort))
		if err := obsServer.Start(); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()
	go tg.Poll(pollCtx, func(userID, text string) error {
		return system.Tell(userID, text)
	})
	log.Info("polling for updates")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("fatal error", zap.Error(err))
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Stop intake first, then drain actors, then tear down the rest.
	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Actor.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := system.Shutdown(shutdownCtx); err != nil {
		log.Warn("actor shutdown incomplete", zap.Error(err))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
	if err := observability.ShutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	log.Info("stopped")
	return nil
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if *devLog {
		return logging.NewDevelopment()
	}
	return logging.New(cfg.Observability.LogLevel)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
