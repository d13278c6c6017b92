// main package for the tts-orchestrator worker service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-orchestrator/internal/app"
	"github.com/book-expert/tts-orchestrator/internal/broker"
	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/book-expert/tts-orchestrator/internal/limits"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
	"github.com/book-expert/tts-orchestrator/internal/tasks"
	"github.com/book-expert/tts-orchestrator/internal/voices"
	"github.com/book-expert/tts-orchestrator/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-orchestrator.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve wires the components and runs the worker loop until shutdown.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := app.NewStateStore(ctx, cfg)
	if err != nil {
		log.Error("Failed to open state store: %v", err)

		return err
	}

	defer func() {
		closeErr := store.Close()
		if closeErr != nil {
			log.Error("Failed to close state store: %v", closeErr)
		}
	}()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	taskQueue, err := broker.New(
		jetstreamContext,
		cfg.NATS.TaskStreamName,
		cfg.NATS.TaskSubject,
		cfg.NATS.WorkerQueueGroup,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create task queue: %w", err)
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to create audio store: %w", err)
	}

	synthesisEngine, err := app.NewEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build synthesis engine: %w", err)
	}

	executor := worker.NewExecutor(
		tasks.NewRegistry(store, log),
		voices.NewCatalog(store, log),
		limits.NewTracker(store, app.LimitsDefaults(cfg), log),
		synthesisEngine,
		audioStore,
		app.EngineTimeout(cfg),
		log,
	)

	log.System("TTS-Orchestrator initialized. Consuming tasks from subject: %s", cfg.NATS.TaskSubject)

	natsWorker := worker.NewNatsWorker(taskQueue, executor, log)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker loop failed: %w", err)
	}

	log.System("TTS-Orchestrator shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
