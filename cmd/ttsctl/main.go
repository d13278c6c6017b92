// main package for ttsctl, the operator client for the tts-orchestrator.
// It submits synthesis requests inline against the configured state store
// and engine, and inspects voices and usage without going through a broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-orchestrator/internal/app"
	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/dispatch"
	"github.com/book-expert/tts-orchestrator/internal/engine"
	"github.com/book-expert/tts-orchestrator/internal/limits"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
	"github.com/book-expert/tts-orchestrator/internal/tasks"
	"github.com/book-expert/tts-orchestrator/internal/voices"
	"github.com/book-expert/tts-orchestrator/internal/worker"
)

// Flag descriptions.
const (
	flagTextDesc       = "Text to synthesize"
	flagVoiceDesc      = "Voice id to synthesize with"
	flagUserDesc       = "User id to submit as"
	flagOutputDesc     = "Output file path (.wav)"
	flagHealthDesc     = "Check engine health and exit"
	flagStatsDesc      = "Print the user's usage for the last 7 days and exit"
	flagListVoicesDesc = "List voices visible to the user and exit"
	flagAudioDirDesc   = "Directory for synthesized audio"
)

const (
	defaultUser       = "local"
	defaultOutputFile = "output.wav"
	statsWindowDays   = 7
)

var (
	// ErrHealthUnsupported indicates -health with a non-HTTP engine.
	ErrHealthUnsupported = errors.New("health check requires an http engine")
	// ErrTaskNotSucceeded indicates a task that settled without a result.
	ErrTaskNotSucceeded = errors.New("task did not succeed")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text       string
	voice      string
	user       string
	output     string
	health     bool
	stats      bool
	listVoices bool
	audioDir   string
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.StringVar(&flags.user, "user", defaultUser, flagUserDesc)
	flag.StringVar(&flags.output, "output", defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.BoolVar(&flags.stats, "stats", false, flagStatsDesc)
	flag.BoolVar(&flags.listVoices, "list-voices", false, flagListVoicesDesc)
	flag.StringVar(&flags.audioDir, "audio-dir", "", flagAudioDirDesc)
	flag.Parse()

	return flags
}

func main() {
	err := run()
	if err != nil {
		// The logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	clientLog, err := logger.New(os.TempDir(), "ttsctl.log")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = clientLog.Close()
	}()

	cfg, err := config.Load(clientLog)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	synthesisEngine, err := app.NewEngine(cfg, clientLog)
	if err != nil {
		return err
	}

	if flags.health {
		return checkHealth(ctx, synthesisEngine)
	}

	store, err := app.NewStateStore(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		_ = store.Close()
	}()

	catalog := voices.NewCatalog(store, clientLog)
	tracker := limits.NewTracker(store, app.LimitsDefaults(cfg), clientLog)

	switch {
	case flags.stats:
		return printStats(ctx, tracker, flags.user)
	case flags.listVoices:
		return printVoices(ctx, catalog, flags.user)
	default:
		return synthesize(ctx, cfg, clientLog, store, catalog, tracker, synthesisEngine, flags)
	}
}

func checkHealth(ctx context.Context, synthesisEngine core.Engine) error {
	httpEngine, ok := synthesisEngine.(*engine.HTTPEngine)
	if !ok {
		return ErrHealthUnsupported
	}

	err := httpEngine.CheckHealth(ctx)
	if err != nil {
		return fmt.Errorf("engine is not healthy: %w", err)
	}

	fmt.Println("Engine is healthy")

	return nil
}

func printStats(ctx context.Context, tracker *limits.Tracker, userID string) error {
	usage, err := tracker.UserStats(ctx, userID, statsWindowDays)
	if err != nil {
		return fmt.Errorf("failed to read usage for user '%s': %w", userID, err)
	}

	fmt.Printf("Usage for %s over the last %d days:\n", userID, statsWindowDays)
	fmt.Printf("  requests:   %d (%d succeeded, %d failed)\n",
		usage.RequestsCount, usage.SuccessfulRequests, usage.FailedRequests)
	fmt.Printf("  characters: %d\n", usage.TotalCharacters)
	fmt.Printf("  audio:      %.1fs\n", usage.TotalDurationSec)

	return nil
}

func printVoices(ctx context.Context, catalog *voices.Catalog, userID string) error {
	records, err := catalog.ListForUser(ctx, userID, false)
	if err != nil {
		return fmt.Errorf("failed to list voices for user '%s': %w", userID, err)
	}

	for _, record := range records {
		state := "disabled"
		if record.Enabled {
			state = "enabled"
		}

		fmt.Printf("%s  %-20s %s\n", record.ID, record.Name, state)
	}

	return nil
}

func synthesize(
	ctx context.Context,
	cfg *config.Config,
	clientLog *logger.Logger,
	store core.StateStore,
	catalog *voices.Catalog,
	tracker *limits.Tracker,
	synthesisEngine core.Engine,
	flags appFlags,
) error {
	audioDir := flags.audioDir
	if audioDir == "" {
		audioDir = filepath.Join(os.TempDir(), "ttsctl-audio")
	}

	audioStore, err := objectstore.NewDirAudioStore(audioDir)
	if err != nil {
		return err
	}

	registry := tasks.NewRegistry(store, clientLog)
	executor := worker.NewExecutor(
		registry, catalog, tracker, synthesisEngine, audioStore,
		app.EngineTimeout(cfg), clientLog,
	)

	dispatcher, err := dispatch.New(dispatch.Options{
		Mode:     dispatch.ModeInline,
		Catalog:  catalog,
		Limits:   tracker,
		Tasks:    registry,
		Executor: executor,
		Log:      clientLog,
	})
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	task, err := dispatcher.Submit(ctx, core.SynthesisInput{
		UserID:  flags.user,
		Text:    flags.text,
		VoiceID: flags.voice,
	})
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	if task.State != core.TaskSucceeded {
		if task.Error != nil {
			return fmt.Errorf("%w: task %s (%s): %s",
				ErrTaskNotSucceeded, task.ID, task.Error.Code, task.Error.Message)
		}

		return fmt.Errorf("%w: task %s in state %s", ErrTaskNotSucceeded, task.ID, task.State)
	}

	audio, err := audioStore.Download(ctx, task.Result.AudioKey)
	if err != nil {
		return fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	err = os.WriteFile(flags.output, audio, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write output file '%s': %w", flags.output, err)
	}

	fmt.Printf("Generated: %s (%.1fs)\n", flags.output, task.Result.DurationSeconds)

	return nil
}
