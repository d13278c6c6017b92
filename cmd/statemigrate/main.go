// main package for statemigrate, the one-shot reconciliation of the
// file-backed state into the relational backend. Stop every orchestrator
// and worker instance before running it: the copy is not safe against
// live writers of either store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/book-expert/tts-orchestrator/internal/migrate"
	"github.com/book-expert/tts-orchestrator/internal/statestore"
)

// Flag descriptions.
const (
	flagModeDesc        = "Migration mode: replace or merge"
	flagCollectionsDesc = "Comma-separated collections to migrate (default: all)"
)

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	mode := flag.String("mode", string(migrate.ModeMerge), flagModeDesc)
	collectionsFlag := flag.String("collections", "", flagCollectionsDesc)
	flag.Parse()

	migrateLog, err := logger.New(os.TempDir(), "statemigrate.log")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = migrateLog.Close()
	}()

	cfg, err := config.Load(migrateLog)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	src, err := statestore.New(ctx, statestore.Options{
		Backend:          statestore.BackendFile,
		FileStatePath:    cfg.Storage.FilePath,
		RelationalDriver: "",
		RelationalDSN:    "",
	})
	if err != nil {
		return fmt.Errorf("failed to open source file store: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := statestore.New(ctx, statestore.Options{
		Backend:          statestore.BackendRelational,
		FileStatePath:    "",
		RelationalDriver: cfg.Storage.Driver,
		RelationalDSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return fmt.Errorf("failed to open destination relational store: %w", err)
	}

	defer func() {
		_ = dst.Close()
	}()

	var collections []string
	if *collectionsFlag != "" {
		collections = strings.Split(*collectionsFlag, ",")
	}

	summary, err := migrate.Run(ctx, src, dst, migrate.Mode(*mode), collections, migrateLog)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	report, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	fmt.Println(string(report))

	return nil
}
