package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/api"
	"github.com/NeroQue/cartridge-import-backend/internal/config"
	"github.com/NeroQue/cartridge-import-backend/internal/converter"
	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/merge"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/task"
	"github.com/spf13/afero"
)

// main entry point - sets up everything and starts the server
func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet, config decides its mode
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	tasks := task.NewManager()
	// cleans finished tasks in the background
	go tasks.CleanupRoutine(ctx, cfg.TaskCleanupInterval, cfg.TaskMaxAge, log)

	imports := services.NewImportService(
		archive.NewLoader(afero.NewOsFs(), cfg.WorkDir, log),
		parser.NewManifestParser(log),
		converter.NewConverter(nil, cfg.QTIEnabled, log),
		merge.NewEngine(store, merge.OnError(cfg.MergeOnError), log),
		tasks,
		cfg.MaxParallelImports,
		log,
	)
	server := api.NewServer(cfg, imports, services.NewCourseService(store, log), services.NewAdminService(store, log), log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "error", err)
		}
	}()

	log.Info("starting server", "addr", cfg.Addr(), "work_dir", cfg.WorkDir, "qti", cfg.QTIEnabled, "on_error", cfg.MergeOnError)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("could not start server", "error", err)
	}
}

// openStore picks postgres when DB_URL is set and the in-memory store otherwise
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (database.Store, func()) {
	if cfg.DBURL == "" {
		log.Warn("DB_URL not set, imported entities only live in memory")
		return database.NewMemoryStore(), func() {}
	}

	db, err := database.Open(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	queries := database.New(db)
	if err := queries.CreateSchema(ctx); err != nil {
		log.Fatal("failed to create schema", "error", err)
	}
	return queries, func() { db.Close() }
}
