package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/config"
	"github.com/NeroQue/cartridge-import-backend/internal/converter"
	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/merge"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/task"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ccimport",
		Short:         "Convert and import Common Cartridge packages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newConvertCommand())
	cmd.AddCommand(newImportCommand())
	return cmd
}

func newConvertCommand() *cobra.Command {
	var qti bool
	cmd := &cobra.Command{
		Use:   "convert <archive>",
		Short: "Print the converted course document without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, log, err := setup(c, func(cfg *config.Config) {
				if c.Flags().Changed("qti") {
					cfg.QTIEnabled = qti
				}
			})
			if err != nil {
				return err
			}
			defer log.Sync()

			svc := newImportService(cfg, database.NewMemoryStore(), log)
			doc, err := svc.Convert(c.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), doc)
		},
	}
	cmd.Flags().BoolVar(&qti, "qti", false, "Hand assessments to the assessment converter")
	return cmd
}

func newImportCommand() *cobra.Command {
	var (
		course    string
		selSource string
		dbURL     string
		qti       bool
		onError   string
	)
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a cartridge into a course and print the merge report",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			courseID, err := uuid.Parse(course)
			if err != nil {
				return fmt.Errorf("--course must be a UUID: %w", err)
			}
			spec, err := loadSelection(selSource)
			if err != nil {
				return err
			}

			cfg, log, err := setup(c, func(cfg *config.Config) {
				if c.Flags().Changed("db-url") {
					cfg.DBURL = dbURL
				}
				if c.Flags().Changed("qti") {
					cfg.QTIEnabled = qti
				}
				if c.Flags().Changed("on-error") {
					cfg.MergeOnError = strings.ToLower(onError)
				}
			})
			if err != nil {
				return err
			}
			defer log.Sync()

			store, closeStore, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			svc := newImportService(cfg, store, log)
			taskID := svc.Tasks.Create(task.TypeImport, courseID.String())
			report, err := svc.Run(c.Context(), taskID, services.ImportRequest{
				CourseID:    courseID,
				ArchivePath: args[0],
				Selection:   spec,
			})
			if report != nil {
				if printErr := printJSON(c.OutOrStdout(), report); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Course UUID to import into (required)")
	cmd.Flags().StringVar(&selSource, "selection", "", "Selection JSON, or @file to read it from a file")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "Postgres DSN, defaults to DB_URL; empty keeps everything in memory")
	cmd.Flags().BoolVar(&qti, "qti", false, "Hand assessments to the assessment converter")
	cmd.Flags().StringVar(&onError, "on-error", config.MergeOnErrorSkip, "What a failed entity write does: skip or abort")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

// setup loads config from the environment, lets flags override it and builds the logger
func setup(c *cobra.Command, override func(*config.Config)) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log.With("command", c.Name()), nil
}

func newImportService(cfg *config.Config, store database.Store, log *logger.Logger) *services.ImportService {
	return services.NewImportService(
		archive.NewLoader(afero.NewOsFs(), cfg.WorkDir, log),
		parser.NewManifestParser(log),
		converter.NewConverter(nil, cfg.QTIEnabled, log),
		merge.NewEngine(store, merge.OnError(cfg.MergeOnError), log),
		task.NewManager(),
		cfg.MaxParallelImports,
		log,
	)
}

func openStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	if cfg.DBURL == "" {
		return database.NewMemoryStore(), func() {}, nil
	}
	db, err := database.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, err
	}
	queries := database.New(db)
	if err := queries.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return queries, func() { db.Close() }, nil
}

// loadSelection accepts inline JSON or @path
func loadSelection(src string) (*selection.Spec, error) {
	data := []byte(src)
	if strings.HasPrefix(src, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(src, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading selection: %w", err)
		}
	}
	return selection.Parse(data)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
