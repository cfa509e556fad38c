package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/logger"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/migration"
	"github.com/reddomeuk/redscan-application-sub002/migrations"
)

const defaultMigrationsPath = "migrations"

type options struct {
	path     string
	logLevel string
	log      *zap.Logger
}

// source returns the migrations on disk when --path is set, the embedded set otherwise
func (o *options) source() fs.FS {
	if o.path != "" {
		return os.DirFS(o.path)
	}
	return migrations.FS
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the ITSM sync database schema",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{
				Level:      opts.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.path, "path", "", "migrations directory (default: the embedded migrations)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newUpCmd(opts),
		newDownCmd(opts),
		newStepCmd(opts),
		newGotoCmd(opts),
		newVersionCmd(opts),
		newForceCmd(opts),
		newCreateCmd(opts),
		newListCmd(opts),
	)
	return root
}

// withMigrator opens the configured postgres database and hands a migrator to fn
func withMigrator(opts *options, fn func(m *migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		return fmt.Errorf("sqlite schemas are created by the server on start; migrations target postgres")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, opts.source(), opts.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			opts.log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return fn(m)
}
