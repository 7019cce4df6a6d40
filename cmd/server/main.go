package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"iclr-explorer/internal/config"
	"iclr-explorer/internal/partition"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/year"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "iclr-explorer",
	Short: "Browse conference submissions and evaluate LLM acceptance predictions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yml", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importStatsCmd)
	rootCmd.AddCommand(evaluateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config. A missing default file falls back to built-in
// defaults; a missing file given explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		c = config.Default()
		return c, c.Validate()
	}
	return c, err
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// store is the storage stack shared by every command.
type store struct {
	db       *sqlx.DB
	years    *year.Registry
	resolver *partition.Resolver
}

func openStore(ctx context.Context) (*store, error) {
	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
		db.Close()
		return nil, err
	}

	years, err := year.NewRegistry(cfg.Years.Available, cfg.Years.Default)
	if err != nil {
		db.Close()
		return nil, err
	}

	resolver := partition.NewResolver(years, logger)
	if err := resolver.Verify(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &store{db: db, years: years, resolver: resolver}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}
