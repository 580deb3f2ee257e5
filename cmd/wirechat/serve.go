package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	applog "github.com/vovakirdan/wirechat-relay/internal/log"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := applog.New(overrides.LogLevel)

			cfg, resolvedPath, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(overrides)

			logger, closeLog, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().
				Str("addr", cfg.Addr).
				Str("admin_addr", cfg.AdminAddr).
				Str("config", resolvedPath).
				Msg("starting wirechat relay")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("relay exited with error")
				return err
			}
			logger.Info().Msg("relay stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")
	flags.StringVar(&overrides.Addr, "addr", "", "TCP listen address")
	flags.StringVar(&overrides.AdminAddr, "admin-addr", "", "admin HTTP listen address (disabled when empty)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&overrides.AuditDBPath, "audit-db", "", "SQLite path for the presence audit log")
	return cmd
}

func buildLogger(cfg config.Config) (*zerolog.Logger, func(), error) {
	if cfg.LogDir == "" {
		return applog.New(cfg.LogLevel), func() {}, nil
	}

	now := time.Now()
	logger, closer, err := applog.NewWithFile(cfg.LogLevel, cfg.LogDir, now)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	removed, err := applog.CleanupOldLogs(cfg.LogDir, cfg.LogRetentionDays, now)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to clean up old logs")
	} else if len(removed) > 0 {
		logger.Info().Strs("files", removed).Msg("removed old log files")
	}
	return logger, func() { _ = closer.Close() }, nil
}
