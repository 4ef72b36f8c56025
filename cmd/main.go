package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tuncerburak97/apilog/internal/config"
	"github.com/tuncerburak97/apilog/internal/logger"
	"github.com/tuncerburak97/apilog/internal/repository/factory"
	"github.com/tuncerburak97/apilog/internal/server"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "apilog",
	Short:         "Audit log every HTTP exchange and query the records",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audited server with the log API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, err := factory.Open(cmd.Context(), &cfg.DB)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close repository")
			}
		}()

		srv, err := server.New(cfg, repo, nil, &log.Logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close server resources")
			}
		}()

		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("addr", srv.Addr()).
				Str("proxy_target", cfg.Proxy.Target).
				Str("api_prefix", cfg.API.Prefix).
				Msg("Starting server")
			errCh <- srv.Listen()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errCh:
			return fmt.Errorf("server stopped: %w", err)
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down server...")
		if err := srv.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the api_log schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := factory.Open(cmd.Context(), &cfg.DB)
		if err != nil {
			return err
		}
		log.Info().Str("type", cfg.DB.Type).Msg("Migrations applied")
		return repo.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("APILOG_CONFIG"), "path to config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("apilog failed")
	}
}
