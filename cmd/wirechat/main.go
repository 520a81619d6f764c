package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-rooms/internal/app"
	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/config"
	logpkg "github.com/vovakirdan/wirechat-rooms/internal/log"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "wirechat",
		Short:        "Real-time chat server with rooms and private conversations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console, json)")

	serve := newServeCmd(&configPath)
	root.AddCommand(serve, newRegisterCmd(&configPath))

	// Running without a subcommand serves.
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE

	return root
}

func loadConfig(cmd *cobra.Command, configPath string) (config.Config, *zerolog.Logger, error) {
	bootLogger := logpkg.New("info", "console")
	cfg, path, err := config.Load(bootLogger, configPath, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	logger := logpkg.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting wirechat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("database-path", "", "SQLite database file")
	cmd.Flags().String("upload-dir", "", "directory for uploaded media")
	return cmd
}

func newRegisterCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			svc := auth.NewService(st, &auth.JWTConfig{Secret: []byte(cfg.JWTSecret), TTL: cfg.JWTTTL})
			user, err := svc.Register(context.Background(), args[0], password)
			if err != nil {
				return err
			}

			logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for the new account")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
