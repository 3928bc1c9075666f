package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/coinchat-client/internal/app"
	"github.com/vovakirdan/coinchat-client/internal/config"
	applog "github.com/vovakirdan/coinchat-client/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:          "coinchat-bot",
		Short:        "Run the sample dice bot against a coinchat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := applog.New("info", "console")

			cfg, path, err := config.Load(bootLog, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := applog.New(cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", path).Str("endpoint", cfg.Endpoint).Strs("rooms", cfg.Rooms).Msg("starting coinchat bot")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("bot exited with error: %w", err)
			}
			logger.Info().Msg("bot stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config file (default ./coinchat.yaml)")
	flags.StringVarP(&overrides.Username, "username", "u", "", "account username")
	flags.StringVarP(&overrides.Password, "password", "p", "", "account password")
	flags.StringVar(&overrides.Session, "session", "", "session token, used when no password is given")
	flags.StringVar(&overrides.Endpoint, "endpoint", "", "chat server endpoint")
	flags.BoolVar(&overrides.Insecure, "insecure", false, "allow a plain ws:// endpoint")
	flags.StringArrayVarP(&overrides.Rooms, "room", "r", nil, "room to join (repeatable)")
	flags.StringArrayVar(&overrides.Admins, "admin", nil, "user allowed to run admin commands (repeatable)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&overrides.StatusAddr, "status-addr", "", "serve /health and /status on this address")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return cmd
}
