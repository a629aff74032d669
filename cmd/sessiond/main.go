package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "sessiond",
		Short:         "Session lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional config file (yaml, json or toml); GOSESSION_* env vars override it")

	load := func() (goSession.Config, zerolog.Logger, error) {
		cfg, err := goSession.LoadConfig(configPath)
		if err != nil {
			return goSession.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
		}
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		logger, err := goSession.NewLogger(cfg.Log, os.Stderr)
		if err != nil {
			return goSession.Config{}, zerolog.Nop(), fmt.Errorf("init logger: %w", err)
		}
		log.Logger = logger
		return cfg, logger, nil
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newSweepCommand(load))
	cmd.AddCommand(newLoadtestCommand())
	return cmd
}

type configLoader func() (goSession.Config, zerolog.Logger, error)

func buildManager(cfg goSession.Config, logger zerolog.Logger) (*goSession.Manager, error) {
	b := goSession.New().WithConfig(cfg).WithLogger(logger)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goSession.NewLoggerSink(logger))
	}
	return b.Build()
}

func newSweepCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			m, err := buildManager(cfg, logger)
			if err != nil {
				return fmt.Errorf("build manager: %w", err)
			}
			defer m.Close()

			n := m.CleanupExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
			return nil
		},
	}
}
