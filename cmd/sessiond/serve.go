package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	gsprom "github.com/MrEthical07/goSession/metrics/export/prometheus"
)

func newServeCommand(load configLoader) *cobra.Command {
	var (
		addr       string
		adminToken string
		trustXFF   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session HTTP API and run the cleanup sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, logger, err := load()
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = true

			m, err := buildManager(cfg, logger)
			if err != nil {
				return fmt.Errorf("build manager: %w", err)
			}
			defer func() {
				if err := m.Close(); err != nil {
					log.Error().Err(err).Msg("close manager")
				}
			}()

			m.StartSweeper()

			srv := &http.Server{
				Addr: addr,
				Handler: newRouter(routerOptions{
					Manager:           m,
					Metrics:           gsprom.NewCollector(m).Handler(),
					AdminToken:        adminToken,
					TrustForwardedFor: trustXFF,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("backend", cfg.Store.Backend).Msg("starting sessiond")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown server")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "Shared secret for the session issuing and user admin routes; empty disables them")
	cmd.Flags().BoolVar(&trustXFF, "trust-forwarded-for", false, "Take the client IP from X-Forwarded-For")
	return cmd
}
