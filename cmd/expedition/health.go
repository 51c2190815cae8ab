package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/expedition-bus/health"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
	"github.com/glimte/expedition-bus/roles"
)

const healthTimeout = 5 * time.Second

func newHealthCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the broker and print a health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			// an idle administrator gives a connection manager with the configured exchange
			admin, err := roles.NewAdministrator(a.cfg, roles.WithLogger(a.logger))
			if err != nil {
				return err
			}

			registry := health.NewRegistry()
			registry.Register(health.NewBrokerChecker(admin.Manager()))
			registry.SetMetadata("url", rabbitmq.SanitizeURL(a.cfg.Broker.URL))
			registry.SetMetadata("exchange", a.cfg.Broker.Exchange)

			report := registry.Check(ctx)
			encoder := json.NewEncoder(a.stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy {
				return errors.New("broker is unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall probe timeout")
	return cmd
}

// serveHealth exposes the role's health on --health-addr until the returned
// function is called. It does nothing when no address is set.
func (a *app) serveHealth(ctx context.Context, role string, prober health.Prober, workers health.WorkerSource) func() {
	if a.healthAddr == "" {
		return func() {}
	}

	registry := health.NewRegistry()
	registry.Register(health.NewBrokerChecker(prober))
	registry.Register(health.NewWorkerChecker("workers", workers))
	registry.SetMetadata("role", role)

	server := &http.Server{
		Addr:              a.healthAddr,
		Handler:           health.NewRouter(registry, healthTimeout),
		ReadHeaderTimeout: healthTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		a.logger.Info("serving health endpoints", "addr", a.healthAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("health server failed", "addr", a.healthAddr, "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("health server shutdown failed", "error", err)
		}
	}
}
