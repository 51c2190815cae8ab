package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glimte/expedition-bus/roles"
)

// broadcaster is the part of the administrator the shell drives
type broadcaster interface {
	BroadcastToTeams(ctx context.Context, content string) error
	BroadcastToSuppliers(ctx context.Context, content string) error
	BroadcastToAll(ctx context.Context, content string) error
}

func newAdminCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "admin",
		Short: "Monitor all traffic and broadcast messages to teams and suppliers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			admin, err := roles.NewAdministrator(a.cfg, roles.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := admin.StartMonitoring(ctx); err != nil {
				return fmt.Errorf("failed to start monitoring: %w", err)
			}
			defer func() {
				if err := admin.StopMonitoring(a.cfg.Broker.StopTimeout); err != nil {
					a.logger.Warn("monitor did not stop cleanly", "error", err)
				}
			}()

			stopHealth := a.serveHealth(ctx, admin.ClientName(), admin.Manager(), admin)
			defer stopHealth()

			fmt.Fprintln(a.stdout, "commands: teams <msg> | suppliers <msg> | all <msg> | exit")
			return runShell(ctx, a.stdin, a.stdout, "Admin", adminHandler(admin, a.stdout))
		},
	}
}

func adminHandler(admin broadcaster, out io.Writer) func(context.Context, command) error {
	return func(ctx context.Context, cmd command) error {
		var send func(context.Context, string) error
		switch cmd.name {
		case "teams":
			send = admin.BroadcastToTeams
		case "suppliers":
			send = admin.BroadcastToSuppliers
		case "all":
			send = admin.BroadcastToAll
		default:
			fmt.Fprintf(out, "unknown command %q, use teams, suppliers, all or exit\n", cmd.name)
			return nil
		}

		if cmd.arg == "" {
			fmt.Fprintf(out, "usage: %s <message>\n", cmd.name)
			return nil
		}
		if err := send(ctx, cmd.arg); err != nil {
			return err
		}
		fmt.Fprintf(out, "sent to %s\n", cmd.name)
		return nil
	}
}
