package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/roles"
)

// orderSender is the part of a team the shell drives
type orderSender interface {
	SendOrder(ctx context.Context, equipmentType string) (string, error)
}

func newTeamCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "team <name>",
		Short: "Order equipment and receive confirmations and broadcasts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			team, err := roles.NewTeam(args[0], a.cfg,
				roles.WithLogger(a.logger),
				roles.WithConfirmationHandler(func(c contracts.Confirmation) {
					fmt.Fprintf(a.stdout, "\nconfirmed: order %s for %s by %s (supplier order %s)\n",
						c.TeamOrderID, c.EquipmentType, c.SupplierName, c.SupplierOrderID)
				}),
				roles.WithBroadcastHandler(func(b contracts.Broadcast) {
					fmt.Fprintf(a.stdout, "\n[%s from %s] %s\n", b.Type, b.Sender, b.Content)
				}),
			)
			if err != nil {
				return err
			}
			if err := team.StartListening(ctx); err != nil {
				return fmt.Errorf("failed to start listening: %w", err)
			}
			defer func() {
				if err := team.StopListening(a.cfg.Broker.StopTimeout); err != nil {
					a.logger.Warn("team did not stop cleanly", "team", team.Name(), "error", err)
				}
			}()

			stopHealth := a.serveHealth(ctx, team.ClientName(), team.Manager(), team)
			defer stopHealth()

			fmt.Fprintf(a.stdout, "equipment: %v\n", a.cfg.EquipmentTypes)
			fmt.Fprintln(a.stdout, "commands: order <type> | zamow <type> | exit")
			return runShell(ctx, a.stdin, a.stdout, team.Name(), teamHandler(team, a.stdout))
		},
	}
}

func teamHandler(team orderSender, out io.Writer) func(context.Context, command) error {
	return func(ctx context.Context, cmd command) error {
		switch cmd.name {
		case "order", "zamow":
		default:
			fmt.Fprintf(out, "unknown command %q, use order <type> or exit\n", cmd.name)
			return nil
		}

		if cmd.arg == "" {
			fmt.Fprintf(out, "usage: %s <equipment type>\n", cmd.name)
			return nil
		}
		orderID, err := team.SendOrder(ctx, cmd.arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "order %s sent for %s\n", orderID, cmd.arg)
		return nil
	}
}
