package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/glimte/expedition-bus/config"
	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/roles"
)

func newSupplierCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supplier <name>",
		Short: "Confirm orders for the equipment types a supplier serves",
		Long: `supplier consumes one order queue per equipment type the supplier serves
plus its admin queue, and runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := knownSupplier(a.cfg, args[0]); err != nil {
				return err
			}

			supplier, err := roles.NewSupplier(args[0], a.cfg,
				roles.WithLogger(a.logger),
				roles.WithBroadcastHandler(func(b contracts.Broadcast) {
					fmt.Fprintf(a.stdout, "[%s from %s] %s\n", b.Type, b.Sender, b.Content)
				}),
			)
			if err != nil {
				return err
			}
			if err := supplier.Start(ctx); err != nil {
				return fmt.Errorf("failed to start supplier: %w", err)
			}

			stopHealth := a.serveHealth(ctx, supplier.ClientName(), supplier.Manager(), supplier)
			defer stopHealth()

			fmt.Fprintf(a.stdout, "supplier %s serving %v, press Ctrl+C to stop\n", supplier.Name(), []string(supplier.Capabilities()))
			<-ctx.Done()

			return supplier.Stop(a.cfg.Broker.SupplierStopTimeout)
		},
	}
}

// knownSupplier rejects names missing from the supplier table
func knownSupplier(cfg *config.Config, name string) error {
	if _, found, _ := cfg.Capabilities(name); found {
		return nil
	}
	names := make([]string, 0, len(cfg.Suppliers))
	for supplier := range cfg.Suppliers {
		names = append(names, supplier)
	}
	sort.Strings(names)
	return fmt.Errorf("unknown supplier %q, configured suppliers: %v", name, names)
}
