package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/ui"
)

var sweepForce bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete ghost orders from both stores",
	Long: `Find and permanently delete ghost orders: orders with no line items
or a zero total that were neither voided nor comped. These are artifacts
of crashed order flows.

Both the local database and the cloud store are swept, each against its
own contents. Deletion is permanent; pass --force to skip confirmation.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !sweepForce {
			var confirmed bool
			prompt := huh.NewConfirm().
				Title("Permanently delete ghost orders from both stores?").
				Description("Orders with no items or a zero total (not voided, not comped) will be removed. This cannot be undone.").
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				fatal("%v", err)
			}
			if !confirmed {
				fmt.Printf("%s Sweep cancelled\n", ui.RenderDim("–"))
				return
			}
		}

		e, cleanup, err := openEnv(nil, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		stats, err := e.engine.SweepGhosts(context.Background())
		if err != nil {
			fatal("sweep failed: %v", err)
		}

		fmt.Printf("%s Ghost sweep complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Local:  %d orders, %d items\n", stats.LocalOrders, stats.LocalItems)
		fmt.Printf("   Remote: %d orders, %d items\n", stats.RemoteOrders, stats.RemoteItems)
	},
}

func init() {
	sweepCmd.Flags().BoolVarP(&sweepForce, "force", "f", false, "skip the confirmation prompt")
}
