package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/ui"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Reconstruct orders from orphaned line items",
	Long: `Find line items whose parent order is missing and synthesize a
replacement order for each group, totalled from the items at the
configured tax rate.

Reconstructed orders are flagged and synced to other devices like any
other edit. Items under a deleted order are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, cleanup, err := openEnv(nil, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		stats, err := e.engine.RebuildOrders(context.Background())
		if err != nil {
			fatal("rebuild failed: %v", err)
		}

		if stats.Orders == 0 {
			fmt.Printf("%s No orphaned line items found\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Reconstructed %d orders from %d orphaned items\n",
			ui.RenderPass("✓"), stats.Orders, stats.Items)
	},
}
