package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full reconciliation pass",
	Long: `Diff and merge every entity type between the local database and the
cloud store, then drain the upload queue once.

Conflicts resolve to whichever edit carries the later timestamp. Local
edits that win are queued for upload; this command drains the queue
before returning so the device leaves fully pushed.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, cleanup, err := openEnv(nil, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		ctx := context.Background()
		fmt.Printf("%s Reconciling with %s...\n", ui.RenderAccent("🔄"), e.cfg.RemoteURL)
		start := time.Now()

		if err := e.engine.ManualSync(ctx); err != nil {
			fatal("sync failed: %v", err)
		}
		if err := e.engine.DrainOnce(ctx); err != nil {
			fatal("upload drain failed: %v", err)
		}

		depth, err := e.db.QueueDepth(ctx)
		if err != nil {
			fatal("failed to read queue depth: %v", err)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		if depth > 0 {
			fmt.Printf("%s %d changes still queued (remote store rejected or unreachable)\n", ui.RenderWarn("⚠"), depth)
		}
	},
}
