package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/entity"
	"github.com/quickserve/possync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	Long: `Display the current state of the local database and sync bookkeeping.

Shows:
  - Database file location and size
  - Record counts per entity type
  - Pending upload queue depth
  - Time since the last full sync per entity type`,
	Run: func(cmd *cobra.Command, args []string) {
		e, cleanup, err := openEnv(nil, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		ctx := context.Background()

		fmt.Printf("\n%s\n", ui.RenderHeader("possync status"))
		fmt.Printf("   Tenant:   %s\n", e.cfg.TenantID)
		fmt.Printf("   Remote:   %s\n", e.cfg.RemoteURL)
		if info, err := os.Stat(e.db.Path()); err == nil {
			fmt.Printf("   Database: %s (%.1f KB)\n", e.db.Path(), float64(info.Size())/1024)
		} else {
			fmt.Printf("   Database: %s\n", e.db.Path())
		}

		depth, err := e.db.QueueDepth(ctx)
		if err != nil {
			fatal("failed to read queue depth: %v", err)
		}
		if depth == 0 {
			fmt.Printf("   Queue:    %s\n", ui.RenderPass("empty"))
		} else {
			fmt.Printf("   Queue:    %s\n", ui.RenderWarn(fmt.Sprintf("%d pending changes", depth)))
		}

		fmt.Printf("\n%s\n", ui.RenderHeader("collections"))
		now := time.Now().UTC()
		for _, t := range entity.AllTypes() {
			count, err := e.db.CountRecords(ctx, t)
			if err != nil {
				fatal("failed to count %s: %v", t, err)
			}
			cur, err := e.db.Cursor(ctx, t)
			if err != nil {
				fatal("failed to read %s cursor: %v", t, err)
			}

			lastSync := ui.RenderDim("never synced")
			if !cur.LastFullSyncAt.IsZero() {
				lastSync = fmt.Sprintf("synced %s ago", now.Sub(cur.LastFullSyncAt).Round(time.Second))
				if cur.FullSyncDue(e.cfg.ReconcileInterval, now) {
					lastSync = ui.RenderWarn(lastSync + " (overdue)")
				}
			}
			listener := ui.RenderDim("·")
			if cur.ListenerActive {
				listener = ui.RenderPass("●")
			}
			fmt.Printf("   %s %-16s %6d records   %s\n", listener, t, count, lastSync)
		}
		fmt.Println()
	},
}
