package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/seed"
	"github.com/quickserve/possync/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:   "seed <menu.yaml>",
	Short: "Import a menu definition from a YAML file",
	Long: `Import categories and menu items from a YAML seed file.

Seeded records go through the ordinary write path: they commit locally,
queue for upload, and reach every other device like any local edit.
Menu items reference categories by name; ids are generated unless the
file sets them, so re-seeding the same file creates new records rather
than updating old ones.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := seed.Load(args[0])
		if err != nil {
			fatal("%v", err)
		}

		e, cleanup, err := openEnv(nil, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		ctx := context.Background()
		stats, err := seed.Apply(ctx, e.engine, e.cfg.TenantID, f)
		if err != nil {
			fatal("seed import failed: %v", err)
		}

		fmt.Printf("%s Imported %d categories and %d menu items\n",
			ui.RenderPass("✓"), stats.Categories, stats.MenuItems)

		if err := e.engine.DrainOnce(ctx); err != nil {
			fmt.Printf("%s Upload incomplete: %v (changes remain queued)\n", ui.RenderWarn("⚠"), err)
			return
		}
		depth, _ := e.db.QueueDepth(ctx)
		if depth > 0 {
			fmt.Printf("%s %d changes still queued for upload\n", ui.RenderWarn("⚠"), depth)
		}
	},
}
