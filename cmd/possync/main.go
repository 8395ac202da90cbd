// possync keeps a point-of-sale device's local database in sync with the
// shared cloud store.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/quickserve/possync/internal/config"
	"github.com/quickserve/possync/internal/engine"
	"github.com/quickserve/possync/internal/localstore"
	"github.com/quickserve/possync/internal/remote"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "possync",
	Short: "Multi-device sync engine for point-of-sale data",
	Long: `possync synchronizes a restaurant device's local database with the
shared cloud store: orders, menu, inventory, users, and tables.

Local writes always commit immediately; the engine uploads them in the
background and merges edits from other devices as they arrive. Run
'possync daemon' on the device for continuous sync, or use the one-shot
commands for maintenance.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: possync.yaml in ., ~/.possync, /etc/possync)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(seedCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles everything a command needs after startup.
type env struct {
	cfg    *config.Config
	db     *localstore.DB
	engine *engine.Engine
}

// openEnv loads config, opens the local store, and constructs an engine.
// The engine is not started; one-shot commands drive it directly and the
// daemon calls Start itself. A nil logger uses the engine default.
func openEnv(notify engine.Notifier, logger *log.Logger) (*env, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return buildEnv(cfg, notify, logger)
}

// buildEnv wires the store, remote client, and engine from loaded config.
func buildEnv(cfg *config.Config, notify engine.Notifier, logger *log.Logger) (*env, func(), error) {
	db, err := localstore.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL:  cfg.RemoteURL,
		TenantID: cfg.TenantID,
		Token:    cfg.Token,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	ecfg := engine.DefaultConfig()
	ecfg.TenantID = cfg.TenantID
	ecfg.ReconcileInterval = cfg.ReconcileInterval
	ecfg.SweepInterval = cfg.SweepInterval
	ecfg.RebuildInterval = cfg.RebuildInterval
	ecfg.UploadPoll = cfg.UploadPoll
	ecfg.UploadBackoff = engine.Backoff{Base: cfg.UploadBackoffBase, Cap: cfg.UploadBackoffCap}
	ecfg.ListenerBackoff = engine.Backoff{Base: cfg.ListenerBackoffBase, Cap: cfg.ListenerBackoffCap}
	ecfg.MaxUploadRetries = cfg.MaxUploadRetries
	ecfg.MaxDeleteBatch = cfg.MaxDeleteBatch
	ecfg.TaxRate = cfg.TaxRate
	if logger != nil {
		ecfg.Logger = logger
	}

	eng, err := engine.New(ecfg, db, client, notify)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return &env{cfg: cfg, db: db, engine: eng}, cleanup, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
