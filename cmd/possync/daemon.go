package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quickserve/possync/internal/config"
	"github.com/quickserve/possync/internal/engine"
	"github.com/quickserve/possync/internal/entity"
	"github.com/quickserve/possync/internal/ui"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine continuously",
	Long: `Run the sync engine until interrupted.

The daemon uploads queued local changes, listens for edits from other
devices, reconciles the full dataset on startup and on a timer, and runs
the periodic maintenance passes (ghost sweep, order reconstruction).

Logs rotate automatically at the configured log path.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatal("%v", err)
		}

		logger, closeLog := daemonLogger(cfg.LogPath)
		defer closeLog()

		notify := engine.NotifierFuncs{
			OnEntityTypeChanged: func(t entity.Type) {
				logger.Printf("Local %s changed by sync", t)
			},
			OnSyncProgress: func(msg string) {
				logger.Printf("Sync progress: %s", msg)
			},
			OnSyncError: func(err error) {
				logger.Printf("Sync error: %v", err)
			},
		}

		e, cleanup, err := buildEnv(cfg, notify, logger)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := e.engine.Start(ctx); err != nil {
			fatal("failed to start sync engine: %v", err)
		}

		fmt.Printf("%s Sync daemon running for tenant %s (ctrl-c to stop)\n",
			ui.RenderPass("✓"), cfg.TenantID)

		<-ctx.Done()
		fmt.Printf("\n%s Shutting down...\n", ui.RenderAccent("→"))
		e.engine.Stop()
		fmt.Printf("%s Sync daemon stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "log to stderr instead of the log file")
}

// daemonLogger returns a logger writing to the rotating log file, or to
// stderr in foreground mode or when no log path is configured.
func daemonLogger(logPath string) (*log.Logger, func()) {
	if daemonForeground || logPath == "" {
		return log.New(os.Stderr, "[possync] ", log.LstdFlags), func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return log.New(w, "[possync] ", log.LstdFlags), func() { _ = rotator.Close() }
}
