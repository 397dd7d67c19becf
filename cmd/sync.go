package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/lock"
	"github.com/timvw/pane-mirror/internal/logging"
	"github.com/timvw/pane-mirror/internal/mirror"
	"github.com/timvw/pane-mirror/internal/queue"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run exactly one reconcile cycle and exit",
	Long: `Run one discover-and-reconcile pass over all panes and exit.

Snapshots are refreshed, queued input is transmitted, and stale
directories are cleaned up, exactly as one daemon cycle would. The
cycle's statistics are printed as JSON.

The mirror root's single-instance lock is taken for the duration of the
cycle, so sync refuses to run while the daemon holds it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		logging.Init(logging.Config{
			Dir:    cfg.LogDir,
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
		defer logging.Shutdown()

		m, err := getMultiplexer(cfg)
		if err != nil {
			return fmt.Errorf("no supported terminal multiplexer found: %w", err)
		}

		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return fmt.Errorf("creating mirror root %s: %w", cfg.Root, err)
		}
		lk, err := lock.Acquire(filepath.Join(cfg.Root, lock.FileName))
		if err != nil {
			return err
		}
		defer lk.Release()

		rec := &mirror.Reconciler{
			Mux:             m,
			Root:            cfg.Root,
			Snapshots:       snapshot.NewWriter(m, cfg.Scrollback),
			Queues:          queue.NewProcessor(m),
			ExcludeSessions: cfg.ExcludeSessions,
			Changes:         mirror.NewChangeTracker(),
		}

		stats, err := rec.Reconcile(cmd.Context())
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
