package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/activity"
	"github.com/timvw/pane-mirror/internal/config"
	"github.com/timvw/pane-mirror/internal/lock"
	"github.com/timvw/pane-mirror/internal/logging"
	"github.com/timvw/pane-mirror/internal/mirror"
	"github.com/timvw/pane-mirror/internal/mux"
	telem "github.com/timvw/pane-mirror/internal/otel"
	"github.com/timvw/pane-mirror/internal/queue"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

// Version is the build version, overridden at release time via
// -ldflags "-X github.com/timvw/pane-mirror/cmd.Version=...".
var Version = "dev"

var (
	// Global flags. Explicitly set flags override environment variables
	// and the config file.
	flagConfig       string
	flagRoot         string
	flagInterval     string
	flagScrollback   int
	flagMuxName      string
	flagLogLevel     string
	flagOTELEndpoint string
)

var rootCmd = &cobra.Command{
	Use:   "pane-mirror",
	Short: "Mirror terminal multiplexer panes onto the filesystem",
	Long: `pane-mirror mirrors every tmux session, window, and pane onto a
directory tree. Each pane directory holds a content.txt snapshot of the
pane (refreshed every cycle) and an input.txt queue file: lines appended
to the queue are transmitted to the pane as keystrokes and consumed.

Anything that can read and write files — editors, scripts, agents on the
other side of a shared filesystem — can observe and drive terminal panes
without speaking the tmux protocol.

Running pane-mirror with no subcommand starts the mirror daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: ./.pane-mirror.yaml, then ~/.config/pane-mirror/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "mirror root directory (default: tmux)")
	rootCmd.PersistentFlags().StringVar(&flagInterval, "interval", "", "poll interval, e.g. 500ms (default: 500ms)")
	rootCmd.PersistentFlags().IntVar(&flagScrollback, "scrollback", 0, "scrollback lines captured above the visible area (default: 500)")
	rootCmd.PersistentFlags().StringVar(&flagMuxName, "mux", "", "terminal multiplexer: tmux (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVar(&flagOTELEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint for traces and metrics (default: disabled)")
}

// loadConfig resolves the effective configuration: defaults, then config
// file, then environment, then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(flagConfig)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("root") {
		cfg.Root = flagRoot
	}
	if f.Changed("scrollback") {
		cfg.Scrollback = flagScrollback
	}
	if f.Changed("mux") {
		cfg.Mux = flagMuxName
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("otel-endpoint") {
		cfg.OTELEndpoint = flagOTELEndpoint
	}
	if f.Changed("interval") {
		d, err := time.ParseDuration(flagInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid --interval %q: %w", flagInterval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("--interval must be positive, got %q", flagInterval)
		}
		cfg.Interval = flagInterval
		cfg.IntervalDuration = d
	}
	if cfg.Scrollback < 0 {
		return nil, fmt.Errorf("scrollback must be non-negative, got %d", cfg.Scrollback)
	}

	return cfg, nil
}

// getMultiplexer returns the configured or auto-detected multiplexer.
func getMultiplexer(cfg *config.Config) (mux.Multiplexer, error) {
	if cfg.Mux != "" {
		return mux.FromName(cfg.Mux)
	}
	return mux.Detect()
}

func runDaemon(cmd *cobra.Command) error {
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
	log := logging.ForComponent(logging.CompCLI)

	if cfg.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "config: loaded %s\n", cfg.ConfigFile)
	}

	// The interrupt stops the loop between cycles; the in-flight cycle
	// always finishes so no file is left partially written.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	}
	if tel != nil {
		defer func() {
			// ctx is already canceled when we get here; flush on a fresh one.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tel.Shutdown(flushCtx)
		}()
	}

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

	// The run ID groups all activity events from this daemon process,
	// making restarts visible to observers.
	runID := uuid.NewString()

	var feed *activity.Publisher
	if cfg.ActivitySocket != "off" {
		sock := cfg.ActivitySocket
		if sock == "" {
			sock = activity.DefaultSocketPath()
		}
		feed = activity.NewPublisher(sock, runID)
		defer feed.Close()
	}

	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	rec := &mirror.Reconciler{
		Mux:             m,
		Root:            cfg.Root,
		Snapshots:       snapshot.NewWriter(m, cfg.Scrollback),
		Queues:          queue.NewProcessor(m),
		ExcludeSessions: cfg.ExcludeSessions,
		Changes:         mirror.NewChangeTracker(),
		Metrics:         metrics,
		Feed:            feed,
	}

	// The watcher wakes the loop early when a queue file is written, so
	// queued input is applied without waiting out the poll interval.
	var wake <-chan struct{}
	var watch *mirror.Watcher
	if cfg.WatchDebounce > 0 {
		watch, err = mirror.NewWatcher(cfg.WatchDebounce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: queue watcher unavailable, polling only: %v\n", err)
			log.Warn("queue watcher unavailable, polling only", "error", err)
		} else {
			defer watch.Close()
			wake = watch.C
		}
	}

	log.Info("daemon starting",
		"version", Version,
		"run_id", runID,
		"mux", m.Name(),
		"root", cfg.Root,
		"interval", cfg.IntervalDuration.String(),
		"scrollback", cfg.Scrollback,
	)
	fmt.Fprintf(os.Stderr, "pane-mirror: mirroring %s into %s every %s (pid %d)\n",
		m.Name(), cfg.Root, cfg.IntervalDuration, os.Getpid())

	for {
		cycleCtx := context.WithoutCancel(ctx)
		stats, err := rec.Reconcile(cycleCtx)
		if err != nil {
			log.Warn("cycle failed", "error", err)
		} else {
			log.Debug("cycle complete",
				"sessions", stats.Sessions,
				"panes", stats.Panes,
				"queue_lines", stats.QueueLines,
				"renamed", stats.Renamed,
				"removed", stats.Removed,
				"errors", stats.Errors,
				"duration_ms", stats.DurationMs,
			)
			if watch != nil {
				watch.Track(stats.PaneDirs)
			}
		}

		select {
		case <-ctx.Done():
			log.Info("daemon stopping", "run_id", runID)
			return nil
		case <-time.After(cfg.IntervalDuration):
		case <-wake:
		}
	}
}
