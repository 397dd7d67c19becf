package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/activity"
	"github.com/timvw/pane-mirror/internal/status"
)

var (
	flagNoEmbed        bool
	flagTheme          string
	flagRefresh        string
	flagActivitySocket string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Interactive TUI over the mirror tree",
	Long: `Launch an interactive terminal UI that shows the mirrored sessions and
panes, how many input lines each pane has waiting, and the daemon's
recent activity. Select a pane to jump to it in tmux, or type a line to
queue for it.

The TUI works from the mirrored files alone; it does not need the
daemon to be running, though the activity feed and fresh snapshots do.

If not already running inside tmux, status automatically re-launches
itself in a new tmux session so that jumping (click, Enter) works
correctly. Use --no-embed to disable this behavior.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagNoEmbed, "no-embed", false,
		"Do not auto-embed in a tmux session (jumping will not work outside tmux)")
	statusCmd.Flags().StringVar(&flagTheme, "theme", "dark",
		"Color theme: dark, light")
	statusCmd.Flags().StringVar(&flagRefresh, "refresh", "1s",
		"Tree refresh interval; 0 disables auto-refresh")
	statusCmd.Flags().StringVar(&flagActivitySocket, "activity-socket", "",
		"Unix datagram socket for daemon activity events (\"off\" disables the feed)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command) error {
	// Jumping (switch-client) requires an active tmux client, so we
	// re-exec the same command inside a new tmux session when needed.
	if !flagNoEmbed {
		autoEmbedInTmux()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var refresh time.Duration
	if flagRefresh != "0" && flagRefresh != "off" && flagRefresh != "disable" {
		refresh, err = time.ParseDuration(flagRefresh)
		if err != nil {
			return fmt.Errorf("invalid --refresh %q: %w", flagRefresh, err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Bind the activity socket so daemon events show up in the feed.
	socketPath := flagActivitySocket
	if socketPath == "" {
		socketPath = cfg.ActivitySocket
	}
	var store *activity.Store
	if socketPath != "off" {
		if socketPath == "" {
			socketPath = activity.DefaultSocketPath()
		}
		store = activity.NewStore(3*time.Minute, 256)
		collector := activity.NewCollector(store, socketPath)
		if err := collector.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: activity collector: %v\n", err)
			store = nil
		}
	}

	tui := &status.TUI{
		Root:            cfg.Root,
		RefreshInterval: refresh,
		ThemeName:       flagTheme,
		Events:          store,
	}
	return tui.Run(ctx)
}

// autoEmbedInTmux re-launches the current process inside a tmux session
// when not already running under tmux. This ensures jump commands
// (switch-client) have an active client. On success, the current process
// is replaced (syscall.Exec) and this function never returns. On failure,
// it prints a warning and returns so the TUI can run with degraded
// navigation.
func autoEmbedInTmux() {
	if os.Getenv("TMUX") != "" {
		return // already inside tmux
	}

	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tmux not found in PATH, jumping will not work\n")
		return
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not resolve executable path: %v\n", err)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "/"
	}

	// Pick a session name, avoiding conflicts with existing sessions.
	sessionName := "pane-mirror-status"
	hasSession := exec.Command(tmuxPath, "has-session", "-t", sessionName)
	if hasSession.Run() == nil {
		// Session exists — let tmux auto-name instead
		sessionName = ""
	}

	// Build: tmux new-session [-s name] -c <wd> <exe> <args...>
	tmuxArgs := []string{"tmux", "new-session"}
	if sessionName != "" {
		tmuxArgs = append(tmuxArgs, "-s", sessionName)
	}
	tmuxArgs = append(tmuxArgs, "-c", wd, exe)
	tmuxArgs = append(tmuxArgs, os.Args[1:]...)

	if sessionName != "" {
		fmt.Fprintf(os.Stderr, "not inside tmux — auto-embedding in tmux session %q\n", sessionName)
	} else {
		fmt.Fprintf(os.Stderr, "not inside tmux — auto-embedding in a new tmux session\n")
	}

	// Replace this process with tmux. On success, this never returns.
	if err := syscall.Exec(tmuxPath, tmuxArgs, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not auto-embed in tmux: %v\n", err)
		fmt.Fprintf(os.Stderr, "jumping (click/Enter) will not work\n")
		fmt.Fprintf(os.Stderr, "use --no-embed to suppress this warning\n")
	}
}
