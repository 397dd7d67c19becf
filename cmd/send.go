package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/queue"
)

var sendCmd = &cobra.Command{
	Use:   "send <target> <line>",
	Short: "Queue a line of input for a pane",
	Long: `Append a line to a pane's queue file. The daemon transmits it on its
next cycle: plain lines are typed into the pane followed by Enter,
directive lines control the transmission:

  /key <name>      send a named key (Enter, Escape, C-c, Up, ...)
  /literal <text>  type text without pressing Enter
  /enter           press Enter
  /escape          press Escape
  /clear           clear the pane's input line (C-u)
  /cancel          interrupt the pane's foreground process (C-c)

The target is a tmux pane address: session:window.pane. The pane must
already be mirrored (the daemon creates its directory on the first
cycle after the pane appears).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		t, err := model.ParseTarget(args[0])
		if err != nil {
			return err
		}

		paneDir, err := findPaneDir(cfg.Root, t)
		if err != nil {
			return err
		}

		if err := queue.Append(paneDir, args[1]); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "queued for %s: %s\n", t, args[1])
		return nil
	},
}

// findPaneDir locates the mirrored directory for a pane target. The
// window directory is found by its index prefix, since the target does
// not carry the window's name.
func findPaneDir(root string, t model.Target) (string, error) {
	sessionDir := filepath.Join(root, model.Sanitize(t.Session))
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return "", fmt.Errorf("session %q is not mirrored under %s: %w", t.Session, root, err)
	}

	prefix := fmt.Sprintf("%d-", t.Window)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		paneDir := filepath.Join(sessionDir, e.Name(), strconv.Itoa(t.Pane))
		if st, err := os.Stat(paneDir); err == nil && st.IsDir() {
			return paneDir, nil
		}
	}
	return "", fmt.Errorf("pane %s is not mirrored under %s (is the daemon running?)", t, root)
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
