package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture <target>",
	Short: "Capture the content of a pane",
	Long: `Capture a pane's content, including scrollback, and print it to
stdout.

The target is a tmux pane address: session:window.pane (e.g.
"work:0.0") or a stable pane ID like "%5". Use --scrollback to control
how much history is included above the visible area.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		m, err := getMultiplexer(cfg)
		if err != nil {
			return err
		}

		content, err := m.Capture(cmd.Context(), target, cfg.Scrollback)
		if err != nil {
			return fmt.Errorf("capturing pane %q: %w", target, err)
		}

		fmt.Fprint(os.Stdout, content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
}
