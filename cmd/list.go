package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered sessions, windows, and panes as JSON",
	Long: `Discover the full session topology from the multiplexer and print it
as nested JSON: sessions, their windows (with stable IDs), and each
window's panes.

This is the same discovery the daemon performs at the start of every
cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		m, err := getMultiplexer(cfg)
		if err != nil {
			return err
		}

		sessions, err := m.DiscoverSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("discovering sessions: %w", err)
		}

		type windowListing struct {
			model.Window
			Panes []model.Pane `json:"panes"`
		}
		type sessionListing struct {
			Name    string          `json:"name"`
			Windows []windowListing `json:"windows"`
		}

		out := make([]sessionListing, 0, len(sessions))
		for _, s := range sessions {
			sl := sessionListing{Name: s.Name, Windows: []windowListing{}}
			for _, w := range s.Windows {
				panes, err := m.ListPanes(cmd.Context(), w.ID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "warning: listing panes of %s:%d: %v\n", s.Name, w.Index, err)
					continue
				}
				sl.Windows = append(sl.Windows, windowListing{Window: w, Panes: panes})
			}
			out = append(out, sl)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
