package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-mirror/internal/lock"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the environment can run the daemon",
	Long: `Check the pieces the daemon needs: the tmux binary, a reachable tmux
server, a writable mirror root, and the single-instance lock.

Exits non-zero if any check fails. A held lock is reported but is not a
failure — it means the daemon is already running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		allOK := true
		report := func(good bool, name, detail string) {
			verdict := "ok"
			if !good {
				verdict = "FAIL"
				allOK = false
			}
			fmt.Printf("%-4s %-8s %s\n", verdict, name, detail)
		}

		// Multiplexer binary
		muxName := cfg.Mux
		if muxName == "" {
			muxName = "tmux"
		}
		if path, err := exec.LookPath(muxName); err != nil {
			report(false, muxName, "not found in PATH")
		} else {
			report(true, muxName, path)
		}

		// Server reachable
		if m, err := getMultiplexer(cfg); err != nil {
			report(false, "server", err.Error())
		} else if sessions, err := m.DiscoverSessions(cmd.Context()); err != nil {
			report(false, "server", fmt.Sprintf("cannot list sessions: %v", err))
		} else {
			windows := 0
			for _, s := range sessions {
				windows += len(s.Windows)
			}
			report(true, "server", fmt.Sprintf("%d sessions, %d windows", len(sessions), windows))
		}

		// Mirror root writable
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			report(false, "root", fmt.Sprintf("cannot create %s: %v", cfg.Root, err))
		} else if f, err := os.CreateTemp(cfg.Root, ".check-*"); err != nil {
			report(false, "root", fmt.Sprintf("%s is not writable: %v", cfg.Root, err))
		} else {
			f.Close()
			os.Remove(f.Name())
			report(true, "root", cfg.Root)
		}

		// Single-instance lock
		lockPath := filepath.Join(cfg.Root, lock.FileName)
		if lk, err := lock.Acquire(lockPath); err != nil {
			if pid := lock.HolderPID(lockPath); pid > 0 {
				report(true, "lock", fmt.Sprintf("held by pid %d (daemon running)", pid))
			} else {
				report(false, "lock", err.Error())
			}
		} else {
			lk.Release()
			report(true, "lock", "free (no daemon running)")
		}

		if !allOK {
			return fmt.Errorf("environment check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
