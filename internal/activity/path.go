package activity

import (
	"fmt"
	"os"
	"path/filepath"
)

func DefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "pane-mirror", "activity.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("pane-mirror-%d", os.Getuid()), "activity.sock")
}
