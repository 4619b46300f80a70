package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	databaseName = "screenmon.db"
	pidFileName  = "monitor.pid"
)

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return expandHome(path, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// ResolveDataDir expands and creates the data directory with owner-only permissions.
func ResolveDataDir(dataDir string) (string, error) {
	dir := ExpandHome(dataDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// DatabasePath returns the sqlite database location inside dataDir.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, databaseName)
}

// PIDFilePath returns the monitor lock location inside dataDir.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}
