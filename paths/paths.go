package paths

import (
	"os"
	"path/filepath"
)

// Home returns DRIFTWATCH_HOME or the ~/.driftwatch default
func Home() string {
	home := os.Getenv("DRIFTWATCH_HOME")
	if home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ".driftwatch"
		}
		return filepath.Join(homeDir, ".driftwatch")
	}
	return ExpandPath(home)
}

// DBPath returns $DRIFTWATCH_HOME/state.db
func DBPath() string {
	return filepath.Join(Home(), "state.db")
}

// ConfigPath returns $DRIFTWATCH_HOME/config.json
func ConfigPath() string {
	return filepath.Join(Home(), "config.json")
}

// LockPath returns $DRIFTWATCH_HOME/daemon.lock
func LockPath() string {
	return filepath.Join(Home(), "daemon.lock")
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			if len(path) == 1 {
				return homeDir
			}
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}
