package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for agent-relay.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".agent-relay-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "agent-relay"))
}

// GetDataDir returns the user's data directory for agent-relay (database, logs).
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".agent-relay"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".agent-relay"))
}

// GetHomeDir returns the user's home directory.
//
// Returns an empty string if the home directory cannot be determined.
func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Clean(homeDir)
}
