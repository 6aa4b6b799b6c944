// Package config loads and validates the parser's settings.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// appDir is the directory name used under the user's config root.
const appDir = "stmt"

// ExpandPath resolves a leading ~ to the home directory and then expands
// $VAR references. A path whose home lookup fails is returned with only its
// variables expanded.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// ConfigDir is where config.yaml and the default database live:
// $XDG_CONFIG_HOME/stmt when set, otherwise ~/.config/stmt.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appDir)
	}
	return ExpandPath(filepath.Join("~", ".config", appDir))
}

// DefaultDatabasePath is the database location used when none is configured.
func DefaultDatabasePath() string {
	return filepath.Join(ConfigDir(), "stmt.db")
}
