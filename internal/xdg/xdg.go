// Package xdg provides helpers to resolve XDG Base Directory paths for datasender.
// The config directory is only a fallback location for the configuration
// document; scheduled runs normally keep config.xml next to the binary.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "datasender"

// ConfigDir returns the XDG config directory for datasender without creating it.
// It falls back to ~/.config/datasender when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}
