// Package app holds process-wide identity and filesystem locations.
package app

import (
	"os"
	"path/filepath"
)

const (
	// Name is sent to XSOverlay as the client/sender identity.
	Name = "xsnotify"

	// Key identifies the app towards the VR runtime (manifest app key).
	Key = "com.xsnotify.bridge"

	configFileName = "config.json"
	dirName        = "xsnotify"
)

// DefaultEndpoint is where a stock XSOverlay install listens.
const DefaultEndpoint = "ws://127.0.0.1:42070"

// Dir returns the per-user application data directory.
// On Windows this resolves under %LOCALAPPDATA%, elsewhere under
// os.UserConfigDir (typically ~/.config).
func Dir() string {
	if root := os.Getenv("LOCALAPPDATA"); root != "" {
		return filepath.Join(root, dirName)
	}
	if root, err := os.UserConfigDir(); err == nil && root != "" {
		return filepath.Join(root, dirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+dirName)
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Dir(), configFileName)
}
