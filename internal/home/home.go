// Package home manages the sfp daemon's home directory layout.
//
// The home directory owns all persistent local state: the per-appid
// AppConfig store database. Bit and registry state never live here — that
// state lives entirely in the remote bitmap/registry store (see svcconfig,
// bitmap, filterinfo).
//
// Layout:
//
//	<root>/
//	  config.db     (AppConfig store, sqlite-backed)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents an sfp home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/sfp
//   - macOS:   ~/Library/Application Support/sfp
//   - Windows: %APPDATA%/sfp
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "sfp")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the AppConfig store database.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.db")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
