package config

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides DefaultDataDir.
const DataDirEnv = "FLODQ_DATA_DIR"

// DefaultDataDir picks where the local backend keeps its Pebble store when
// no data_dir is configured. Order: FLODQ_DATA_DIR, XDG_DATA_HOME, a
// writable /var/lib, the platform application directory, ~/.flodq.
// Without a home directory it is ./data.
func DefaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flodq")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if writableDir("/var/lib") {
		return "/var/lib/flodq"
	}
	for _, app := range [][]string{
		{"Library", "Application Support"},
		{"AppData", "Local"},
	} {
		base := filepath.Join(append([]string{home}, app...)...)
		if isDir(base) {
			return filepath.Join(base, "flodq")
		}
	}
	return filepath.Join(home, ".flodq")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writableDir reports whether a file can be created in path.
func writableDir(path string) bool {
	if !isDir(path) {
		return false
	}
	f, err := os.CreateTemp(path, ".flodq-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
