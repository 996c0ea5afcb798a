// Package storage locates the on-disk directories used by nnue-interface and
// persists evaluation results between runs.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName = "nnue-interface"

	// CacheSubdir is the engine-scoped directory appended to the user cache root.
	CacheSubdir = "stockfish_nnue"

	// DefaultMarker is the file whose presence next to the executable selects
	// development mode.
	DefaultMarker = "nn-c288c895ea92.nnue"
)

// ErrCacheNotWritable is returned when the resolved cache directory cannot be
// written to. No asset can be provisioned without it.
var ErrCacheNotWritable = errors.New("cache directory is not writable")

// Locator resolves the directory holding network files.
// Zero-valued fields fall back to the process environment.
type Locator struct {
	// Override, when set, is used as-is and skips every other rule.
	Override string

	// InstallDir is checked for Marker before the user cache root.
	// Defaults to the directory of the running executable.
	InstallDir string
	Marker     string

	// Subdir is appended to the platform cache root. Defaults to CacheSubdir.
	Subdir string

	GOOS    string
	Getenv  func(string) string
	HomeDir func() (string, error)
}

// Resolve returns the cache directory, creating it if necessary.
//   - development: <InstallDir> when <InstallDir>/<Marker> exists and the
//     directory is writable
//   - Windows: %LOCALAPPDATA%/stockfish_nnue/
//   - macOS: ~/Library/Caches/stockfish_nnue/
//   - Linux: $XDG_CACHE_HOME/stockfish_nnue/ or ~/.cache/stockfish_nnue/
func (l *Locator) Resolve() (string, error) {
	if l.Override != "" {
		dir, err := filepath.Abs(l.Override)
		if err != nil {
			return "", err
		}
		return ensureWritableDir(dir)
	}

	// A read-only checkout falls through to the user cache root.
	if dir := l.devDir(); dir != "" {
		if _, err := ensureWritableDir(dir); err == nil {
			return dir, nil
		}
	}

	root, err := l.cacheRoot()
	if err != nil {
		return "", fmt.Errorf("resolving cache root: %w", err)
	}

	subdir := l.Subdir
	if subdir == "" {
		subdir = CacheSubdir
	}
	dir, err := filepath.Abs(filepath.Join(root, subdir))
	if err != nil {
		return "", err
	}
	return ensureWritableDir(dir)
}

// devDir returns InstallDir if it carries the development marker.
func (l *Locator) devDir() string {
	dir := l.InstallDir
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return ""
		}
		dir = filepath.Dir(exe)
	}

	marker := l.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	info, err := os.Stat(filepath.Join(dir, marker))
	if err != nil || info.IsDir() {
		return ""
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	return abs
}

func (l *Locator) cacheRoot() (string, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	home := l.HomeDir
	if home == nil {
		home = os.UserHomeDir
	}
	goos := l.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch goos {
	case "windows":
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		homeDir, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "AppData", "Local"), nil

	case "darwin":
		homeDir, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "Library", "Caches"), nil

	default:
		if dir := getenv("XDG_CACHE_HOME"); dir != "" {
			return dir, nil
		}
		homeDir, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, ".cache"), nil
	}
}

// ensureWritableDir creates dir and checks that files can be created in it.
// MkdirAll succeeds when another process created the directory first.
func ensureWritableDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCacheNotWritable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCacheNotWritable, dir, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())

	return dir, nil
}

// DataDir returns the platform-specific data directory for the application.
// - macOS: ~/Library/Application Support/nnue-interface/
// - Linux: ~/.local/share/nnue-interface/
// - Windows: %APPDATA%/nnue-interface/
func DataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// StoreDir returns the directory for the BadgerDB evaluation store.
func StoreDir() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}

	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}
	return dbDir, nil
}
