// Package config loads the YAML configuration of the command line tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/hailam/nnue-interface/internal/assets"
)

// Config is the file configuration. Zero values mean "use the default".
type Config struct {
	CacheDir string       `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	Reverify bool         `json:"reverify,omitempty"  yaml:"reverify,omitempty"`
	Fetch    FetchConfig  `json:"fetch"               yaml:"fetch"`
	Assets   []AssetEntry `json:"assets"              yaml:"assets"`
	Store    StoreConfig  `json:"store"               yaml:"store"`
}

// FetchConfig controls the HTTP fetcher.
type FetchConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Retries int           `json:"retries" yaml:"retries"`
}

// AssetEntry is one manifest entry.
type AssetEntry struct {
	Name     string `json:"name"               yaml:"name"`
	URL      string `json:"url"                yaml:"url"`
	Digest   string `json:"digest,omitempty"   yaml:"digest,omitempty"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Role     string `json:"role,omitempty"     yaml:"role,omitempty"`
}

// StoreConfig controls the evaluation store.
type StoreConfig struct {
	Enabled bool   `json:"enabled"       yaml:"enabled"`
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		Fetch: FetchConfig{
			Timeout: assets.DefaultTimeout,
			Retries: assets.DefaultMaxRetries,
		},
	}
	for _, d := range assets.DefaultManifest() {
		cfg.Assets = append(cfg.Assets, AssetEntry{
			Name:     d.Name,
			URL:      d.URL,
			Digest:   d.Digest.String(),
			Encoding: string(d.Encoding),
			Role:     string(d.Role),
		})
	}
	return cfg
}

// Manifest converts the asset entries and validates the result.
func (c *Config) Manifest() (assets.Manifest, error) {
	m := make(assets.Manifest, 0, len(c.Assets))
	for _, a := range c.Assets {
		d := assets.Descriptor{
			Name: a.Name,
			URL:  a.URL,
			Role: assets.Role(a.Role),
		}
		if a.Encoding != "identity" {
			d.Encoding = assets.Encoding(a.Encoding)
		}
		if a.Digest != "" {
			dg, err := digest.Parse(a.Digest)
			if err != nil {
				return nil, fmt.Errorf("config: asset %q: %w", a.Name, err)
			}
			d.Digest = dg
		}
		m = append(m, d)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return m, nil
}

// Fetcher returns an HTTP fetcher configured from c.
func (c *Config) Fetcher() *assets.HTTPFetcher {
	f := assets.NewHTTPFetcher()
	if c.Fetch.Timeout > 0 {
		f.Client.Timeout = c.Fetch.Timeout
	}
	f.MaxRetries = uint64(max(c.Fetch.Retries, 0))
	return f
}

// DefaultPath returns the default location of the config file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "nnue-interface", "config.yaml")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "nnue-interface", "config.yaml")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "nnue-interface", "config.yaml")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "nnue-interface", "config.yaml")
		}
		return filepath.Join(home, ".config", "nnue-interface", "config.yaml")
	}
}
