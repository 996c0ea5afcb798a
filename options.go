package nnueinterface

import (
	"log/slog"

	"github.com/hailam/nnue-interface/internal/assets"
)

// Re-exported provisioning types.
type (
	Descriptor = assets.Descriptor
	Manifest   = assets.Manifest
	Fetcher    = assets.Fetcher
	Publisher  = assets.Publisher
	Progress   = assets.Progress
	Report     = assets.Report
)

type options struct {
	logger     *slog.Logger
	cacheDir   string
	installDir string
	manifest   Manifest
	fetcher    Fetcher
	publisher  Publisher
	noPublish  bool
	envKey     string
	reverify   bool
	progress   func(Progress)
	storeDir   string
	useStore   bool
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCacheDir uses dir instead of resolving the cache directory.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithInstallDir sets the directory checked for an in-tree network before
// the user cache root. Defaults to the executable's directory.
func WithInstallDir(dir string) Option {
	return func(o *options) { o.installDir = dir }
}

// WithManifest replaces the default network manifest. It must hold one asset
// with the big role and one with the small role.
func WithManifest(m Manifest) Option {
	return func(o *options) { o.manifest = m }
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the environment publisher. A nil publisher disables
// publishing.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
		o.noPublish = p == nil
	}
}

// WithEnvKey publishes the cache directory under key instead of EnvKey.
func WithEnvKey(key string) Option {
	return func(o *options) { o.envKey = key }
}

// WithReverify re-hashes cached files that declare a digest.
func WithReverify(enabled bool) Option {
	return func(o *options) { o.reverify = enabled }
}

// WithProgress receives download progress.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// WithEvaluationStore caches evaluations in a badger database under dir.
// An empty dir selects the default data directory.
func WithEvaluationStore(dir string) Option {
	return func(o *options) {
		o.useStore = true
		o.storeDir = dir
	}
}
