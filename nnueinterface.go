// Package nnueinterface provisions the Stockfish NNUE networks into a local
// cache and exposes the evaluator loaded from it.
//
// Open resolves the cache directory, downloads any missing network, publishes
// the directory under NNUE_DIR and loads the engine from it:
//
//	nn, err := nnueinterface.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer nn.Close()
//
//	score, err := nn.Evaluate("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
package nnueinterface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hailam/nnue-interface/internal/assets"
	"github.com/hailam/nnue-interface/internal/engine"
	"github.com/hailam/nnue-interface/internal/storage"
)

// EnvKey is the environment key carrying the cache directory.
const EnvKey = assets.EnvKey

var (
	// ErrEngineUnavailable wraps every failure to load the engine.
	ErrEngineUnavailable = errors.New("nnue engine unavailable")

	// ErrCacheNotWritable is returned when no usable cache directory exists.
	ErrCacheNotWritable = storage.ErrCacheNotWritable

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("nnue interface closed")
)

// Activations is the network state for one position.
type Activations = engine.Activations

// NetworkInfo describes the network architecture and loaded files.
type NetworkInfo = engine.Info

// DefaultManifest returns the networks Open provisions by default.
func DefaultManifest() Manifest {
	return assets.DefaultManifest()
}

// Interface is a provisioned and loaded evaluator.
type Interface struct {
	dir    string
	report *Report
	logger *slog.Logger

	mu     sync.RWMutex
	engine *engine.Engine
	store  *storage.Store
	closed bool
}

// Open provisions the networks and loads the engine. Failed downloads are
// warnings in the report; only an unusable cache directory or an engine that
// cannot load is returned as an error.
func Open(ctx context.Context, opts ...Option) (*Interface, error) {
	o := options{
		logger:   slog.Default(),
		manifest: assets.DefaultManifest(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	big, okBig := o.manifest.ByRole(assets.RoleBig)
	small, okSmall := o.manifest.ByRole(assets.RoleSmall)
	if !okBig || !okSmall {
		return nil, fmt.Errorf("%w: manifest needs a big and a small network", ErrEngineUnavailable)
	}

	loc := &storage.Locator{
		Override:   o.cacheDir,
		InstallDir: o.installDir,
		Marker:     big.Name,
	}
	dir, err := loc.Resolve()
	if err != nil {
		return nil, err
	}

	popts := []assets.Option{
		assets.WithLogger(o.logger),
		assets.WithReverify(o.reverify),
	}
	if o.fetcher != nil {
		popts = append(popts, assets.WithFetcher(o.fetcher))
	}
	if o.publisher != nil || o.noPublish {
		popts = append(popts, assets.WithPublisher(o.publisher))
	}
	if o.envKey != "" {
		popts = append(popts, assets.WithEnvKey(o.envKey))
	}
	if o.progress != nil {
		popts = append(popts, assets.WithProgress(o.progress))
	}

	report := assets.New(dir, popts...).Ensure(ctx, o.manifest)

	eng, err := engine.Open(dir, big.Name, small.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	nn := &Interface{
		dir:    dir,
		report: report,
		logger: o.logger,
		engine: eng,
	}

	if o.useStore {
		store, err := storage.OpenStore(o.storeDir)
		if err != nil {
			// The store only caches results.
			o.logger.Warn("Evaluation store unavailable", "error", err)
		} else {
			nn.store = store
		}
	}

	return nn, nil
}

// CacheDir returns the directory the networks were loaded from.
func (nn *Interface) CacheDir() string {
	return nn.dir
}

// Report returns the provisioning report produced by Open.
func (nn *Interface) Report() *Report {
	return nn.report
}

// Evaluate returns the evaluation of fen in pawns, from the side to move.
func (nn *Interface) Evaluate(fen string) (float32, error) {
	nn.mu.RLock()
	defer nn.mu.RUnlock()
	if nn.closed {
		return 0, ErrClosed
	}

	key := nn.engine.Key()
	if nn.store != nil {
		if ev, ok, err := nn.store.LoadEvaluation(key, fen); err == nil && ok {
			return ev.Score, nil
		}
	}

	score, err := nn.engine.Evaluate(fen)
	if err != nil {
		return 0, err
	}

	if nn.store != nil {
		if err := nn.store.SaveEvaluation(key, fen, score); err != nil {
			nn.logger.Warn("Failed to store evaluation", "error", err)
		}
	}
	return score, nil
}

// ActivationsAndEval returns the accumulator state and evaluation of fen.
func (nn *Interface) ActivationsAndEval(fen string) (*Activations, error) {
	nn.mu.RLock()
	defer nn.mu.RUnlock()
	if nn.closed {
		return nil, ErrClosed
	}
	return nn.engine.ActivationsAndEval(fen)
}

// NetworkInfo returns the network dimensions and loaded files.
func (nn *Interface) NetworkInfo() NetworkInfo {
	return nn.engine.NetworkInfo()
}

// Close releases the evaluation store. The engine holds no external
// resources.
func (nn *Interface) Close() error {
	nn.mu.Lock()
	defer nn.mu.Unlock()
	if nn.closed {
		return nil
	}
	nn.closed = true
	if nn.store != nil {
		return nn.store.Close()
	}
	return nil
}
