package nnueinterface

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/nnue-interface/internal/assets"
	"github.com/hailam/nnue-interface/internal/engine"
	"github.com/hailam/nnue-interface/internal/logger"
)

var errOffline = errors.New("network unreachable")

// offlineFetcher fails every request.
type offlineFetcher struct{ calls int }

func (f *offlineFetcher) Fetch(context.Context, string, io.Writer) (int64, error) {
	f.calls++
	return 0, errOffline
}

// staticFetcher serves the same bytes for every URL.
type staticFetcher struct{ data []byte }

func (f staticFetcher) Fetch(_ context.Context, _ string, w io.Writer) (int64, error) {
	n, err := w.Write(f.data)
	return int64(n), err
}

func quiet() Option {
	return WithLogger(logger.New(logger.Development, logger.WithOutput(io.Discard)))
}

func TestOpenEngineUnavailable(t *testing.T) {
	dir := t.TempDir()
	pub := &assets.MapPublisher{}
	fetcher := &offlineFetcher{}

	_, err := Open(context.Background(),
		quiet(),
		WithCacheDir(dir),
		WithInstallDir(t.TempDir()),
		WithFetcher(fetcher),
		WithPublisher(pub),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, engine.ErrNetworkMissing)
	assert.Equal(t, 2, fetcher.calls)

	// The directory is published even though every download failed.
	got, ok := pub.Get(EnvKey)
	require.True(t, ok)
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, got)
}

func TestOpenCustomEnvKey(t *testing.T) {
	dir := t.TempDir()
	pub := &assets.MapPublisher{}

	_, err := Open(context.Background(),
		quiet(),
		WithCacheDir(dir),
		WithFetcher(&offlineFetcher{}),
		WithPublisher(pub),
		WithEnvKey("STOCKFISH_NNUE_DIR"),
	)
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	got, ok := pub.Get("STOCKFISH_NNUE_DIR")
	require.True(t, ok)
	assert.Equal(t, dir, got)
	_, ok = pub.Get(EnvKey)
	assert.False(t, ok)
}

func TestOpenCorruptNetworks(t *testing.T) {
	m := Manifest{
		{Name: "big.nnue", URL: "https://example.com/big", Role: assets.RoleBig},
		{Name: "small.nnue", URL: "https://example.com/small", Role: assets.RoleSmall},
	}

	dir := t.TempDir()
	_, err := Open(context.Background(),
		quiet(),
		WithCacheDir(dir),
		WithInstallDir(t.TempDir()),
		WithManifest(m),
		WithFetcher(staticFetcher{data: []byte("not a network")}),
		WithPublisher(nil),
	)
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	// The downloads themselves succeeded.
	_, err = os.Stat(filepath.Join(dir, "big.nnue"))
	assert.NoError(t, err)
}

func TestOpenCacheNotWritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	fetcher := &offlineFetcher{}
	_, err := Open(context.Background(),
		quiet(),
		WithCacheDir(filepath.Join(file, "cache")),
		WithFetcher(fetcher),
		WithPublisher(nil),
	)
	assert.ErrorIs(t, err, ErrCacheNotWritable)
	assert.NotErrorIs(t, err, ErrEngineUnavailable)
	assert.Zero(t, fetcher.calls)
}

func TestOpenManifestRoles(t *testing.T) {
	m := Manifest{{Name: "only.nnue", URL: "u", Role: assets.RoleBig}}
	_, err := Open(context.Background(), quiet(), WithManifest(m), WithCacheDir(t.TempDir()))
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = Open(context.Background(), quiet(), WithManifest(Manifest{{Name: "", URL: "u"}}))
	assert.ErrorIs(t, err, assets.ErrEmptyName)
}

// TestOpenWithNetworks runs against real networks when NNUE_TEST_DIR points at
// a directory holding them.
func TestOpenWithNetworks(t *testing.T) {
	dir := os.Getenv("NNUE_TEST_DIR")
	if dir == "" {
		t.Skip("NNUE_TEST_DIR not set")
	}

	fetcher := &offlineFetcher{}
	nn, err := Open(context.Background(),
		quiet(),
		WithCacheDir(dir),
		WithFetcher(fetcher),
		WithPublisher(nil),
		WithEvaluationStore(t.TempDir()),
	)
	require.NoError(t, err)
	defer nn.Close()

	assert.Zero(t, fetcher.calls)
	assert.True(t, nn.Report().Complete())
	assert.Equal(t, 2, nn.Report().Count(assets.OutcomeCached))

	const fen = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	first, err := nn.Evaluate(fen)
	require.NoError(t, err)
	again, err := nn.Evaluate(fen)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	act, err := nn.ActivationsAndEval(fen)
	require.NoError(t, err)
	assert.Equal(t, first, act.Eval)

	info := nn.NetworkInfo()
	assert.Equal(t, assets.BigNetName, info.Big.File)

	require.NoError(t, nn.Close())
	_, err = nn.Evaluate(fen)
	assert.ErrorIs(t, err, ErrClosed)
}
