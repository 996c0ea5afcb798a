package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// Outcome is the state an asset slot ended in after provisioning.
type Outcome int

const (
	OutcomeCached Outcome = iota
	OutcomeFetched
	OutcomeFetchFailed
	OutcomeVerifyFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCached:
		return "cached"
	case OutcomeFetched:
		return "fetched"
	case OutcomeFetchFailed:
		return "fetch-failed"
	case OutcomeVerifyFailed:
		return "verify-failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Present reports whether the asset file exists after this outcome.
func (o Outcome) Present() bool {
	return o == OutcomeCached || o == OutcomeFetched
}

// Result describes what happened to one asset.
type Result struct {
	Name    string
	Path    string
	Outcome Outcome
	Bytes   int64
	Digest  digest.Digest
	Err     error
}

// Report summarizes one provisioning run.
type Report struct {
	Dir      string
	Results  []Result
	Warnings []string
}

// Missing returns the names of assets absent after the run.
func (r *Report) Missing() []string {
	var names []string
	for _, res := range r.Results {
		if !res.Outcome.Present() {
			names = append(names, res.Name)
		}
	}
	return names
}

// Complete reports whether every asset is present.
func (r *Report) Complete() bool {
	return len(r.Missing()) == 0
}

// Count returns the number of results with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Progress tracks download progress of one asset.
type Progress struct {
	File          string
	FileNo        int
	TotalFiles    int
	BytesReceived int64
	TotalBytes    int64 // -1 when unknown
	Done          bool
}

// Provisioner makes sure every declared asset exists in its cache directory.
type Provisioner struct {
	dir       string
	fetcher   Fetcher
	logger    *slog.Logger
	publisher Publisher
	envKey    string
	reverify  bool
	progress  func(Progress)

	group singleflight.Group
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithFetcher sets the fetcher used for downloads.
func WithFetcher(f Fetcher) Option {
	return func(p *Provisioner) {
		p.fetcher = f
	}
}

// WithLogger sets the logger receiving progress notices and warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// WithPublisher sets where the cache directory is published after a run.
// A nil publisher disables publishing.
func WithPublisher(pub Publisher) Option {
	return func(p *Provisioner) {
		p.publisher = pub
	}
}

// WithEnvKey overrides the key the cache directory is published under.
func WithEnvKey(key string) Option {
	return func(p *Provisioner) {
		p.envKey = key
	}
}

// WithReverify re-hashes cached files that have a declared or derivable digest
// and replaces them on mismatch.
func WithReverify(enabled bool) Option {
	return func(p *Provisioner) {
		p.reverify = enabled
	}
}

// WithProgress registers a callback receiving download progress.
func WithProgress(fn func(Progress)) Option {
	return func(p *Provisioner) {
		p.progress = fn
	}
}

// New creates a provisioner for the given cache directory.
func New(dir string, opts ...Option) *Provisioner {
	p := &Provisioner{
		dir:       dir,
		publisher: EnvPublisher{},
		envKey:    EnvKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = NewHTTPFetcher()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Dir returns the cache directory.
func (p *Provisioner) Dir() string {
	return p.dir
}

// Ensure provisions every asset in m, in order. Failures are recorded in the
// report as warnings and never abort the run. The cache directory is
// published once all assets have been processed.
func (p *Provisioner) Ensure(ctx context.Context, m Manifest) *Report {
	report := &Report{Dir: p.dir}

	for i, d := range m {
		v, _, _ := p.group.Do(d.Name, func() (any, error) {
			return p.provision(ctx, d, i+1, len(m)), nil
		})
		res := v.(Result)
		report.Results = append(report.Results, res)

		if res.Err != nil {
			msg := fmt.Sprintf("failed to provision %s: %v", d.Name, res.Err)
			report.Warnings = append(report.Warnings, msg)
			p.logger.Warn("Asset not provisioned", "asset", d.Name, "outcome", res.Outcome.String(), "error", res.Err)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(p.envKey, p.dir); err != nil {
			msg := fmt.Sprintf("failed to publish %s: %v", p.envKey, err)
			report.Warnings = append(report.Warnings, msg)
			p.logger.Warn("Cache directory not published", "key", p.envKey, "error", err)
		}
	}

	return report
}

func (p *Provisioner) provision(ctx context.Context, d Descriptor, fileNo, totalFiles int) Result {
	target := filepath.Join(p.dir, d.Name)
	res := Result{Name: d.Name, Path: target}

	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		if !p.reverify || !d.Verifiable() {
			res.Outcome = OutcomeCached
			res.Bytes = info.Size()
			return res
		}
		err := d.VerifyFile(target)
		if err == nil {
			res.Outcome = OutcomeCached
			res.Bytes = info.Size()
			return res
		}
		p.logger.Warn("Cached asset failed verification, refetching", "asset", d.Name, "error", err)
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			res.Outcome = OutcomeVerifyFailed
			res.Err = err
			return res
		}
	}

	p.logger.Info("Downloading asset", "asset", d.Name, "url", d.URL, "index", fileNo, "total", totalFiles)

	tmpPath, n, got, err := p.download(ctx, d, fileNo, totalFiles)
	if err != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		return res
	}

	if err := d.Verify(got); err != nil {
		os.Remove(tmpPath)
		res.Outcome = OutcomeVerifyFailed
		res.Err = err
		return res
	}

	if err := install(tmpPath, target); err != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		return res
	}

	p.logger.Info("Asset downloaded", "asset", d.Name, "bytes", n, "digest", got.String())
	res.Outcome = OutcomeFetched
	res.Bytes = n
	res.Digest = got
	return res
}

// download fetches d into a temporary file in the cache directory and returns
// its path, size and the digest of the decoded content. The temporary file is
// removed on error.
func (p *Provisioner) download(ctx context.Context, d Descriptor, fileNo, totalFiles int) (string, int64, digest.Digest, error) {
	tmp, err := os.CreateTemp(p.dir, "."+d.Name+".*.tmp")
	if err != nil {
		return "", 0, "", fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	s := &sink{
		file:       tmp,
		hash:       newHashingWriter(tmp, d.algorithm()),
		name:       d.Name,
		fileNo:     fileNo,
		totalFiles: totalFiles,
		total:      -1,
		progress:   p.progress,
	}

	n, err := p.fetcher.Fetch(ctx, d.URL, s)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, "", err
	}
	s.done()

	if d.Encoding != EncodingZstd {
		return tmpPath, n, s.hash.Digest(), nil
	}

	decodedPath, n, got, err := p.decodeZstd(tmpPath, d)
	os.Remove(tmpPath)
	if err != nil {
		return "", 0, "", err
	}
	return decodedPath, n, got, nil
}

// decodeZstd decompresses src into a new temporary file, hashing the output.
func (p *Provisioner) decodeZstd(src string, d Descriptor) (string, int64, digest.Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, "", err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return "", 0, "", fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()

	out, err := os.CreateTemp(p.dir, "."+d.Name+".*.tmp")
	if err != nil {
		return "", 0, "", fmt.Errorf("failed to create file: %w", err)
	}
	outPath := out.Name()

	hw := newHashingWriter(out, d.algorithm())
	n, err := io.Copy(hw, dec)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return "", 0, "", fmt.Errorf("zstd: %w", err)
	}
	return outPath, n, hw.Digest(), nil
}

// install atomically moves tmpPath to target. If another process installed
// target first, its file is kept.
func install(tmpPath, target string) error {
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() {
			return nil
		}
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// sink is the download destination: a temporary file, hashed while written.
type sink struct {
	file       *os.File
	hash       *hashingWriter
	name       string
	fileNo     int
	totalFiles int
	written    int64
	total      int64
	progress   func(Progress)
}

func (s *sink) Write(b []byte) (int, error) {
	n, err := s.hash.Write(b)
	s.written += int64(n)
	s.report(false)
	return n, err
}

func (s *sink) Rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	s.hash.reset()
	s.written = 0
	return nil
}

func (s *sink) ExpectSize(n int64) {
	s.total = n
}

func (s *sink) done() {
	s.report(true)
}

func (s *sink) report(done bool) {
	if s.progress == nil {
		return
	}
	s.progress(Progress{
		File:          s.name,
		FileNo:        s.fileNo,
		TotalFiles:    s.totalFiles,
		BytesReceived: s.written,
		TotalBytes:    s.total,
		Done:          done,
	})
}
