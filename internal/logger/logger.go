// Package logger builds the slog handlers used by the command line tool.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvVar selects the environment when set.
const EnvVar = "NNUE_INTERFACE_ENV"

// Env is the runtime environment.
type Env string

const (
	Development Env = "development"
	Production  Env = "production"
)

// FromEnv reads the environment from EnvVar, defaulting to Development.
func FromEnv() Env {
	return ParseEnv(os.Getenv(EnvVar))
}

// ParseEnv maps "prod"/"production" to Production and everything else to
// Development.
func ParseEnv(s string) Env {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

type options struct {
	level     slog.Leveler
	toFile    bool
	file      string
	maxSizeMB int
	out       io.Writer
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level. Defaults to debug in development and info
// in production.
func WithLevel(l slog.Leveler) Option {
	return func(o *options) { o.level = l }
}

// WithLogToFile enables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.toFile = enabled }
}

// WithLogFile sets the file used by the rotating sink.
func WithLogFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithOutput replaces stderr as the console writer.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// New returns a logger for env. Development logs are colored text, production
// logs are JSON. With WithLogToFile the same records are also written as JSON
// to a rotated file.
func New(env Env, opts ...Option) *slog.Logger {
	o := options{
		file:      filepath.Join("logs", "nnue-interface.log"),
		maxSizeMB: 10,
		out:       os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.level == nil {
		o.level = slog.LevelDebug
		if env == Production {
			o.level = slog.LevelInfo
		}
	}

	var console slog.Handler
	if env == Production {
		console = slog.NewJSONHandler(o.out, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.out, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	}

	if !o.toFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.file,
		MaxSize:    o.maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}),
	})
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
