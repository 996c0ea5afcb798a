// Command nnue-interface provisions the NNUE networks and evaluates positions
// with them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	nnueinterface "github.com/hailam/nnue-interface"
	"github.com/hailam/nnue-interface/internal/assets"
	"github.com/hailam/nnue-interface/internal/buildcfg"
	"github.com/hailam/nnue-interface/internal/config"
	"github.com/hailam/nnue-interface/internal/logger"
	"github.com/hailam/nnue-interface/internal/storage"
)

var (
	flagConfig     = flag.String("config", config.DefaultPath(), "path to config file")
	flagCacheDir   = flag.String("cache-dir", "", "use this cache directory instead of resolving one")
	flagLogFile    = flag.String("log-file", "", "also write JSON logs to this file")
	flagCPUProfile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: nnue-interface [flags] <command> [args]

Commands:
  locate             print the cache directory
  provision          download missing networks
  eval <fen>         print the evaluation in pawns
  activations <fen>  print accumulator state as JSON
  info               print network metadata as JSON
  watch              re-provision whenever the config file changes
  buildflags         print the native build configuration

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	opts := []logger.Option{}
	if *flagLogFile != "" {
		opts = append(opts, logger.WithLogToFile(true), logger.WithLogFile(*flagLogFile))
	}
	slog.SetDefault(logger.New(logger.FromEnv(), opts...))

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *flagCPUProfile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			slog.Error("Could not create CPU profile", "error", err)
			os.Exit(1)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			slog.Error("Could not start CPU profile", "error", err)
			os.Exit(1)
		}
		defer func() {
			pprof.StopCPUProfile()
			f.Close()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		if !errors.Is(err, errIncomplete) {
			slog.Error("Command failed", "error", err)
		}
		stop()
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

// errIncomplete reports that provisioning left assets absent.
var errIncomplete = errors.New("provisioning incomplete")

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]

	if cmd == "buildflags" {
		return runBuildFlags(args)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return err
	}
	if *flagCacheDir != "" {
		cfg.CacheDir = *flagCacheDir
	}

	switch cmd {
	case "locate":
		dir, err := resolveDir(cfg)
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil

	case "provision":
		return runProvision(ctx, cfg)

	case "eval":
		fen, err := fenArg(args)
		if err != nil {
			return err
		}
		return withInterface(ctx, cfg, func(nn *nnueinterface.Interface) error {
			score, err := nn.Evaluate(fen)
			if err != nil {
				return err
			}
			fmt.Printf("%+.2f\n", score)
			return nil
		})

	case "activations":
		fen, err := fenArg(args)
		if err != nil {
			return err
		}
		return withInterface(ctx, cfg, func(nn *nnueinterface.Interface) error {
			act, err := nn.ActivationsAndEval(fen)
			if err != nil {
				return err
			}
			return printJSON(act)
		})

	case "info":
		return withInterface(ctx, cfg, func(nn *nnueinterface.Interface) error {
			return printJSON(nn.NetworkInfo())
		})

	case "watch":
		return runWatch(ctx)

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func resolveDir(cfg *config.Config) (string, error) {
	m, err := cfg.Manifest()
	if err != nil {
		return "", err
	}
	loc := &storage.Locator{Override: cfg.CacheDir}
	if big, ok := m.ByRole(assets.RoleBig); ok {
		loc.Marker = big.Name
	}
	return loc.Resolve()
}

func provision(ctx context.Context, cfg *config.Config) (*assets.Report, error) {
	m, err := cfg.Manifest()
	if err != nil {
		return nil, err
	}
	dir, err := resolveDir(cfg)
	if err != nil {
		return nil, err
	}

	p := assets.New(dir,
		assets.WithFetcher(cfg.Fetcher()),
		assets.WithReverify(cfg.Reverify),
		assets.WithProgress(printProgress),
	)
	return p.Ensure(ctx, m), nil
}

func runProvision(ctx context.Context, cfg *config.Config) error {
	report, err := provision(ctx, cfg)
	if err != nil {
		return err
	}
	printReport(report)
	if !report.Complete() {
		return errIncomplete
	}
	return nil
}

func runWatch(ctx context.Context) error {
	reprovision := func(cfg *config.Config) {
		if *flagCacheDir != "" {
			cfg.CacheDir = *flagCacheDir
		}
		report, err := provision(ctx, cfg)
		if err != nil {
			slog.Error("Provisioning failed", "error", err)
			return
		}
		printReport(report)
	}

	watcher, err := config.NewWatcher(*flagConfig, slog.Default(), func(cfg *config.Config, err error) {
		if err != nil {
			return
		}
		reprovision(cfg)
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	reprovision(watcher.Snapshot())
	slog.Info("Watching config", "path", *flagConfig)

	<-ctx.Done()
	return nil
}

func withInterface(ctx context.Context, cfg *config.Config, fn func(*nnueinterface.Interface) error) error {
	m, err := cfg.Manifest()
	if err != nil {
		return err
	}

	opts := []nnueinterface.Option{
		nnueinterface.WithManifest(m),
		nnueinterface.WithCacheDir(cfg.CacheDir),
		nnueinterface.WithFetcher(cfg.Fetcher()),
		nnueinterface.WithReverify(cfg.Reverify),
		nnueinterface.WithProgress(printProgress),
	}
	if cfg.Store.Enabled {
		opts = append(opts, nnueinterface.WithEvaluationStore(cfg.Store.Dir))
	}

	nn, err := nnueinterface.Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer nn.Close()

	return fn(nn)
}

func runBuildFlags(args []string) error {
	fs := flag.NewFlagSet("buildflags", flag.ContinueOnError)
	goos := fs.String("goos", runtime.GOOS, "target operating system")
	goarch := fs.String("goarch", runtime.GOARCH, "target architecture")
	msvc := fs.Bool("msvc", false, "use the MSVC toolchain (windows only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSON(buildcfg.Resolve(*goos, *goarch, *msvc))
}

func fenArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("missing FEN argument")
	}
	// Accept the FEN either quoted or as separate fields
	return strings.Join(args, " "), nil
}

func printReport(r *assets.Report) {
	fmt.Printf("Cache directory: %s\n", r.Dir)
	for _, res := range r.Results {
		fmt.Printf("  %-24s %s\n", res.Name, res.Outcome)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

func printProgress(p assets.Progress) {
	if p.TotalBytes > 0 {
		pct := float64(p.BytesReceived) / float64(p.TotalBytes) * 100
		fmt.Fprintf(os.Stderr, "\r[%d/%d] %s %5.1f%%", p.FileNo, p.TotalFiles, p.File, pct)
	} else {
		fmt.Fprintf(os.Stderr, "\r[%d/%d] %s %d bytes", p.FileNo, p.TotalFiles, p.File, p.BytesReceived)
	}
	if p.Done {
		fmt.Fprintln(os.Stderr)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
