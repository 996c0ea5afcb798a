// Package buildcfg holds the per-platform compile configuration used when the
// wrapper is built against the Stockfish C++ sources.
package buildcfg

// Sources are the Stockfish translation units compiled into the wrapper.
var Sources = []string{
	"src/stockfish_nnue_bindings.cpp",
	"src/benchmark.cpp",
	"src/bitboard.cpp",
	"src/evaluate.cpp",
	"src/memory.cpp",
	"src/misc.cpp",
	"src/movegen.cpp",
	"src/movepick.cpp",
	"src/position.cpp",
	"src/search.cpp",
	"src/thread.cpp",
	"src/timeman.cpp",
	"src/tt.cpp",
	"src/uci.cpp",
	"src/ucioption.cpp",
	"src/tune.cpp",
	"src/syzygy/tbprobe.cpp",
	"src/nnue/nnue_accumulator.cpp",
	"src/nnue/nnue_misc.cpp",
	"src/nnue/features/half_ka_v2_hm.cpp",
	"src/nnue/network.cpp",
	"src/engine.cpp",
	"src/score.cpp",
}

// IncludeDirs are passed to the compiler as include paths.
var IncludeDirs = []string{"src", "src/nnue"}

// Config is the resolved compile configuration for one platform.
type Config struct {
	Platform    string   `json:"platform"`
	Sources     []string `json:"sources"`
	IncludeDirs []string `json:"include_dirs"`
	CompileArgs []string `json:"compile_args"`
	LinkArgs    []string `json:"link_args"`
}

// x86 SIMD flags shared by the GCC-style toolchains
var gccSIMD = []string{
	"-DUSE_AVX2", "-mavx2", "-mbmi",
	"-DUSE_SSE41", "-msse4.1",
	"-DUSE_SSSE3", "-mssse3",
	"-DUSE_SSE2", "-msse2",
	"-DUSE_POPCNT", "-msse3", "-mpopcnt", "-msse",
	"-m64",
}

var gccWarnings = []string{
	"-funroll-loops",
	"-Wall", "-Wcast-qual", "-fexceptions", "-pedantic",
	"-Wextra", "-Wshadow", "-Wmissing-declarations",
}

// NNUE_EMBEDDING_OFF keeps the networks out of the binary; they are provisioned
// into the cache directory instead.
var gccBase = []string{
	"-std=c++17", "-O3", "-DNDEBUG", "-DIS_64BIT", "-DNNUE_EMBEDDING_OFF", "-DUSE_PTHREADS",
}

var msvcArgs = []string{
	"/std:c++17", "/O2", "/DNDEBUG", "/DIS_64BIT", "/DNNUE_EMBEDDING_OFF",
	"/DUSE_AVX2", "/arch:AVX2",
	"/DUSE_SSE41", "/DUSE_SSSE3", "/DUSE_SSE2", "/DUSE_POPCNT",
	"/EHsc",
}

const macMinVersion = "-mmacosx-version-min=10.15"

// Resolve returns the configuration for goos/goarch. msvc selects the MSVC
// toolchain on windows; it is ignored elsewhere. MSVC builds use native
// threading, so USE_PTHREADS is only set for GCC-style toolchains.
func Resolve(goos, goarch string, msvc bool) Config {
	cfg := Config{
		Sources:     append([]string(nil), Sources...),
		IncludeDirs: append([]string(nil), IncludeDirs...),
	}

	switch {
	case goos == "windows" && msvc:
		cfg.Platform = "windows-msvc"
		cfg.CompileArgs = concat(msvcArgs)

	case goos == "windows":
		cfg.Platform = "windows-mingw"
		cfg.CompileArgs = concat(gccBase, gccSIMD, gccWarnings)
		cfg.LinkArgs = []string{"-lpthread"}

	case goos == "darwin":
		cfg.CompileArgs = concat(gccBase, []string{"-funroll-loops", macMinVersion})
		if goarch == "arm64" {
			cfg.Platform = "darwin-arm64"
			// x86 intrinsics headers are unavailable on Apple Silicon
			cfg.CompileArgs = append(cfg.CompileArgs, "-DNO_PREFETCH")
		} else {
			cfg.Platform = "darwin-amd64"
			cfg.CompileArgs = append(cfg.CompileArgs, gccSIMD...)
		}
		cfg.LinkArgs = []string{"-lpthread", macMinVersion}

	default:
		cfg.Platform = "linux"
		cfg.CompileArgs = concat(gccBase, gccSIMD, gccWarnings)
		cfg.LinkArgs = []string{"-lpthread"}
	}

	return cfg
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
