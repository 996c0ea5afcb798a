package buildcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		goos, goarch string
		msvc         bool
		platform     string
		has          []string
		lacks        []string
		link         []string
	}{
		{"linux", "amd64", false, "linux", []string{"-DUSE_PTHREADS", "-mavx2", "-Wshadow"}, []string{"/EHsc"}, []string{"-lpthread"}},
		{"windows", "amd64", true, "windows-msvc", []string{"/arch:AVX2", "/EHsc"}, []string{"-DUSE_PTHREADS"}, nil},
		{"windows", "amd64", false, "windows-mingw", []string{"-DUSE_PTHREADS", "-m64"}, []string{"/EHsc"}, []string{"-lpthread"}},
		{"darwin", "amd64", false, "darwin-amd64", []string{"-mavx2", "-mmacosx-version-min=10.15"}, []string{"-DNO_PREFETCH", "-Wall"}, []string{"-lpthread", "-mmacosx-version-min=10.15"}},
		{"darwin", "arm64", false, "darwin-arm64", []string{"-DNO_PREFETCH"}, []string{"-mavx2", "-m64"}, []string{"-lpthread", "-mmacosx-version-min=10.15"}},
		{"linux", "arm64", true, "linux", []string{"-mavx2"}, nil, []string{"-lpthread"}},
	}

	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.goarch, func(t *testing.T) {
			cfg := Resolve(tt.goos, tt.goarch, tt.msvc)
			assert.Equal(t, tt.platform, cfg.Platform)
			assert.Equal(t, tt.link, cfg.LinkArgs)
			for _, flag := range tt.has {
				assert.Contains(t, cfg.CompileArgs, flag)
			}
			for _, flag := range tt.lacks {
				assert.NotContains(t, cfg.CompileArgs, flag)
			}
			assert.Contains(t, cfg.CompileArgs, cfg.CompileArgs[0])
		})
	}
}

func TestResolveEmbeddingOff(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		cfg := Resolve(goos, "amd64", false)
		assert.Contains(t, cfg.CompileArgs, "-DNNUE_EMBEDDING_OFF", goos)
	}
	assert.Contains(t, Resolve("windows", "amd64", true).CompileArgs, "/DNNUE_EMBEDDING_OFF")
}

func TestResolveCopiesTables(t *testing.T) {
	cfg := Resolve("linux", "amd64", false)
	cfg.Sources[0] = "changed"
	cfg.CompileArgs[0] = "changed"

	again := Resolve("linux", "amd64", false)
	assert.Equal(t, "src/stockfish_nnue_bindings.cpp", again.Sources[0])
	assert.Equal(t, "-std=c++17", again.CompileArgs[0])
	assert.Len(t, again.Sources, 23)
}
