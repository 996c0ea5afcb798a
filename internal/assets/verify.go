package assets

import (
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrDigestMismatch is returned when asset content does not match its digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Stockfish names networks after the first 12 hex digits of their SHA-256.
var stockfishNetName = regexp.MustCompile(`^nn-([0-9a-f]{12})\.nnue$`)

// algorithm returns the hash algorithm used for d.
func (d Descriptor) algorithm() digest.Algorithm {
	if d.Digest != "" {
		return d.Digest.Algorithm()
	}
	return digest.Canonical
}

// Verifiable reports whether content of d is checked after download.
func (d Descriptor) Verifiable() bool {
	return d.Digest != "" || stockfishNetName.MatchString(d.Name)
}

// Verify checks got against the declared digest, or against the hash prefix
// embedded in a Stockfish network name when no digest is declared.
func (d Descriptor) Verify(got digest.Digest) error {
	if d.Digest != "" {
		if got != d.Digest {
			return fmt.Errorf("%w: %s: want %s, got %s", ErrDigestMismatch, d.Name, d.Digest, got)
		}
		return nil
	}

	m := stockfishNetName.FindStringSubmatch(d.Name)
	if m == nil {
		return nil
	}
	if got.Algorithm() != digest.SHA256 || !strings.HasPrefix(got.Encoded(), m[1]) {
		return fmt.Errorf("%w: %s: want sha256 prefix %s, got %s", ErrDigestMismatch, d.Name, m[1], got)
	}
	return nil
}

// VerifyFile hashes the file at path and checks it against d.
func (d Descriptor) VerifyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	got, err := d.algorithm().FromReader(f)
	if err != nil {
		return err
	}
	return d.Verify(got)
}

// hashingWriter feeds every written byte to a digester.
type hashingWriter struct {
	w        io.Writer
	alg      digest.Algorithm
	digester digest.Digester
}

func newHashingWriter(w io.Writer, alg digest.Algorithm) *hashingWriter {
	return &hashingWriter{w: w, alg: alg, digester: alg.Digester()}
}

func (h *hashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.digester.Hash().Write(p[:n])
	return n, err
}

func (h *hashingWriter) reset() {
	h.digester = h.alg.Digester()
}

func (h *hashingWriter) Digest() digest.Digest {
	return h.digester.Digest()
}
