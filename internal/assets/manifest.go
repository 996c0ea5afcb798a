// Package assets provisions the binary network files required by the NNUE
// engine into a local cache directory.
package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// NNUE network file URLs and names
const (
	BigNetName = "nn-c288c895ea92.nnue"
	BigNetURL  = "https://tests.stockfishchess.org/api/nn/" + BigNetName

	SmallNetName = "nn-37f18f62d772.nnue"
	SmallNetURL  = "https://tests.stockfishchess.org/api/nn/" + SmallNetName
)

// Role tells the engine which network an asset holds.
type Role string

const (
	RoleNone  Role = ""
	RoleBig   Role = "big"
	RoleSmall Role = "small"
)

// Encoding is the transfer encoding of an asset source.
type Encoding string

const (
	EncodingIdentity Encoding = ""
	EncodingZstd     Encoding = "zstd"
)

// Descriptor declares one asset: where it lives in the cache, where to fetch
// it from and, optionally, the digest its content must match.
type Descriptor struct {
	Name     string
	URL      string
	Digest   digest.Digest // empty skips full-digest verification
	Encoding Encoding
	Role     Role
}

// Manifest is the ordered list of assets to provision.
type Manifest []Descriptor

// DefaultManifest returns the networks the engine loads by default.
func DefaultManifest() Manifest {
	return Manifest{
		{Name: BigNetName, URL: BigNetURL, Role: RoleBig},
		{Name: SmallNetName, URL: SmallNetURL, Role: RoleSmall},
	}
}

var (
	ErrEmptyName     = errors.New("asset name is empty")
	ErrInvalidName   = errors.New("asset name must be a plain file name")
	ErrDuplicateName = errors.New("duplicate asset name")
	ErrEmptyURL      = errors.New("asset url is empty")
	ErrEncoding      = errors.New("unsupported asset encoding")
	ErrDuplicateRole = errors.New("duplicate asset role")
)

// Validate checks that names are unique plain file names, sources are set and
// declared digests are well formed.
func (m Manifest) Validate() error {
	names := make(map[string]bool, len(m))
	roles := make(map[Role]bool, 2)

	for _, d := range m {
		switch {
		case d.Name == "":
			return ErrEmptyName
		case d.Name != filepath.Base(d.Name) || strings.ContainsAny(d.Name, `/\`) || d.Name == "." || d.Name == "..":
			return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
		case names[d.Name]:
			return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
		case d.URL == "":
			return fmt.Errorf("%w: %q", ErrEmptyURL, d.Name)
		}
		names[d.Name] = true

		if d.Digest != "" {
			if err := d.Digest.Validate(); err != nil {
				return fmt.Errorf("asset %q: %w", d.Name, err)
			}
		}

		switch d.Encoding {
		case EncodingIdentity, EncodingZstd:
		default:
			return fmt.Errorf("%w: %q for %q", ErrEncoding, d.Encoding, d.Name)
		}

		if d.Role != RoleNone {
			if roles[d.Role] {
				return fmt.Errorf("%w: %q", ErrDuplicateRole, d.Role)
			}
			roles[d.Role] = true
		}
	}
	return nil
}

// ByRole returns the descriptor holding the given role.
func (m Manifest) ByRole(role Role) (Descriptor, bool) {
	for _, d := range m {
		if d.Role == role {
			return d, true
		}
	}
	return Descriptor{}, false
}
