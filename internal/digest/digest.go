// Package digest implements streaming content hashing and the
// hex-encoding conventions the manifest format relies on. Digest
// kinds are resolved case-insensitively, matching spec.md §"Digest
// engine". Grounded on stdlib crypto/sha1, crypto/sha256,
// crypto/sha512 and crypto/md5 — there is no ecosystem replacement
// for these core hash primitives, so this is the one module that
// leans entirely on the standard library by design, same as the
// teacher's reliance on its own from-scratch digest (core/crypto.go's
// Sum256) for the same role, just without reinventing the math.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Kind names a supported digest algorithm.
type Kind string

const (
	SHA1   Kind = "sha1"
	SHA256 Kind = "sha256"
	SHA512 Kind = "sha512"
	MD5    Kind = "md5"
	None   Kind = "none"
)

// ParseKind resolves a digest algorithm name case-insensitively.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return SHA1, nil
	case "sha256", "":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	case "md5":
		return MD5, nil
	case "none":
		return None, nil
	default:
		return "", fmt.Errorf("digest: unknown kind %q", name)
	}
}

func newHasher(kind Kind) (hash.Hash, error) {
	switch kind {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case MD5:
		return md5.New(), nil
	case None:
		return nil, nil
	default:
		return nil, fmt.Errorf("digest: unknown kind %q", kind)
	}
}

// streamBufferSize is the minimum read buffer spec.md requires (>=64 KiB).
const streamBufferSize = 64 * 1024

// File computes the digest of the file at path using kind, streaming
// the read through a buffer at least 64 KiB. Kind "none" returns an
// empty byte slice.
func File(path string, kind Kind) ([]byte, error) {
	if kind == None {
		return []byte{}, nil
	}
	h, err := newHasher(kind)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("digest: read %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// Reader computes the digest of r's entire contents.
func Reader(r io.Reader, kind Kind) ([]byte, error) {
	if kind == None {
		return []byte{}, nil
	}
	h, err := newHasher(kind)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return nil, fmt.Errorf("digest: read: %w", err)
	}
	return h.Sum(nil), nil
}

// ToHex renders bytes as uppercase hexadecimal, the manifest's
// on-disk digest representation.
func ToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// FromHex parses a hex digest, tolerant of either case.
func FromHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("digest: invalid hex digest %q: %w", s, err)
	}
	return b, nil
}
