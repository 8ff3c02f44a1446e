// Package manifest implements the sorted on-disk checksum manifest:
// entry serialization, streaming read/write, an external merge sort
// for manifests too large to fit comfortably in memory, and a
// binary-search-plus-linear-tail lookup over a sorted manifest.
// Grounded on original_source/checksumsort.c (entry format, NULL-
// sorts-to-bottom heap ordering, median-of-three run generation) and
// on the teacher's core/incremental.go (ManifestFile/equalForDiff)
// for the higher-level diff vocabulary.
package manifest

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bling233/qbak/internal/databuf"
)

// Entry is one manifest record: a source path and its hex digest.
type Entry struct {
	Path      string
	HexDigest string
}

// WriteEntry serializes e as "path NUL hex_digest LF" to w.
func WriteEntry(w io.Writer, e Entry) error {
	if _, err := io.WriteString(w, e.Path); err != nil {
		return fmt.Errorf("manifest: write path: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("manifest: write path terminator: %w", err)
	}
	if _, err := io.WriteString(w, e.HexDigest); err != nil {
		return fmt.Errorf("manifest: write digest: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("manifest: write entry terminator: %w", err)
	}
	return nil
}

// ReadEntry scans the next NUL-terminated path and LF-terminated
// digest from r. It returns ok=false with a nil error (not io.EOF) when
// r is exhausted before any bytes of a new entry are read, and a non-nil
// error for any other malformed input (e.g. a path with no following
// NUL, or a digest with no following LF).
func ReadEntry(r *bufio.Reader) (e Entry, ok bool, err error) {
	first, ferr := r.ReadByte()
	if ferr == io.EOF {
		return Entry{}, false, nil
	}
	if ferr != nil {
		return Entry{}, false, fmt.Errorf("manifest: read path: %w", ferr)
	}

	// A manifest path's length is unbounded, so it's accumulated byte
	// by byte into a databuf.Buffer, which amortizes the resize cost
	// of that one-byte-at-a-time growth with its power-of-two capacity
	// doubling.
	pathBuf := databuf.New()
	c := first
	for c != 0 {
		pathBuf.AppendByte(c)
		c, ferr = r.ReadByte()
		if ferr != nil {
			if ferr == io.EOF {
				return Entry{}, false, fmt.Errorf("manifest: truncated entry: missing NUL after path")
			}
			return Entry{}, false, fmt.Errorf("manifest: read path: %w", ferr)
		}
	}
	path := string(pathBuf.Bytes())

	digestBytes, derr := r.ReadBytes('\n')
	if derr != nil {
		if derr == io.EOF {
			return Entry{}, false, fmt.Errorf("manifest: truncated entry: missing LF after digest")
		}
		return Entry{}, false, fmt.Errorf("manifest: read digest: %w", derr)
	}
	digest := string(digestBytes[:len(digestBytes)-1])

	return Entry{Path: path, HexDigest: digest}, true, nil
}

// compareEntries orders entries lexicographically by path. A nil-ish
// zero-value comparison is not meaningful here; use compareMergeNodes
// for the heap ordering that sorts missing entries to the bottom.
func compareEntries(a, b Entry) int {
	switch {
	case a.Path < b.Path:
		return -1
	case a.Path > b.Path:
		return 1
	default:
		return 0
	}
}
