package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// BSearchThreshold is the window size (bytes) below which Search
// switches from bisection to a linear forward scan, per spec.md's
// suggested 512-byte default.
const BSearchThreshold = 512

// Search looks up key in the sorted manifest file f, combining binary
// search by byte offset with a linear scan of the final window. It
// returns the hex digest and true if key is present, or false if not.
func Search(f *os.File, key string) (string, bool, error) {
	info, err := f.Stat()
	if err != nil {
		return "", false, fmt.Errorf("manifest: stat manifest for search: %w", err)
	}
	size := info.Size()

	lo, hi := int64(0), size
	for hi-lo >= BSearchThreshold {
		mid := lo + (hi-lo)/2
		aligned, err := alignToEntryStart(f, mid, size)
		if err != nil {
			return "", false, err
		}
		if aligned >= hi {
			break
		}
		entry, next, err := readEntryAt(f, aligned, size)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		switch cmp := strings.Compare(entry.Path, key); {
		case cmp == 0:
			return entry.HexDigest, true, nil
		case cmp < 0:
			lo = next
		default:
			hi = aligned
		}
	}

	pos := lo
	for pos < hi {
		entry, next, err := readEntryAt(f, pos, size)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		cmp := strings.Compare(entry.Path, key)
		if cmp == 0 {
			return entry.HexDigest, true, nil
		}
		if cmp > 0 {
			break
		}
		pos = next
	}
	return "", false, nil
}

// alignToEntryStart returns the offset of the next entry boundary at
// or after offset: the byte position immediately following the next
// LF found starting from offset. offset 0 is already a boundary by
// construction of a well-formed manifest.
func alignToEntryStart(f *os.File, offset, size int64) (int64, error) {
	if offset <= 0 {
		return 0, nil
	}
	if offset >= size {
		return size, nil
	}
	buf := make([]byte, 4096)
	pos := offset
	for pos < size {
		n, err := f.ReadAt(buf, pos)
		if n > 0 {
			if idx := bytes.IndexByte(buf[:n], '\n'); idx >= 0 {
				return pos + int64(idx) + 1, nil
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("manifest: align scan: %w", err)
		}
	}
	return size, nil
}

// readEntryAt reads exactly one entry starting at a known entry
// boundary offset, returning the entry and the offset of the next
// entry (or size/io.EOF if none remains).
func readEntryAt(f *os.File, offset, size int64) (Entry, int64, error) {
	if offset >= size {
		return Entry{}, offset, io.EOF
	}
	var data []byte
	buf := make([]byte, 4096)
	pos := offset
	nulIdx, lfIdx := -1, -1
	for {
		n, err := f.ReadAt(buf, pos)
		if n > 0 {
			data = append(data, buf[:n]...)
			if nulIdx < 0 {
				if idx := bytes.IndexByte(data, 0); idx >= 0 {
					nulIdx = idx
				}
			}
			if nulIdx >= 0 && lfIdx < 0 {
				if idx := bytes.IndexByte(data[nulIdx+1:], '\n'); idx >= 0 {
					lfIdx = nulIdx + 1 + idx
				}
			}
			pos += int64(n)
		}
		if lfIdx >= 0 {
			break
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return Entry{}, offset, fmt.Errorf("manifest: read entry at %d: %w", offset, err)
		}
	}
	if nulIdx < 0 || lfIdx < 0 {
		return Entry{}, offset, fmt.Errorf("manifest: malformed entry at offset %d", offset)
	}
	entry := Entry{Path: string(data[:nulIdx]), HexDigest: string(data[nulIdx+1 : lfIdx])}
	return entry, offset + int64(lfIdx) + 1, nil
}
