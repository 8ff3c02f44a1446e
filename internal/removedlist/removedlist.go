// Package removedlist builds the transient list of paths present in a
// prior manifest but missing from the live filesystem, per spec.md
// §4.9. The list is written as "path NUL LF" records and is not
// persisted across runs; it exists only to drive deletion
// reconciliation for the run that produced it.
package removedlist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/bling233/qbak/internal/manifest"
)

// Build iterates the sorted prior manifest at priorPath and writes one
// "path NUL LF" record to out for every entry whose source path no
// longer exists (l-stat fails).
func Build(out io.Writer, priorPath string) error {
	f, err := os.Open(priorPath)
	if err != nil {
		return fmt.Errorf("removedlist: open prior manifest %s: %w", priorPath, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		entry, ok, err := manifest.ReadEntry(br)
		if err != nil {
			return fmt.Errorf("removedlist: read prior manifest %s: %w", priorPath, err)
		}
		if !ok {
			break
		}
		if _, statErr := os.Lstat(entry.Path); statErr != nil {
			if err := WriteRecord(out, entry.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteRecord serializes one removed-path record as "path NUL LF".
func WriteRecord(w io.Writer, path string) error {
	if _, err := io.WriteString(w, path); err != nil {
		return fmt.Errorf("removedlist: write path: %w", err)
	}
	if _, err := w.Write([]byte{0, '\n'}); err != nil {
		return fmt.Errorf("removedlist: write record terminator: %w", err)
	}
	return nil
}

// Reader streams removed-path records one at a time.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for sequential record reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next removed path, or ok=false at EOF.
func (rd *Reader) Next() (path string, ok bool, err error) {
	pathBytes, err := rd.br.ReadBytes(0)
	if err == io.EOF && len(pathBytes) == 0 {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("removedlist: read path: %w", err)
	}
	path = string(pathBytes[:len(pathBytes)-1])
	lf, err := rd.br.ReadByte()
	if err != nil || lf != '\n' {
		return "", false, fmt.Errorf("removedlist: malformed record for %q", path)
	}
	return path, true, nil
}
