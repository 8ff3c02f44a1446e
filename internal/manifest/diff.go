package manifest

import (
	"fmt"
	"io"
	"os"

	"github.com/bling233/qbak/internal/digest"
)

// Decision is the per-file dedup outcome of IncrementalWrite.
type Decision int

const (
	Unchanged Decision = iota
	Changed
)

// IncrementalWrite computes path's digest and, if prior is non-nil and
// already contains a matching digest for path, returns Unchanged
// without touching out. Otherwise it writes the new entry to out and
// returns Changed. This is the per-file reuse decision the
// orchestrator drives its compress/encrypt/rename step from.
func IncrementalWrite(out io.Writer, path string, kind digest.Kind, prior *os.File) (Decision, string, error) {
	sum, err := digest.File(path, kind)
	if err != nil {
		return Changed, "", fmt.Errorf("manifest: digest %s: %w", path, err)
	}
	hexDigest := digest.ToHex(sum)

	if prior != nil {
		// spec.md §7: a manifest read error during search is treated as
		// "key not present," not as a fatal-to-file error — the file is
		// conservatively rewritten rather than skipped as a per-file
		// failure.
		existing, found, err := Search(prior, path)
		if err == nil && found && existing == hexDigest {
			return Unchanged, hexDigest, nil
		}
	}

	if err := WriteEntry(out, Entry{Path: path, HexDigest: hexDigest}); err != nil {
		return Changed, "", err
	}
	return Changed, hexDigest, nil
}
