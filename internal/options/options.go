// Package options implements the run-scoped Options record from
// spec.md §4.12, plus its qbak.conf on-disk serialization. The format
// is grounded on original_source/options/options_file.c's
// length-prefixed key=value file: "[Options]\nKEY=XXXXXXXXVALUE\n",
// where XXXXXXXX is the value's byte length as an 8-digit decimal
// field. Each entry occupies exactly one line, so a value cannot
// contain a newline; list values (directories, exclude) are joined
// with the ASCII unit separator instead.
package options

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
	"github.com/bling233/qbak/internal/secret"
)

const listSep = "\x1f" // ASCII unit separator, never appears in a path

// CloudTarget describes the destination provider for cloud mirroring.
type CloudTarget struct {
	Provider   cloudmirror.Provider
	ProviderID string // "none", "ftp", "s3" — kept for re-serialization
	User       string
	Password   *secret.Secret
	RemoteRoot string
}

// Options is the plain, run-scoped configuration record spec.md
// §4.12 describes. Construction, validation, and any interactive menu
// editing live in cmd/qbak, not here.
type Options struct {
	Directories []string
	Exclude     []string
	DigestKind  digest.Kind
	CipherName  string // "" means no cipher
	Password    *secret.Secret
	Compressor  compressengine.Codec
	CompLevel   int
	CompFlags   uint32
	OutputRoot  string
	CloudTarget CloudTarget
	Verbose     bool
}

// SaveFile serializes o to path in the options_file.c-derived format.
func SaveFile(path string, o Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("options: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := io.WriteString(w, "[Options]\n"); err != nil {
		return fmt.Errorf("options: write header: %w", err)
	}

	entries := []struct{ key, value string }{
		{"directories", strings.Join(o.Directories, listSep)},
		{"exclude", strings.Join(o.Exclude, listSep)},
		{"digest_kind", string(o.DigestKind)},
		{"cipher_name", o.CipherName},
		{"compressor", string(o.Compressor)},
		{"comp_level", strconv.Itoa(o.CompLevel)},
		{"comp_flags", strconv.FormatUint(uint64(o.CompFlags), 10)},
		{"output_root", o.OutputRoot},
		{"cloud_provider", o.CloudTarget.ProviderID},
		{"cloud_user", o.CloudTarget.User},
		{"cloud_remote_root", o.CloudTarget.RemoteRoot},
		{"verbose", strconv.FormatBool(o.Verbose)},
	}
	for _, e := range entries {
		if err := writeEntry(w, e.key, e.value); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeEntry(w *bufio.Writer, key, value string) error {
	if _, err := fmt.Fprintf(w, "%s=%08d%s\n", key, len(value), value); err != nil {
		return fmt.Errorf("options: write entry %s: %w", key, err)
	}
	return nil
}

// LoadFile parses a qbak.conf file into a key/value map. Resolving
// those values into digest/compressor/cipher types and constructing
// cloud providers is the caller's job (cmd/qbak), since it requires
// context (e.g. a password prompt) this package does not have.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("options: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(header) != "[Options]" {
		return nil, fmt.Errorf("options: %s missing [Options] header", path)
	}

	out := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if err != nil {
				break
			}
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("options: malformed line %q", line)
		}
		key := line[:eq]
		rest := line[eq+1:]
		if len(rest) < 8 {
			return nil, fmt.Errorf("options: malformed length prefix for key %s", key)
		}
		n, perr := strconv.Atoi(rest[:8])
		if perr != nil {
			return nil, fmt.Errorf("options: invalid length prefix for key %s: %w", key, perr)
		}
		value := rest[8:]
		// Every entry is one line (list values are joined with listSep,
		// not newlines), so a single ReadString call captures the whole
		// entry; a value that contained a newline fails the length check.
		if len(value) != n {
			return nil, fmt.Errorf("options: length mismatch for key %s: want %d got %d", key, n, len(value))
		}
		out[key] = value
		if err != nil {
			break
		}
	}
	return out, nil
}

// SplitList reverses the listSep join SaveFile uses for directories/exclude.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}
