// Package fsutil provides the file helpers the backup pipeline builds
// on: buffered copy, cross-device-safe atomic rename, guaranteed-unlink
// temp files, and recursive mkdir/rmdir. Every acquired handle or temp
// path is released on all exit paths, following the scoped-acquisition
// idiom the teacher's archive/crypto code uses for its readers and
// writers (see core/manager.go's chainedReadCloser).
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// CopyBufferSize is the buffer size used by CopyFile, matching the
// teacher's copyBufferSize (core/manager.go) and comfortably above
// spec.md's "32 KiB recommended" floor.
const CopyBufferSize = 256 * 1024

// CopyFile performs a buffered copy of src to dst, truncating dst if
// it exists. The destination's parent directory is not created; the
// caller is expected to have called MkdirP first.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: open source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fsutil: create destination %s: %w", dst, err)
	}
	defer out.Close()

	buf := make([]byte, CopyBufferSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("fsutil: copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// RenameFile attempts a same-device rename of src to dst. On
// cross-device failure (EXDEV), it falls back to copy-then-unlink.
// Atomicity is guaranteed only in the same-device case.
func RenameFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscallEXDEV()) {
		return fmt.Errorf("fsutil: rename %s -> %s: %w", src, dst, err)
	}
	if copyErr := CopyFile(src, dst); copyErr != nil {
		return fmt.Errorf("fsutil: cross-device rename %s -> %s: %w", src, dst, copyErr)
	}
	if rmErr := os.Remove(src); rmErr != nil {
		return fmt.Errorf("fsutil: unlink source after cross-device rename %s: %w", src, rmErr)
	}
	return nil
}

// TempFile is a uniquely-named file created with an atomic
// create-and-open primitive. Release unlinks the file and closes the
// handle; it is safe to call multiple times.
type TempFile struct {
	*os.File
	path     string
	released bool
}

// Path returns the temp file's path.
func (t *TempFile) Path() string { return t.path }

// Release closes the handle (if still open) and unlinks the path.
// Callers that successfully consume the temp file (e.g. rename it
// into place) should call Keep() first so Release becomes a no-op.
func (t *TempFile) Release() error {
	if t.released {
		return nil
	}
	t.released = true
	closeErr := t.File.Close()
	rmErr := os.Remove(t.path)
	if closeErr != nil {
		return closeErr
	}
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return nil
}

// Keep marks the temp file as consumed so Release becomes a no-op.
// Used after the temp file has been renamed into its final location.
func (t *TempFile) Keep() {
	t.released = true
}

// NewTempFile creates a uniquely-named file under dir (or the system
// temp directory if dir is empty) using an atomic create-and-open
// primitive, guaranteeing no other process can open the same name
// first.
func NewTempFile(dir, pattern string) (*TempFile, error) {
	if dir == "" {
		dir = SystemTempDir()
	}
	if err := MkdirP(dir); err != nil {
		return nil, fmt.Errorf("fsutil: create temp dir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("fsutil: create temp file in %s: %w", dir, err)
	}
	return &TempFile{File: f, path: f.Name()}, nil
}

// SystemTempDir returns a spill directory suitable for large temp
// files. /tmp is frequently a RAM filesystem (tmpfs); /var/tmp (or the
// platform equivalent) is preferred so large manifest-sort runs and
// encryption scratch files don't exhaust memory.
func SystemTempDir() string {
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	if info, err := os.Stat("/var/tmp"); err == nil && info.IsDir() {
		return "/var/tmp"
	}
	return os.TempDir()
}

// MkdirP creates dir and all missing parents, matching os.MkdirAll
// semantics.
func MkdirP(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir -p %s: %w", dir, err)
	}
	return nil
}

// MkdirParent ensures the parent directory of path exists.
func MkdirParent(path string) error {
	return MkdirP(filepath.Dir(path))
}

// RemoveAllRecursive removes dir and everything under it.
func RemoveAllRecursive(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("fsutil: rm -r %s: %w", dir, err)
	}
	return nil
}

// FileSize returns the size in bytes of the file at path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("fsutil: stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// Exists reports whether path exists (following symlinks).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LExists reports whether path exists without following a trailing
// symlink.
func LExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ChainedWriteCloser composes an io.Writer with the io.Closers that
// must run to flush and release it, closed sync.Once in reverse
// order. This is the teacher's chainedReadCloser idiom (core/manager.go)
// applied to writers, used to compose compress-then-encrypt into a
// single streaming pass instead of a full intermediate file per stage.
type ChainedWriteCloser struct {
	io.Writer
	closers []io.Closer
	once    sync.Once
	err     error
}

// NewChainedWriteCloser wraps w; closers are closed in reverse order
// (last-added first) the first time Close is called.
func NewChainedWriteCloser(w io.Writer, closers ...io.Closer) *ChainedWriteCloser {
	return &ChainedWriteCloser{Writer: w, closers: closers}
}

func (c *ChainedWriteCloser) Close() error {
	c.once.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i].Close(); err != nil && c.err == nil {
				c.err = err
			}
		}
	})
	return c.err
}

// ChainedReadCloser is ChainedWriteCloser's read-side counterpart,
// composing decrypt-then-decompress into one streaming pass.
type ChainedReadCloser struct {
	io.Reader
	closers []io.Closer
	once    sync.Once
	err     error
}

// NewChainedReadCloser wraps r; closers are closed in reverse order
// the first time Close is called.
func NewChainedReadCloser(r io.Reader, closers ...io.Closer) *ChainedReadCloser {
	return &ChainedReadCloser{Reader: r, closers: closers}
}

func (c *ChainedReadCloser) Close() error {
	c.once.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i].Close(); err != nil && c.err == nil {
				c.err = err
			}
		}
	})
	return c.err
}
