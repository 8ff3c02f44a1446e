// Package walker implements the stack-of-open-directories iterator
// described by spec.md §4.7: depth-first descent, unsorted per-directory
// enumeration order (the underlying filesystem's order, not
// lexicographic), symlinks reported as ordinary files rather than
// followed, and log-and-skip on a subdirectory that cannot be opened.
// Grounded on the teacher's core/scan.go walk, but built on
// os.File.Readdirnames instead of filepath.Walk/os.ReadDir, both of
// which sort entries before returning them.
package walker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type frame struct {
	dir     string
	names   []string
	nextIdx int
}

// Walker is a resumable depth-first directory iterator.
type Walker struct {
	stack []*frame
	skip  func(path string) bool
}

// SetSkip installs a predicate consulted for every entry before it is
// yielded or descended into. Per spec.md §4's exclude short-circuit,
// returning true for a directory prevents the walker from descending
// into it at all, rather than merely filtering its files out after
// the fact.
func (w *Walker) SetSkip(fn func(path string) bool) {
	w.skip = fn
}

// Start opens root and returns a Walker positioned at its first entry.
func Start(root string) (*Walker, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("walker: stat root %s: %w", root, err)
	}
	w := &Walker{}
	if !info.IsDir() {
		// A single-file root: synthesize one frame so Next() yields just this path.
		w.stack = []*frame{{dir: filepath.Dir(root), names: []string{filepath.Base(root)}}}
		return w, nil
	}
	if err := w.pushDir(root); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Walker) pushDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("walker: open %s: %w", dir, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("walker: read dir %s: %w", dir, err)
	}
	w.stack = append(w.stack, &frame{dir: dir, names: names})
	return nil
}

// Next returns the next non-directory file's absolute path, or ok=false
// when the walk is exhausted.
func (w *Walker) Next() (path string, ok bool, err error) {
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.nextIdx >= len(top.names) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		name := top.names[top.nextIdx]
		top.nextIdx++

		full := filepath.Join(top.dir, name)
		if w.skip != nil && w.skip(full) {
			continue
		}

		info, lerr := os.Lstat(full)
		if lerr != nil {
			log.Printf("walker: skipping %s: %v", full, lerr)
			continue
		}

		if info.IsDir() {
			if perr := w.pushDir(full); perr != nil {
				log.Printf("walker: skipping subdirectory %s: %v", full, perr)
				continue
			}
			continue
		}
		return full, true, nil
	}
	return "", false, nil
}

// SkipCurrentDir pops the top directory of the stack; subsequent Next
// calls resume in the parent.
func (w *Walker) SkipCurrentDir() {
	if len(w.stack) == 0 {
		return
	}
	w.stack = w.stack[:len(w.stack)-1]
}
