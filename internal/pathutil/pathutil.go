// Package pathutil implements purely lexical path operations over
// the opaque, null-safe Path model described by the manifest and
// cloud-mirror packages. Everything here operates on "/"-separated
// strings and never touches the filesystem.
package pathutil

import "strings"

const sep = "/"

// Parent returns the substring up to and excluding the final separator.
// A root-level path (no separator) has no parent and returns "".
func Parent(p string) string {
	p = strings.TrimRight(p, sep)
	idx := strings.LastIndex(p, sep)
	if idx < 0 {
		return ""
	}
	if idx == 0 {
		return sep
	}
	return p[:idx]
}

// Filename returns the substring after the final separator.
func Filename(p string) string {
	p = strings.TrimRight(p, sep)
	idx := strings.LastIndex(p, sep)
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

// Extension returns the suffix after the final dot of Filename(p), not
// including the dot. Returns "" if there is no dot, or the dot is the
// first character (dotfiles have no extension).
func Extension(p string) string {
	name := Filename(p)
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return ""
	}
	return name[idx+1:]
}

// Join normalizes exactly one separator between a and b, treating a
// trailing separator on a and a leading separator on b as redundant.
func Join(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	a = strings.TrimRight(a, sep)
	b = strings.TrimLeft(b, sep)
	return a + sep + b
}

// StartsWith is a byte-prefix test used for exclude-list matching.
func StartsWith(haystack, needle string) bool {
	return strings.HasPrefix(haystack, needle)
}

// NullSafeCompare compares two possibly-empty path strings, treating
// the empty (null) path as less than any non-empty path.
func NullSafeCompare(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// ParentDirs returns the ordered list of ancestor prefixes of p, from
// shortest to p itself. Used by cloud mkdir -p to create each missing
// level in order.
func ParentDirs(p string) []string {
	p = strings.Trim(p, sep)
	if p == "" {
		return nil
	}
	parts := strings.Split(p, sep)
	out := make([]string, 0, len(parts))
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur = Join(cur, part)
		out = append(out, cur)
	}
	return out
}
