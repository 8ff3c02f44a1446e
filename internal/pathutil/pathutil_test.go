package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParent(t *testing.T) {
	assert.Equal(t, "/a/b", Parent("/a/b/c"))
	assert.Equal(t, "/", Parent("/a"))
	assert.Equal(t, "", Parent("a"))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "c", Filename("/a/b/c"))
	assert.Equal(t, "c", Filename("/a/b/c/"))
	assert.Equal(t, "a", Filename("a"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "txt", Extension("/a/b/file.txt"))
	assert.Equal(t, "", Extension("/a/b/file"))
	assert.Equal(t, "", Extension("/a/b/.hidden"))
	assert.Equal(t, "gz", Extension("archive.tar.gz"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/a/b", Join("/a", "b"))
	assert.Equal(t, "/a/b", Join("/a/", "/b"))
	assert.Equal(t, "a", Join("", "a"))
	assert.Equal(t, "a", Join("a", ""))
}

func TestStartsWith(t *testing.T) {
	assert.True(t, StartsWith("/a/b/c", "/a/b"))
	assert.False(t, StartsWith("/a/bc", "/a/b/"))
}

func TestNullSafeCompare(t *testing.T) {
	assert.Equal(t, 0, NullSafeCompare("", ""))
	assert.Negative(t, NullSafeCompare("", "x"))
	assert.Positive(t, NullSafeCompare("x", ""))
	assert.Negative(t, NullSafeCompare("a", "b"))
}

func TestParentDirs(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b", "a/b/c"}, ParentDirs("a/b/c"))
	assert.Equal(t, []string{"a"}, ParentDirs("a"))
	assert.Nil(t, ParentDirs(""))
}
