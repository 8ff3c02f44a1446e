package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindCaseInsensitive(t *testing.T) {
	k, err := ParseKind("SHA256")
	require.NoError(t, err)
	assert.Equal(t, SHA256, k)

	_, err = ParseKind("rot13")
	assert.Error(t, err)
}

func TestFileSHA256KnownVector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := File(path, SHA256)
	require.NoError(t, err)
	assert.Equal(t,
		"2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824",
		ToHex(sum))
}

func TestFileNoneKindIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("ignored"), 0o644))

	sum, err := File(path, None)
	require.NoError(t, err)
	assert.Empty(t, sum)
}

func TestToHexFromHexRoundTrip(t *testing.T) {
	sum, err := File(writeTemp(t, "round trip"), SHA1)
	require.NoError(t, err)

	hexStr := ToHex(sum)
	assert.Equal(t, strings.ToUpper(hexStr), hexStr)

	back, err := FromHex(strings.ToLower(hexStr))
	require.NoError(t, err)
	assert.Equal(t, sum, back)
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
