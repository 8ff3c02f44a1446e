package compressengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodecAliases(t *testing.T) {
	cases := map[string]Codec{
		"gzip": CodecGzip, "gz": CodecGzip,
		"bzip2": CodecBzip2, "bz2": CodecBzip2,
		"xz": CodecXz, "lzma": CodecXz,
		"lz4":  CodecLz4,
		"none": CodecNone, "off": CodecNone, "": CodecNone,
	}
	for in, want := range cases {
		got, err := ParseCodec(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCodec("zstd")
	assert.Error(t, err)
}

func TestRoundTripAllCodecs(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")

	for _, codec := range []Codec{CodecNone, CodecGzip, CodecBzip2, CodecXz, CodecLz4} {
		t.Run(string(codec), func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "plain")
			compressed := filepath.Join(dir, "compressed")
			restored := filepath.Join(dir, "restored")

			require.NoError(t, os.WriteFile(src, content, 0o644))
			require.NoError(t, CompressFile(src, compressed, codec, 0, 0))
			require.NoError(t, DecompressFile(compressed, restored, codec))

			got, err := os.ReadFile(restored)
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestNoneCodecIsByteIdenticalPassthrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain")
	dst := filepath.Join(dir, "copy")
	content := []byte("byte identical")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	require.NoError(t, CompressFile(src, dst, CodecNone, 0, 0))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
