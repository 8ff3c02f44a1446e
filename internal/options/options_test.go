package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qbak.conf")

	o := Options{
		Directories: []string{"/home/user/docs", "/home/user/photos"},
		Exclude:     []string{"/home/user/docs/tmp"},
		DigestKind:  digest.SHA256,
		CipherName:  "aes-256-cbc",
		Compressor:  compressengine.CodecGzip,
		CompLevel:   6,
		CompFlags:   0,
		OutputRoot:  "/backups/out",
		CloudTarget: CloudTarget{
			ProviderID: "none",
			Provider:   cloudmirror.NoneProvider{},
			RemoteRoot: "/remote",
		},
		Verbose: true,
	}

	require.NoError(t, SaveFile(path, o))

	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/home/user/docs", "/home/user/photos"}, SplitList(loaded["directories"]))
	assert.Equal(t, []string{"/home/user/docs/tmp"}, SplitList(loaded["exclude"]))
	assert.Equal(t, "sha256", loaded["digest_kind"])
	assert.Equal(t, "aes-256-cbc", loaded["cipher_name"])
	assert.Equal(t, "gzip", loaded["compressor"])
	assert.Equal(t, "6", loaded["comp_level"])
	assert.Equal(t, "/backups/out", loaded["output_root"])
	assert.Equal(t, "none", loaded["cloud_provider"])
	assert.Equal(t, "true", loaded["verbose"])
}

func TestSplitListEmpty(t *testing.T) {
	assert.Nil(t, SplitList(""))
}

func TestLoadFileMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("not-an-options-file\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
