package orchestrator

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bling233/qbak/internal/cipherengine"
	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
	"github.com/bling233/qbak/internal/manifest"
	"github.com/bling233/qbak/internal/secret"
)

func writeSourceFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func baseConfig(srcRoot, outRoot string) Config {
	return Config{
		Directories: []string{srcRoot},
		DigestKind:  digest.SHA256,
		Compressor:  compressengine.CodecNone,
		OutputRoot:  outRoot,
	}
}

func TestRunRoundTripNoCryptoNoCompression(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "a.txt", "hello world")

	cfg := baseConfig(srcRoot, outRoot)
	stats, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)

	dst := filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "a.txt"))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestRunRoundTripWithCompression(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "a.txt", "the quick brown fox jumps over the lazy dog, repeated for compressibility")

	cfg := baseConfig(srcRoot, outRoot)
	cfg.Compressor = compressengine.CodecGzip
	cfg.CompLevel = 6

	stats, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)

	dst := filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "a.txt"))
	out, err := os.Open(dst)
	require.NoError(t, err)
	defer out.Close()

	r, err := compressengine.OpenRead(out, compressengine.CodecGzip)
	require.NoError(t, err)
	defer r.Close()
	buf := make([]byte, 256)
	n, _ := r.Read(buf)
	assert.Contains(t, string(buf[:n]), "quick brown fox")
}

func TestRunRoundTripWithEncryption(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "secret.txt", "top secret contents")

	spec, err := cipherengine.ParseCipher("aes-256-cbc")
	require.NoError(t, err)

	cfg := baseConfig(srcRoot, outRoot)
	cfg.CipherSpec = &spec
	cfg.Password = secret.FromString("correct horse battery staple")

	stats, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)

	dst := filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "secret.txt"))
	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "Salted__", string(raw[:8]))
	assert.NotContains(t, string(raw), "top secret")

	in, err := os.Open(dst)
	require.NoError(t, err)
	defer in.Close()
	r, err := cipherengine.NewDecryptReader(in, spec, cfg.Password)
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "top secret contents", string(plain))
}

func TestRunIsIdempotentOnSecondPass(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "a.txt", "stable content")

	cfg := baseConfig(srcRoot, outRoot)

	stats1, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats1.FilesWritten)

	stats2, err := Run(cfg, time.Unix(2000, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, stats2.FilesWritten)
	assert.Equal(t, 1, stats2.FilesUnchanged)
}

func TestRunCreatesDeltaOnChange(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	p := writeSourceFile(t, srcRoot, "a.txt", "version one")

	cfg := baseConfig(srcRoot, outRoot)
	_, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("version two, different content"), 0o644))

	stats, err := Run(cfg, time.Unix(2000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)

	deltaPath := filepath.Join(outRoot, deltasDir, filepath.Join(srcRoot, "a.txt")+".2000")
	data, err := os.ReadFile(deltaPath)
	require.NoError(t, err)
	assert.Equal(t, "version one", string(data))

	current := filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "a.txt"))
	data, err = os.ReadFile(current)
	require.NoError(t, err)
	assert.Equal(t, "version two, different content", string(data))
}

func TestRunReconcilesDeletions(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	p := writeSourceFile(t, srcRoot, "gone.txt", "will be removed")

	cfg := baseConfig(srcRoot, outRoot)
	_, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)

	artifact := filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "gone.txt"))
	assert.True(t, fileExists(artifact))

	require.NoError(t, os.Remove(p))

	stats, err := Run(cfg, time.Unix(2000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.False(t, fileExists(artifact))
}

func TestRunSortsManifest(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "zebra.txt", "z")
	writeSourceFile(t, srcRoot, "apple.txt", "a")
	writeSourceFile(t, srcRoot, "mango.txt", "m")

	cfg := baseConfig(srcRoot, outRoot)
	_, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(outRoot, manifestName))
	require.NoError(t, err)
	defer f.Close()

	_, found, err := manifest.Search(f, filepath.Join(srcRoot, "mango.txt"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRunHonorsExcludePrefix(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "keep.txt", "keep me")
	writeSourceFile(t, srcRoot, "tmp/skip.txt", "skip me")

	cfg := baseConfig(srcRoot, outRoot)
	cfg.Exclude = []string{filepath.Join(srcRoot, "tmp")}

	stats, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)

	assert.True(t, fileExists(filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "keep.txt"))))
	assert.False(t, fileExists(filepath.Join(outRoot, filesDir, filepath.Join(srcRoot, "tmp/skip.txt"))))
}

func TestRunWithNoneCloudProviderWritesLocally(t *testing.T) {
	srcRoot := t.TempDir()
	outRoot := t.TempDir()
	writeSourceFile(t, srcRoot, "a.txt", "cloud me")

	cfg := baseConfig(srcRoot, outRoot)
	cfg.Provider = cloudmirror.NoneProvider{}
	cfg.RemoteRoot = "remote/root"

	stats, err := Run(cfg, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesWritten)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
