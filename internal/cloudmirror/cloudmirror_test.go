package cloudmirror

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory Provider used to test the
// mkdir_p/rename_safe/upload_artifact helpers without a real backend.
type fakeProvider struct {
	dirs     map[string]bool
	files    map[string][]byte
	mkdirErr map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{dirs: map[string]bool{"": true}, files: map[string][]byte{}, mkdirErr: map[string]error{}}
}

func (f *fakeProvider) Login() error  { return nil }
func (f *fakeProvider) Logout() error { return nil }

func (f *fakeProvider) Mkdir(path string) error {
	if err, ok := f.mkdirErr[path]; ok {
		return err
	}
	f.dirs[path] = true
	return nil
}

func (f *fakeProvider) Readdir(string) ([]Entry, error) { return nil, nil }

func (f *fakeProvider) Stat(path string) (*Stat, bool, error) {
	if f.dirs[path] {
		return &Stat{IsDir: true}, true, nil
	}
	if data, ok := f.files[path]; ok {
		return &Stat{IsDir: false, Size: int64(len(data))}, true, nil
	}
	return nil, false, nil
}

func (f *fakeProvider) Rename(oldPath, newPath string) error {
	data, ok := f.files[oldPath]
	if !ok {
		return fmt.Errorf("no such file %s", oldPath)
	}
	f.files[newPath] = data
	delete(f.files, oldPath)
	return nil
}

func (f *fakeProvider) Upload(localSrc, remoteDst string) error {
	data, err := os.ReadFile(localSrc)
	if err != nil {
		return err
	}
	f.files[remoteDst] = data
	return nil
}

func (f *fakeProvider) Download(remoteSrc, localDst string) error {
	data, ok := f.files[remoteSrc]
	if !ok {
		return fmt.Errorf("no such file %s", remoteSrc)
	}
	return os.WriteFile(localDst, data, 0o644)
}

func (f *fakeProvider) Remove(path string) error {
	delete(f.files, path)
	return nil
}

func TestNoneProviderAlwaysSucceeds(t *testing.T) {
	var p NoneProvider
	require.NoError(t, p.Login())
	require.NoError(t, p.Mkdir("a/b"))
	require.NoError(t, p.Upload("local", "remote"))
	st, ok, err := p.Stat("anything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, st)
	require.NoError(t, p.Logout())
}

func TestMkdirPCreatesEachMissingLevel(t *testing.T) {
	p := newFakeProvider()
	require.NoError(t, MkdirP(p, "a/b/c"))
	assert.True(t, p.dirs["a"])
	assert.True(t, p.dirs["a/b"])
	assert.True(t, p.dirs["a/b/c"])
}

func TestRenameSafeRefusesWhenDestinationExists(t *testing.T) {
	p := newFakeProvider()
	p.files["src"] = []byte("x")
	p.files["dst"] = []byte("y")

	err := RenameSafe(p, "src", "dst")
	assert.Error(t, err)
}

func TestRenameSafeRefusesWhenSourceMissing(t *testing.T) {
	p := newFakeProvider()
	err := RenameSafe(p, "missing", "dst")
	assert.Error(t, err)
}

func TestUploadArtifactRotatesExistingRemote(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(local, []byte("v2"), 0o644))

	p := newFakeProvider()
	p.files["files/a.txt"] = []byte("v1")

	require.NoError(t, UploadArtifact(p, local, "files/a.txt", "deltas/a.txt.123"))

	assert.Equal(t, []byte("v2"), p.files["files/a.txt"])
	assert.Equal(t, []byte("v1"), p.files["deltas/a.txt.123"])
}

func TestUploadArtifactWithNoPriorArtifact(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(local, []byte("v1"), 0o644))

	p := newFakeProvider()
	require.NoError(t, UploadArtifact(p, local, "files/a.txt", "deltas/a.txt.123"))

	assert.Equal(t, []byte("v1"), p.files["files/a.txt"])
	_, rotated := p.files["deltas/a.txt.123"]
	assert.False(t, rotated)
}
