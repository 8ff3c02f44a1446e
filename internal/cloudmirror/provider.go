// Package cloudmirror implements the cloud mirror abstraction from
// spec.md §4.10: a small capability-set interface every provider
// implements, plus the higher-level mkdir_p/rename_safe/upload_artifact
// helpers built purely on top of it. Grounded on the teacher's
// half-stubbed core/network.go (Uploader interface intent) and
// core/network_test.go (which already anticipates a real FTP-backed
// provider), generalized to the full login/stat/mkdir/readdir/rename/
// upload/download/remove/logout capability set spec.md requires.
package cloudmirror

import (
	"fmt"
	"log"
	"time"

	"github.com/bling233/qbak/internal/pathutil"
)

// Entry describes one remote directory listing row.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Stat describes one remote path's metadata.
type Stat struct {
	IsDir bool
	Size  int64
	MTime time.Time
}

// Provider is the capability set every cloud backend implements. A
// Provider is stateful: Login establishes the session the remaining
// methods operate against, and Logout tears it down.
type Provider interface {
	Login() error
	Mkdir(path string) error
	Readdir(path string) ([]Entry, error)
	Stat(path string) (*Stat, bool, error)
	Rename(oldPath, newPath string) error
	Upload(localSrc, remoteDst string) error
	Download(remoteSrc, localDst string) error
	Remove(remotePath string) error
	Logout() error
}

// MkdirP walks parent_dirs(remotePath) from shortest to longest,
// creating each missing level. It skips prefixes that already exist
// (per Stat) and continues past per-level failures with a warning,
// matching spec.md's "continues past failures with a warning".
func MkdirP(p Provider, remotePath string) error {
	for _, dir := range pathutil.ParentDirs(remotePath) {
		if st, exists, err := p.Stat(dir); err == nil && exists && st.IsDir {
			continue
		}
		if err := p.Mkdir(dir); err != nil {
			log.Printf("cloudmirror: mkdir %s failed, continuing: %v", dir, err)
		}
	}
	return nil
}

// RenameSafe refuses to rename if newPath already exists or oldPath
// does not.
func RenameSafe(p Provider, oldPath, newPath string) error {
	if _, exists, err := p.Stat(oldPath); err != nil {
		return fmt.Errorf("cloudmirror: stat %s before rename: %w", oldPath, err)
	} else if !exists {
		return fmt.Errorf("cloudmirror: rename source %s does not exist", oldPath)
	}
	if _, exists, err := p.Stat(newPath); err != nil {
		return fmt.Errorf("cloudmirror: stat %s before rename: %w", newPath, err)
	} else if exists {
		return fmt.Errorf("cloudmirror: rename destination %s already exists", newPath)
	}
	return p.Rename(oldPath, newPath)
}

// UploadArtifact mirrors one local artifact to remoteFilesPath,
// rotating any existing remote artifact at that path to
// remoteDeltasPath first, per spec.md §4.10 step 3.
func UploadArtifact(p Provider, local, remoteFilesPath, remoteDeltasPath string) error {
	if err := MkdirP(p, pathutil.Parent(remoteFilesPath)); err != nil {
		return err
	}
	if _, exists, err := p.Stat(remoteFilesPath); err == nil && exists {
		if err := MkdirP(p, pathutil.Parent(remoteDeltasPath)); err != nil {
			return err
		}
		if err := RenameSafe(p, remoteFilesPath, remoteDeltasPath); err != nil {
			return fmt.Errorf("cloudmirror: rotate prior artifact %s: %w", remoteFilesPath, err)
		}
	}
	if err := p.Upload(local, remoteFilesPath); err != nil {
		return fmt.Errorf("cloudmirror: upload %s -> %s: %w", local, remoteFilesPath, err)
	}
	return nil
}

