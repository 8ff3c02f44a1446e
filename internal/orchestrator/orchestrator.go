// Package orchestrator drives the backup pipeline state machine from
// spec.md §4.11: EnsureDestRoot → RotateManifest → CloudLogin →
// ReconcileDeletions → WalkAndCopy → SortManifest → CloudLogout. Every
// lower-level package (walker, manifest, digest, compressengine,
// cipherengine, removedlist, cloudmirror) is wired together here.
// Grounded on the teacher's core/manager.go Backup() for the overall
// run shape (a single top-level method driving scan → transform →
// write, with per-file errors logged and swallowed) and its
// chainedReadCloser/writeCallbackWriter idioms for resource lifecycle.
package orchestrator

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bling233/qbak/internal/cipherengine"
	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
	"github.com/bling233/qbak/internal/fsutil"
	"github.com/bling233/qbak/internal/manifest"
	"github.com/bling233/qbak/internal/removedlist"
	"github.com/bling233/qbak/internal/secret"
	"github.com/bling233/qbak/internal/walker"
)

// Config is everything one backup run needs. It mirrors spec.md
// §4.12's Options record but only the fields the orchestrator itself
// consumes; cmd/qbak is responsible for resolving raw CLI/config
// input into this shape.
type Config struct {
	Directories []string
	Exclude     []string
	DigestKind  digest.Kind
	Compressor  compressengine.Codec
	CompLevel   int
	CompFlags   uint32
	CipherSpec  *cipherengine.Spec // nil disables encryption
	Password    *secret.Secret
	OutputRoot  string
	Provider    cloudmirror.Provider // nil or cloudmirror.NoneProvider{} disables cloud mirroring
	RemoteRoot  string
	Verbose     bool
}

// Stats summarizes one completed run for logging and history storage.
type Stats struct {
	FilesWritten   int
	FilesUnchanged int
	FilesFailed    int
	FilesDeleted   int
	StartedAt      time.Time
	FinishedAt     time.Time
}

const (
	filesDir     = "files"
	deltasDir    = "deltas"
	manifestName = "checksums.txt"
)

// Run executes one complete backup per the spec.md §4.11 state
// machine. now is the epoch timestamp used for this run's rotation
// suffixes and for Stats.StartedAt, supplied by the caller so every
// suffix in one run is the same; Stats.FinishedAt is read from the
// wall clock when the run ends.
func Run(cfg Config, now time.Time) (Stats, error) {
	stats := Stats{StartedAt: now}
	epoch := strconv.FormatInt(now.Unix(), 10)

	if len(cfg.Directories) == 0 {
		return stats, fmt.Errorf("orchestrator: no source directories configured")
	}

	// EnsureDestRoot
	if err := fsutil.MkdirP(cfg.OutputRoot); err != nil {
		return stats, fmt.Errorf("orchestrator: ensure destination root: %w", err)
	}
	filesRoot := filepath.Join(cfg.OutputRoot, filesDir)
	deltasRoot := filepath.Join(cfg.OutputRoot, deltasDir)
	if err := fsutil.MkdirP(filesRoot); err != nil {
		return stats, fmt.Errorf("orchestrator: create files dir: %w", err)
	}
	if err := fsutil.MkdirP(deltasRoot); err != nil {
		return stats, fmt.Errorf("orchestrator: create deltas dir: %w", err)
	}

	// RotateManifest
	manifestPath := filepath.Join(cfg.OutputRoot, manifestName)
	var priorManifestPath string
	if fsutil.Exists(manifestPath) {
		priorManifestPath = manifestPath + "." + epoch
		if err := fsutil.RenameFile(manifestPath, priorManifestPath); err != nil {
			return stats, fmt.Errorf("orchestrator: rotate manifest: %w", err)
		}
	}

	newManifest, err := os.Create(manifestPath)
	if err != nil {
		return stats, fmt.Errorf("orchestrator: open new manifest for write: %w", err)
	}
	defer newManifest.Close()

	provider := cfg.Provider
	cloudEnabled := provider != nil
	if cloudEnabled {
		// CloudLogin
		if err := provider.Login(); err != nil {
			log.Printf("orchestrator: cloud login failed, continuing without cloud mirror: %v", err)
			cloudEnabled = false
		} else {
			defer func() {
				if err := provider.Logout(); err != nil {
					log.Printf("orchestrator: cloud logout failed: %v", err)
				}
			}()
		}
	}

	// ReconcileDeletions
	var priorManifest *os.File
	if priorManifestPath != "" {
		priorManifest, err = os.Open(priorManifestPath)
		if err != nil {
			log.Printf("orchestrator: cannot reopen prior manifest for deletion reconciliation: %v", err)
		} else {
			defer priorManifest.Close()
			stats.FilesDeleted = reconcileDeletions(priorManifestPath, filesRoot, provider, cloudEnabled, cfg.RemoteRoot)
		}
	}

	// WalkAndCopy
	for _, root := range cfg.Directories {
		if err := walkAndCopy(root, cfg, newManifest, priorManifest, filesRoot, deltasRoot, epoch, provider, cloudEnabled, &stats); err != nil {
			log.Printf("orchestrator: walk of %s failed: %v", root, err)
		}
	}

	if err := newManifest.Sync(); err != nil {
		return stats, fmt.Errorf("orchestrator: sync manifest: %w", err)
	}
	if err := newManifest.Close(); err != nil {
		return stats, fmt.Errorf("orchestrator: close manifest: %w", err)
	}

	// SortManifest
	if err := manifest.SortFile(manifestPath); err != nil {
		log.Printf("orchestrator: sort manifest failed, leaving unsorted: %v", err)
	}

	stats.FinishedAt = time.Now()
	return stats, nil
}

func reconcileDeletions(priorManifestPath, filesRoot string, provider cloudmirror.Provider, cloudEnabled bool, remoteRoot string) int {
	removed := 0

	var buf bytes.Buffer
	if err := removedlist.Build(&buf, priorManifestPath); err != nil {
		log.Printf("orchestrator: build removed-list: %v", err)
		return 0
	}

	rl := removedlist.NewReader(&buf)
	for {
		path, ok, err := rl.Next()
		if err != nil {
			log.Printf("orchestrator: read removed-list: %v", err)
			break
		}
		if !ok {
			break
		}
		localArtifact := filepath.Join(filesRoot, path)
		if err := os.Remove(localArtifact); err != nil && !os.IsNotExist(err) {
			log.Printf("orchestrator: remove stale artifact %s: %v", localArtifact, err)
		} else {
			removed++
		}
		if cloudEnabled {
			remotePath := pathJoinRemote(remoteRoot, path)
			if err := provider.Remove(remotePath); err != nil {
				log.Printf("orchestrator: remove stale cloud artifact %s: %v", remotePath, err)
			}
		}
	}
	return removed
}

func walkAndCopy(root string, cfg Config, newManifest io.Writer, priorManifest *os.File, filesRoot, deltasRoot, epoch string, provider cloudmirror.Provider, cloudEnabled bool, stats *Stats) error {
	it, err := walker.Start(root)
	if err != nil {
		return fmt.Errorf("open iterator for %s: %w", root, err)
	}
	it.SetSkip(func(path string) bool {
		return matchesExcludePrefix(path, cfg.Exclude)
	})

	for {
		path, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
		if !ok {
			break
		}

		decision, _, err := manifest.IncrementalWrite(newManifest, path, cfg.DigestKind, priorManifest)
		if err != nil {
			log.Printf("orchestrator: digest %s failed, skipping: %v", path, err)
			stats.FilesFailed++
			continue
		}
		if decision == manifest.Unchanged {
			stats.FilesUnchanged++
			continue
		}

		if err := transformAndStore(path, cfg, filesRoot, deltasRoot, epoch, provider, cloudEnabled); err != nil {
			log.Printf("orchestrator: %v", err)
			stats.FilesFailed++
			continue
		}
		if cfg.Verbose {
			log.Printf("wrote %s", path)
		}
		stats.FilesWritten++
	}
	return nil
}

func transformAndStore(path string, cfg Config, filesRoot, deltasRoot, epoch string, provider cloudmirror.Provider, cloudEnabled bool) error {
	localDst := filepath.Join(filesRoot, path)
	deltaDst := filepath.Join(deltasRoot, path+"."+epoch)

	if err := fsutil.MkdirParent(localDst); err != nil {
		return fmt.Errorf("mkdir parent of %s: %w", localDst, err)
	}
	if err := fsutil.MkdirParent(deltaDst); err != nil {
		return fmt.Errorf("mkdir parent of %s: %w", deltaDst, err)
	}

	if fsutil.Exists(localDst) {
		if err := fsutil.RenameFile(localDst, deltaDst); err != nil {
			log.Printf("orchestrator: delta rename of %s failed, overwriting in place: %v", localDst, err)
		}
	}

	if err := compressAndEncrypt(path, localDst, cfg); err != nil {
		return err
	}

	if cloudEnabled {
		remoteFilesPath := pathJoinRemote(cfg.RemoteRoot, path)
		remoteDeltasPath := pathJoinRemote(cfg.RemoteRoot, "deltas/"+path+"."+epoch)
		if err := cloudmirror.UploadArtifact(provider, localDst, remoteFilesPath, remoteDeltasPath); err != nil {
			log.Printf("orchestrator: cloud upload %s: %v", path, err)
		}
	}
	return nil
}

// compressAndEncrypt streams src through the compressor and (if
// configured) the cipher in a single pass, writing straight into dst
// instead of compressing to a file and then encrypting that file in
// place. The write chain nests cw (outermost, what the copy loop
// writes plaintext into) around ew (if present) around the destination
// file, and fsutil.ChainedWriteCloser closes them outermost-first (cw,
// then ew, then the file) on Close so the compressor's trailer lands in
// the cipher stream before the cipher's final block lands on disk.
func compressAndEncrypt(src, dst string, cfg Config) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	var downstream io.Writer = out
	closers := []io.Closer{out}

	if cfg.CipherSpec != nil {
		ew, err := cipherengine.NewEncryptWriter(out, *cfg.CipherSpec, cfg.Password)
		if err != nil {
			out.Close()
			return fmt.Errorf("encrypt %s: %w", dst, err)
		}
		downstream = ew
		closers = append(closers, ew)
	}

	cw, err := compressengine.OpenWrite(downstream, cfg.Compressor, cfg.CompLevel, cfg.CompFlags)
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return fmt.Errorf("compress %s: %w", src, err)
	}
	closers = append(closers, cw)

	chain := fsutil.NewChainedWriteCloser(cw, closers...)
	buf := make([]byte, fsutil.CopyBufferSize)
	if _, err := io.CopyBuffer(chain, in, buf); err != nil {
		chain.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := chain.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", dst, err)
	}
	return nil
}

func matchesExcludePrefix(path string, exclude []string) bool {
	for _, prefix := range exclude {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func pathJoinRemote(root, rel string) string {
	root = strings.TrimSuffix(root, "/")
	rel = strings.TrimPrefix(rel, "/")
	if root == "" {
		return rel
	}
	return root + "/" + rel
}
