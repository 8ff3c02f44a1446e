package cloudmirror

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/bling233/qbak/internal/secret"
)

// FTPConfig holds the connection parameters for an FTP-backed
// provider, the teacher's own anticipated-but-unbuilt backend (see
// core/network.go's Uploader stub and core/network_test.go's mock FTP
// server).
type FTPConfig struct {
	Addr     string // host:port
	User     string
	Password *secret.Secret
	Timeout  time.Duration
}

// FTPProvider mirrors artifacts to a remote FTP server via
// github.com/jlaffaye/ftp.
type FTPProvider struct {
	cfg  FTPConfig
	conn *ftp.ServerConn
}

// NewFTPProvider constructs a provider that is not yet connected;
// call Login to dial and authenticate.
func NewFTPProvider(cfg FTPConfig) *FTPProvider {
	return &FTPProvider{cfg: cfg}
}

func (p *FTPProvider) Login() error {
	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := ftp.Dial(p.cfg.Addr, ftp.DialWithTimeout(timeout))
	if err != nil {
		return fmt.Errorf("cloudmirror(ftp): dial %s: %w", p.cfg.Addr, err)
	}
	pw := ""
	if p.cfg.Password != nil {
		pw = string(p.cfg.Password.Bytes())
	}
	if err := conn.Login(p.cfg.User, pw); err != nil {
		conn.Quit()
		return fmt.Errorf("cloudmirror(ftp): login as %s: %w", p.cfg.User, err)
	}
	p.conn = conn
	return nil
}

func (p *FTPProvider) Logout() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Quit()
	p.conn = nil
	if err != nil {
		return fmt.Errorf("cloudmirror(ftp): logout: %w", err)
	}
	return nil
}

func (p *FTPProvider) Mkdir(remotePath string) error {
	if err := p.conn.MakeDir(remotePath); err != nil {
		return fmt.Errorf("cloudmirror(ftp): mkdir %s: %w", remotePath, err)
	}
	return nil
}

func (p *FTPProvider) Readdir(remotePath string) ([]Entry, error) {
	entries, err := p.conn.List(remotePath)
	if err != nil {
		return nil, fmt.Errorf("cloudmirror(ftp): readdir %s: %w", remotePath, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, Entry{
			Name:    e.Name,
			IsDir:   e.Type == ftp.EntryTypeFolder,
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	return out, nil
}

func (p *FTPProvider) Stat(remotePath string) (*Stat, bool, error) {
	dir, name := path.Dir(remotePath), path.Base(remotePath)
	entries, err := p.conn.List(dir)
	if err != nil {
		// A missing parent directory means the path itself is absent.
		return nil, false, nil
	}
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		return &Stat{
			IsDir: e.Type == ftp.EntryTypeFolder,
			Size:  int64(e.Size),
			MTime: e.Time,
		}, true, nil
	}
	return nil, false, nil
}

func (p *FTPProvider) Rename(oldPath, newPath string) error {
	if err := p.conn.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("cloudmirror(ftp): rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (p *FTPProvider) Upload(localSrc, remoteDst string) error {
	f, err := os.Open(localSrc)
	if err != nil {
		return fmt.Errorf("cloudmirror(ftp): open %s: %w", localSrc, err)
	}
	defer f.Close()
	if err := p.conn.Stor(remoteDst, f); err != nil {
		return fmt.Errorf("cloudmirror(ftp): store %s: %w", remoteDst, err)
	}
	return nil
}

func (p *FTPProvider) Download(remoteSrc, localDst string) error {
	resp, err := p.conn.Retr(remoteSrc)
	if err != nil {
		return fmt.Errorf("cloudmirror(ftp): retrieve %s: %w", remoteSrc, err)
	}
	defer resp.Close()

	out, err := os.Create(localDst)
	if err != nil {
		return fmt.Errorf("cloudmirror(ftp): create %s: %w", localDst, err)
	}
	defer out.Close()

	buf := make([]byte, 256*1024)
	if _, err := io.CopyBuffer(out, resp, buf); err != nil {
		return fmt.Errorf("cloudmirror(ftp): download %s -> %s: %w", remoteSrc, localDst, err)
	}
	return out.Close()
}

func (p *FTPProvider) Remove(remotePath string) error {
	if err := p.conn.Delete(remotePath); err != nil {
		return fmt.Errorf("cloudmirror(ftp): remove %s: %w", remotePath, err)
	}
	return nil
}
