// Package cipherengine implements the openssl-compatible salted
// encryption contract from spec.md §4.6: a "Salted__" + 8-byte-salt
// header, an EVP_BytesToKey-style key/IV derivation, and streaming
// encrypt/decrypt over the resulting cipher. AES modes are built on
// stdlib crypto/aes + crypto/cipher (no ecosystem replacement exists
// for the block-cipher primitive itself); Camellia and ChaCha20 come
// from golang.org/x/crypto, a teacher dependency already present for
// this purpose. This replaces the teacher's from-scratch AES/ChaCha20
// math in core/crypto.go with the real implementations the Go crypto
// ecosystem provides.
package cipherengine

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/camellia"
	"golang.org/x/crypto/chacha20"

	"github.com/bling233/qbak/internal/secret"
)

const (
	saltMagic = "Salted__"
	saltSize  = 8
	headerLen = len(saltMagic) + saltSize
)

type mode int

const (
	modeCBC mode = iota
	modeCTR
	modeStream
)

// Spec describes a resolved cipher: its key size, block constructor,
// and block-chaining mode.
type Spec struct {
	Name      string
	KeySize   int
	IVSize    int
	mode      mode
	newBlock  func(key []byte) (cipher.Block, error)
	newStream func(key, iv []byte) (cipher.Stream, error)
}

// ParseCipher resolves a cipher name case-insensitively. Recognized
// forms: aes-{128,192,256}-{cbc,ctr}, camellia-{128,192,256}-{cbc,ctr},
// chacha20. "none" is rejected here; callers check for "none" before
// invoking the cipher engine at all.
func ParseCipher(name string) (Spec, error) {
	lname := strings.ToLower(name)
	if lname == "" {
		lname = "aes-256-cbc"
	}
	if lname == "chacha20" {
		return Spec{
			Name:    "chacha20",
			KeySize: chacha20.KeySize,
			IVSize:  chacha20.NonceSize,
			mode:    modeStream,
			newStream: func(key, iv []byte) (cipher.Stream, error) {
				return chacha20.NewUnauthenticatedCipher(key, iv)
			},
		}, nil
	}

	parts := strings.Split(lname, "-")
	if len(parts) != 3 {
		return Spec{}, fmt.Errorf("cipherengine: unrecognized cipher %q", name)
	}
	algo, bitsStr, chain := parts[0], parts[1], parts[2]

	var bits int
	switch bitsStr {
	case "128":
		bits = 128
	case "192":
		bits = 192
	case "256":
		bits = 256
	default:
		return Spec{}, fmt.Errorf("cipherengine: unrecognized key size in %q", name)
	}
	keySize := bits / 8

	var newBlock func([]byte) (cipher.Block, error)
	var blockSize int
	switch algo {
	case "aes":
		newBlock = aes.NewCipher
		blockSize = aes.BlockSize
	case "camellia":
		newBlock = camellia.New
		blockSize = camellia.BlockSize
	default:
		return Spec{}, fmt.Errorf("cipherengine: unrecognized algorithm in %q", name)
	}

	switch chain {
	case "cbc":
		return Spec{Name: lname, KeySize: keySize, IVSize: blockSize, mode: modeCBC, newBlock: newBlock}, nil
	case "ctr":
		return Spec{Name: lname, KeySize: keySize, IVSize: blockSize, mode: modeCTR, newBlock: newBlock}, nil
	default:
		return Spec{}, fmt.Errorf("cipherengine: unrecognized chaining mode in %q", name)
	}
}

// DeriveKey implements the single-iteration, SHA-256-based
// EVP_BytesToKey construction openssl enc uses by default for
// interoperability with `openssl enc -e -S <salt-hex> ... -md sha256`.
func DeriveKey(password *secret.Secret, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	need := keyLen + ivLen
	var generated []byte
	var prev []byte
	for len(generated) < need {
		h := sha256.New()
		h.Write(prev)
		h.Write(password.Bytes())
		h.Write(salt)
		prev = h.Sum(nil)
		generated = append(generated, prev...)
	}
	return generated[:keyLen], generated[keyLen : keyLen+ivLen]
}

// EncryptFile streams src through the cipher into dst, writing the
// Salted__ header first.
func EncryptFile(src, dst string, spec Spec, password *secret.Secret) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cipherengine: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cipherengine: create %s: %w", dst, err)
	}
	defer out.Close()

	ew, err := NewEncryptWriter(out, spec, password)
	if err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(ew, in, buf); err != nil {
		ew.Close()
		return fmt.Errorf("cipherengine: encrypt %s: %w", src, err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("cipherengine: finalize %s: %w", dst, err)
	}
	return out.Close()
}

// DecryptFile reads the Salted__ header from src, re-derives the key,
// and streams the decrypted plaintext into dst.
func DecryptFile(src, dst string, spec Spec, password *secret.Secret) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cipherengine: open %s: %w", src, err)
	}
	defer in.Close()

	dr, err := NewDecryptReader(in, spec, password)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cipherengine: create %s: %w", dst, err)
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(out, dr, buf); err != nil {
		return fmt.Errorf("cipherengine: decrypt %s: %w", src, err)
	}
	return out.Close()
}

// EncryptInPlace renames path to a temp sibling, encrypts from the
// temp file back into path, and unlinks the temp file on success. On
// any failure, path is restored from the temp file so the caller
// never observes a torn artifact.
func EncryptInPlace(path string, spec Spec, password *secret.Secret) error {
	tmp := path + ".qbak-plain"
	if err := os.Rename(path, tmp); err != nil {
		return fmt.Errorf("cipherengine: stage %s for in-place encryption: %w", path, err)
	}
	if err := EncryptFile(tmp, path, spec, password); err != nil {
		if restoreErr := os.Rename(tmp, path); restoreErr != nil {
			return fmt.Errorf("cipherengine: encrypt failed (%v) and restore failed: %w", err, restoreErr)
		}
		return fmt.Errorf("cipherengine: encrypt in place %s: %w", path, err)
	}
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cipherengine: unlink staged plaintext %s: %w", tmp, err)
	}
	return nil
}

// NewEncryptWriter writes the Salted__ header to w and returns a
// WriteCloser that encrypts everything subsequently written to it.
func NewEncryptWriter(w io.Writer, spec Spec, password *secret.Secret) (io.WriteCloser, error) {
	salt, err := secret.Random(saltSize)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(saltMagic)); err != nil {
		return nil, fmt.Errorf("cipherengine: write header magic: %w", err)
	}
	if _, err := w.Write(salt); err != nil {
		return nil, fmt.Errorf("cipherengine: write salt: %w", err)
	}

	key, iv := DeriveKey(password, salt, spec.KeySize, spec.IVSize)
	defer secret.Wipe(key)

	switch spec.mode {
	case modeStream:
		stream, err := spec.newStream(key, iv)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init stream cipher: %w", err)
		}
		return nopCloseWriter{&cipher.StreamWriter{S: stream, W: w}}, nil
	case modeCTR:
		block, err := spec.newBlock(key)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init block cipher: %w", err)
		}
		stream := cipher.NewCTR(block, iv)
		return nopCloseWriter{&cipher.StreamWriter{S: stream, W: w}}, nil
	case modeCBC:
		block, err := spec.newBlock(key)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init block cipher: %w", err)
		}
		return newCBCEncryptWriter(w, block, iv), nil
	default:
		return nil, fmt.Errorf("cipherengine: unknown mode for %s", spec.Name)
	}
}

// NewDecryptReader reads and validates the Salted__ header from r and
// returns a Reader that decrypts everything subsequently read from it.
func NewDecryptReader(r io.Reader, spec Spec, password *secret.Secret) (io.Reader, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("cipherengine: read header: %w", err)
	}
	if string(header[:len(saltMagic)]) != saltMagic {
		return nil, fmt.Errorf("cipherengine: missing Salted__ magic")
	}
	salt := header[len(saltMagic):]

	key, iv := DeriveKey(password, salt, spec.KeySize, spec.IVSize)
	defer secret.Wipe(key)

	switch spec.mode {
	case modeStream:
		stream, err := spec.newStream(key, iv)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init stream cipher: %w", err)
		}
		return &cipher.StreamReader{S: stream, R: r}, nil
	case modeCTR:
		block, err := spec.newBlock(key)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init block cipher: %w", err)
		}
		stream := cipher.NewCTR(block, iv)
		return &cipher.StreamReader{S: stream, R: r}, nil
	case modeCBC:
		block, err := spec.newBlock(key)
		if err != nil {
			return nil, fmt.Errorf("cipherengine: init block cipher: %w", err)
		}
		return newCBCDecryptReader(r, block, iv), nil
	default:
		return nil, fmt.Errorf("cipherengine: unknown mode for %s", spec.Name)
	}
}

type nopCloseWriter struct{ io.Writer }

func (nopCloseWriter) Close() error { return nil }

// cbcEncryptWriter buffers input into block-sized chunks, encrypting
// each full block as it fills and applying PKCS#7 padding to the
// final partial block on Close.
type cbcEncryptWriter struct {
	w       io.Writer
	stream  cipher.BlockMode
	block   cipher.Block
	pending []byte
	closed  bool
}

func newCBCEncryptWriter(w io.Writer, block cipher.Block, iv []byte) *cbcEncryptWriter {
	return &cbcEncryptWriter{
		w:      w,
		stream: cipher.NewCBCEncrypter(block, iv),
		block:  block,
	}
}

func (c *cbcEncryptWriter) Write(p []byte) (int, error) {
	n := len(p)
	c.pending = append(c.pending, p...)
	bs := c.block.BlockSize()
	for len(c.pending) >= bs {
		out := make([]byte, bs)
		c.stream.CryptBlocks(out, c.pending[:bs])
		if _, err := c.w.Write(out); err != nil {
			return 0, fmt.Errorf("cipherengine: write ciphertext block: %w", err)
		}
		c.pending = c.pending[bs:]
	}
	return n, nil
}

func (c *cbcEncryptWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	bs := c.block.BlockSize()
	padLen := bs - len(c.pending)%bs
	padded := append(c.pending, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, len(padded))
	c.stream.CryptBlocks(out, padded)
	_, err := c.w.Write(out)
	return err
}

// cbcDecryptReader decrypts block-wise. It always keeps one decrypted
// block held back (current) until it has successfully fetched and
// decrypted the following block, so that when input is finally
// exhausted the held-back block is known to be the padded final one
// and its PKCS#7 padding can be stripped before it is ever handed to
// the caller.
type cbcDecryptReader struct {
	r       io.Reader
	stream  cipher.BlockMode
	block   cipher.Block
	bs      int
	primed  bool
	current []byte // decrypted, not-yet-known-final block awaiting emission
	outbuf  []byte // emitted bytes not yet copied out via Read
	done    bool
}

func newCBCDecryptReader(r io.Reader, block cipher.Block, iv []byte) *cbcDecryptReader {
	return &cbcDecryptReader{
		r:      r,
		stream: cipher.NewCBCDecrypter(block, iv),
		block:  block,
		bs:     block.BlockSize(),
	}
}

func (c *cbcDecryptReader) readBlock() ([]byte, error) {
	buf := make([]byte, c.bs)
	n, err := io.ReadFull(c.r, buf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("cipherengine: read ciphertext block: %w", err)
	}
	if n != c.bs {
		return nil, fmt.Errorf("cipherengine: truncated ciphertext")
	}
	plain := make([]byte, c.bs)
	c.stream.CryptBlocks(plain, buf)
	return plain, nil
}

func (c *cbcDecryptReader) prime() error {
	first, err := c.readBlock()
	if err == io.EOF {
		c.done = true
		return nil
	}
	if err != nil {
		return err
	}
	c.current = first
	c.primed = true
	return nil
}

func (c *cbcDecryptReader) Read(p []byte) (int, error) {
	if !c.primed && !c.done {
		if err := c.prime(); err != nil {
			return 0, err
		}
	}
	for len(c.outbuf) == 0 {
		if c.done {
			return 0, io.EOF
		}
		next, err := c.readBlock()
		if err == io.EOF {
			padLen := int(c.current[c.bs-1])
			if padLen < 1 || padLen > c.bs {
				return 0, fmt.Errorf("cipherengine: invalid padding")
			}
			c.outbuf = c.current[:c.bs-padLen]
			c.current = nil
			c.done = true
			break
		}
		if err != nil {
			return 0, err
		}
		c.outbuf = c.current
		c.current = next
	}
	n := copy(p, c.outbuf)
	c.outbuf = c.outbuf[n:]
	return n, nil
}
