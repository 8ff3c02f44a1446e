package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bling233/qbak/internal/cipherengine"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/fsutil"
	"github.com/bling233/qbak/internal/secret"
)

// restoreCommand reverses the per-file transform chain
// (decrypt-then-decompress) for exactly one stored artifact. Per
// spec.md's non-goals, qbak does not plan a restore over a whole
// snapshot or prior manifest — each invocation names one source and
// one destination path, mirroring how the forward pipeline's
// transformAndStore is itself a one-file-at-a-time operation.
func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "recover one stored artifact to a destination path",
		ArgsUsage: "<stored-artifact> <destination>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "compressor", Value: "none", Usage: "compressor the artifact was stored with"},
			&cli.StringFlag{Name: "cipher", Usage: "cipher the artifact was stored with (empty if none)"},
			&cli.StringFlag{Name: "password", Usage: "decryption password"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("qbak restore: expected <stored-artifact> <destination>")
			}
			src := c.Args().Get(0)
			dst := c.Args().Get(1)

			codec, err := compressengine.ParseCodec(c.String("compressor"))
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}

			if err := decryptAndDecompress(src, dst, codec, c.String("cipher"), c.String("password")); err != nil {
				return err
			}

			fmt.Printf("restored %s -> %s\n", src, dst)
			return nil
		},
	}
}

// decryptAndDecompress reverses the forward transform chain
// (compress-then-encrypt on write becomes decrypt-then-decompress on
// read) in a single streaming pass: the cipher reader is layered
// directly under the decompressor instead of decrypting to a whole
// intermediate file first.
func decryptAndDecompress(src, dst string, codec compressengine.Codec, cipherName, password string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("qbak: open %s: %w", src, err)
	}

	var upstream io.Reader = in
	if cipherName != "" {
		spec, err := cipherengine.ParseCipher(cipherName)
		if err != nil {
			in.Close()
			return fmt.Errorf("qbak: %w", err)
		}
		dr, err := cipherengine.NewDecryptReader(in, spec, secret.FromString(password))
		if err != nil {
			in.Close()
			return fmt.Errorf("qbak: decrypt %s: %w", src, err)
		}
		upstream = dr
	}

	cr, err := compressengine.OpenRead(upstream, codec)
	if err != nil {
		in.Close()
		return fmt.Errorf("qbak: decompress %s: %w", src, err)
	}
	chain := fsutil.NewChainedReadCloser(cr, in, cr)
	defer chain.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("qbak: create %s: %w", dst, err)
	}
	defer out.Close()

	buf := make([]byte, fsutil.CopyBufferSize)
	if _, err := io.CopyBuffer(out, chain, buf); err != nil {
		return fmt.Errorf("qbak: restore %s: %w", src, err)
	}
	return out.Close()
}
