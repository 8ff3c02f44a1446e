package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/bling233/qbak/internal/cipherengine"
	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
	"github.com/bling233/qbak/internal/options"
	"github.com/bling233/qbak/internal/orchestrator"
	"github.com/bling233/qbak/internal/secret"
)

var backupFlags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "qbak.conf file to load as defaults (CLI flags override it)"},
	&cli.StringSliceFlag{Name: "dir", Aliases: []string{"d"}, Usage: "source directory to back up (repeatable)"},
	&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"e"}, Usage: "path prefix to exclude (repeatable)"},
	&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "destination root for the backup tree", Required: true},
	&cli.StringFlag{Name: "digest", Value: "sha256", Usage: "digest kind: sha1, sha256, sha512, md5, none"},
	&cli.StringFlag{Name: "compressor", Value: "none", Usage: "compressor: none, gzip, bzip2, xz, lz4"},
	&cli.IntFlag{Name: "comp-level", Value: 6, Usage: "compression level"},
	&cli.StringFlag{Name: "cipher", Usage: "cipher: aes-256-cbc, aes-256-ctr, camellia-256-cbc, chacha20, ... (empty disables encryption)"},
	&cli.StringFlag{Name: "password", Usage: "encryption password"},
	&cli.StringFlag{Name: "cloud-provider", Value: "none", Usage: "cloud mirror provider: none, ftp, s3"},
	&cli.StringFlag{Name: "cloud-addr", Usage: "ftp: host:port"},
	&cli.StringFlag{Name: "cloud-user", Usage: "ftp: username"},
	&cli.StringFlag{Name: "cloud-password", Usage: "ftp: password"},
	&cli.StringFlag{Name: "cloud-bucket", Usage: "s3: bucket name"},
	&cli.StringFlag{Name: "cloud-region", Usage: "s3: region"},
	&cli.StringFlag{Name: "remote-root", Usage: "remote path prefix for cloud mirroring"},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every file written"},
}

// resolveConfig translates backupFlags' values into an
// orchestrator.Config, the same "load file, then apply CLI overrides"
// shape standardbeagle-lci's loadConfigWithOverrides uses: a
// --config qbak.conf file (internal/options' key=value format)
// supplies defaults, and any flag the user actually set on the
// command line wins over it.
func resolveConfig(c *cli.Context) (orchestrator.Config, error) {
	defaults := map[string]string{}
	if path := c.String("config"); path != "" {
		loaded, err := options.LoadFile(path)
		if err != nil {
			return orchestrator.Config{}, fmt.Errorf("qbak: %w", err)
		}
		defaults = loaded
	}

	var cfg orchestrator.Config

	cfg.Directories = c.StringSlice("dir")
	if !c.IsSet("dir") {
		cfg.Directories = options.SplitList(defaults["directories"])
	}
	cfg.Exclude = c.StringSlice("exclude")
	if !c.IsSet("exclude") {
		cfg.Exclude = options.SplitList(defaults["exclude"])
	}
	cfg.OutputRoot = stringOrDefault(c, "output", defaults["output_root"])
	cfg.Verbose = c.Bool("verbose")
	if !c.IsSet("verbose") {
		if v, err := strconv.ParseBool(defaults["verbose"]); err == nil {
			cfg.Verbose = v
		}
	}
	cfg.RemoteRoot = stringOrDefault(c, "remote-root", defaults["cloud_remote_root"])

	digestKind, err := digest.ParseKind(stringOrDefault(c, "digest", defaults["digest_kind"]))
	if err != nil {
		return cfg, fmt.Errorf("qbak: %w", err)
	}
	cfg.DigestKind = digestKind

	codec, err := compressengine.ParseCodec(stringOrDefault(c, "compressor", defaults["compressor"]))
	if err != nil {
		return cfg, fmt.Errorf("qbak: %w", err)
	}
	cfg.Compressor = codec
	cfg.CompLevel = c.Int("comp-level")
	if !c.IsSet("comp-level") {
		if n, err := strconv.Atoi(defaults["comp_level"]); err == nil {
			cfg.CompLevel = n
		}
	}

	if cipherName := stringOrDefault(c, "cipher", defaults["cipher_name"]); cipherName != "" {
		spec, err := cipherengine.ParseCipher(cipherName)
		if err != nil {
			return cfg, fmt.Errorf("qbak: %w", err)
		}
		cfg.CipherSpec = &spec
		cfg.Password = secret.FromString(c.String("password"))
	}

	provider, err := resolveProvider(c, defaults)
	if err != nil {
		return cfg, err
	}
	cfg.Provider = provider

	if len(cfg.Directories) == 0 {
		return cfg, fmt.Errorf("qbak: at least one --dir is required")
	}
	return cfg, nil
}

// stringOrDefault returns c's flag value when the user explicitly set
// it, otherwise fallback (a value loaded from a --config file, which
// may itself be empty).
func stringOrDefault(c *cli.Context, flag, fallback string) string {
	if c.IsSet(flag) || fallback == "" {
		return c.String(flag)
	}
	return fallback
}

func resolveProvider(c *cli.Context, defaults map[string]string) (cloudmirror.Provider, error) {
	switch stringOrDefault(c, "cloud-provider", defaults["cloud_provider"]) {
	case "", "none":
		return nil, nil
	case "ftp":
		return cloudmirror.NewFTPProvider(cloudmirror.FTPConfig{
			Addr:     c.String("cloud-addr"),
			User:     stringOrDefault(c, "cloud-user", defaults["cloud_user"]),
			Password: secret.FromString(c.String("cloud-password")),
		}), nil
	case "s3":
		return cloudmirror.NewS3Provider(cloudmirror.S3Config{
			Bucket: c.String("cloud-bucket"),
			Prefix: stringOrDefault(c, "remote-root", defaults["cloud_remote_root"]),
			Region: c.String("cloud-region"),
		}), nil
	default:
		return nil, fmt.Errorf("qbak: unknown cloud provider %q", c.String("cloud-provider"))
	}
}

// toOptions mirrors resolveConfig's flag values into the
// internal/options.Options record for qbak.conf persistence.
func toOptions(c *cli.Context, cfg orchestrator.Config) options.Options {
	cipherName := ""
	if cfg.CipherSpec != nil {
		cipherName = cfg.CipherSpec.Name
	}
	return options.Options{
		Directories: cfg.Directories,
		Exclude:     cfg.Exclude,
		DigestKind:  cfg.DigestKind,
		CipherName:  cipherName,
		Password:    cfg.Password,
		Compressor:  cfg.Compressor,
		CompLevel:   cfg.CompLevel,
		CompFlags:   cfg.CompFlags,
		OutputRoot:  cfg.OutputRoot,
		CloudTarget: options.CloudTarget{
			ProviderID: c.String("cloud-provider"),
			User:       c.String("cloud-user"),
			RemoteRoot: cfg.RemoteRoot,
		},
		Verbose: cfg.Verbose,
	}
}
