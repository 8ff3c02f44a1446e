package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bling233/qbak/internal/manifest"
)

func manifestCommand() *cli.Command {
	return &cli.Command{
		Name:  "manifest",
		Usage: "inspect or maintain a checksums.txt manifest",
		Subcommands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "find a path's recorded digest in a sorted manifest",
				ArgsUsage: "<manifest-file> <path>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("qbak manifest search: expected <manifest-file> <path>")
					}
					f, err := os.Open(c.Args().Get(0))
					if err != nil {
						return fmt.Errorf("qbak: %w", err)
					}
					defer f.Close()

					digest, found, err := manifest.Search(f, c.Args().Get(1))
					if err != nil {
						return fmt.Errorf("qbak: %w", err)
					}
					if !found {
						fmt.Println("not found")
						return cli.Exit("", 1)
					}
					fmt.Println(digest)
					return nil
				},
			},
			{
				Name:      "sort",
				Usage:     "sort a manifest file in place by path",
				ArgsUsage: "<manifest-file>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("qbak manifest sort: expected <manifest-file>")
					}
					if err := manifest.SortFile(c.Args().Get(0)); err != nil {
						return fmt.Errorf("qbak: %w", err)
					}
					return nil
				},
			},
		},
	}
}
