// Command qbak is the CLI entrypoint for the incremental
// content-addressed backup tool, structured the way
// standardbeagle-lci's cmd/lci/main.go builds its urfave/cli/v2
// command tree: one *cli.App with global flags and a flat slice of
// subcommands, each owning its own flag set.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "qbak",
		Usage: "incremental, content-addressed backup with optional compression, encryption, and cloud mirroring",
		Commands: []*cli.Command{
			backupCommand(),
			restoreCommand(),
			manifestCommand(),
			scheduleCommand(),
			watchCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "qbak:", err)
		os.Exit(1)
	}
}
