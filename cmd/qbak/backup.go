package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bling233/qbak/internal/options"
	"github.com/bling233/qbak/internal/orchestrator"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "run one incremental backup pass",
		Flags: append(backupFlags,
			&cli.StringFlag{Name: "save-config", Usage: "write the resolved options out to this qbak.conf path"},
		),
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}

			if savePath := c.String("save-config"); savePath != "" {
				if err := options.SaveFile(savePath, toOptions(c, cfg)); err != nil {
					return fmt.Errorf("qbak: save config: %w", err)
				}
			}

			stats, err := runBackup(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("wrote %d, unchanged %d, failed %d, deleted %d, took %s\n",
				stats.FilesWritten, stats.FilesUnchanged, stats.FilesFailed, stats.FilesDeleted,
				stats.FinishedAt.Sub(stats.StartedAt))
			return nil
		},
	}
}

// runBackup is the single call site every entrypoint (backup command,
// schedule executor, watch executor) funnels through, so the run's
// epoch timestamp is always captured exactly once.
func runBackup(cfg orchestrator.Config) (orchestrator.Stats, error) {
	return orchestrator.Run(cfg, time.Now())
}
