package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bling233/qbak/internal/cipherengine"
	"github.com/bling233/qbak/internal/cloudmirror"
	"github.com/bling233/qbak/internal/compressengine"
	"github.com/bling233/qbak/internal/digest"
	"github.com/bling233/qbak/internal/orchestrator"
	"github.com/bling233/qbak/internal/scheduler"
	"github.com/bling233/qbak/internal/secret"
	"github.com/bling233/qbak/internal/taskstore"
)

func openStore(c *cli.Context) (*sql.DB, error) {
	return taskstore.Open(c.String("db"))
}

var dbFlag = &cli.StringFlag{Name: "db", Usage: "path to the task/history database (default ~/.qbak/history.db)"}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "manage and run cron-scheduled backup tasks",
		Flags: []cli.Flag{dbFlag},
		Subcommands: []*cli.Command{
			addTaskCommand(taskstore.TaskTypeSchedule),
			listTasksCommand(),
			removeTaskCommand(),
			runForegroundCommand(),
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "manage and run filesystem-watch triggered backup tasks",
		Flags: []cli.Flag{dbFlag},
		Subcommands: []*cli.Command{
			addTaskCommand(taskstore.TaskTypeWatch),
			listTasksCommand(),
			removeTaskCommand(),
			runForegroundCommand(),
		},
	}
}

func addTaskCommand(kind taskstore.TaskType) *cli.Command {
	flags := append([]cli.Flag{}, backupFlags...)
	if kind == taskstore.TaskTypeSchedule {
		flags = append(flags, &cli.StringFlag{Name: "cron", Usage: "cron expression, e.g. \"0 2 * * *\"", Required: true})
	} else {
		flags = append(flags, &cli.IntFlag{Name: "debounce-ms", Value: 500, Usage: "debounce window after a filesystem event"})
	}
	flags = append(flags, &cli.StringFlag{Name: "name", Required: true, Usage: "task name"})

	return &cli.Command{
		Name:  "add",
		Usage: fmt.Sprintf("register a new %s task", kind),
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}
			db, err := openStore(c)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			defer db.Close()

			task := taskstore.Task{
				Name:    c.String("name"),
				Type:    kind,
				Enabled: true,
				Config:  taskConfigFromOrchestratorConfig(c, cfg),
			}
			if kind == taskstore.TaskTypeSchedule {
				task.Config.CronExpr = c.String("cron")
			} else {
				task.Config.WatchPaths = cfg.Directories
				task.Config.WatchDebounceMs = c.Int("debounce-ms")
			}

			created, err := taskstore.CreateTask(db, task)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			fmt.Printf("created task %s (%s)\n", created.ID, created.Name)
			return nil
		},
	}
}

func listTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list persisted tasks",
		Action: func(c *cli.Context) error {
			db, err := openStore(c)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			defer db.Close()

			tasks, err := taskstore.ListTasks(db)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			for _, t := range tasks {
				fmt.Printf("%s\t%s\t%s\tenabled=%v\n", t.ID, t.Name, t.Type, t.Enabled)
			}
			return nil
		},
	}
}

func removeTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "delete a persisted task",
		ArgsUsage: "<task-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("qbak: expected <task-id>")
			}
			db, err := openStore(c)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			defer db.Close()
			return taskstore.DeleteTask(db, c.Args().Get(0))
		},
	}
}

// runForegroundCommand starts the scheduler and blocks, executing
// every enabled persisted task (both schedule and watch kinds run
// side by side under the same Runner).
func runForegroundCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the scheduler in the foreground, dispatching all enabled tasks",
		Action: func(c *cli.Context) error {
			db, err := openStore(c)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			defer db.Close()

			runner := scheduler.New(func(ctx context.Context, task taskstore.Task) (string, error) {
				return executeTask(db, task)
			})

			tasks, err := taskstore.ListTasks(db)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			for _, t := range tasks {
				if !t.Enabled {
					continue
				}
				if err := runner.Upsert(t); err != nil {
					fmt.Printf("qbak: could not register task %s: %v\n", t.ID, err)
				}
			}

			runner.Start()
			defer runner.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			fmt.Println("qbak: shutting down")
			return nil
		},
	}
}

func executeTask(db *sql.DB, task taskstore.Task) (string, error) {
	cfg, err := orchestratorConfigFromTaskConfig(task.Config)
	if err != nil {
		return "", err
	}

	stats, err := runBackup(cfg)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("wrote %d unchanged %d failed %d deleted %d",
		stats.FilesWritten, stats.FilesUnchanged, stats.FilesFailed, stats.FilesDeleted)
	if err := taskstore.AddRecord(db, task.Name, cfg.OutputRoot, cfg.Directories); err != nil {
		fmt.Printf("qbak: could not record run history for task %s: %v\n", task.ID, err)
	}

	task.Config.LastRunAt = stats.FinishedAt
	if err := taskstore.UpdateTask(db, task); err != nil {
		fmt.Printf("qbak: could not update last-run time for task %s: %v\n", task.ID, err)
	}
	return summary, nil
}

func taskConfigFromOrchestratorConfig(c *cli.Context, cfg orchestrator.Config) taskstore.TaskConfig {
	cipherName := ""
	if cfg.CipherSpec != nil {
		cipherName = cfg.CipherSpec.Name
	}
	return taskstore.TaskConfig{
		Directories:     cfg.Directories,
		Exclude:         cfg.Exclude,
		OutputRoot:      cfg.OutputRoot,
		DigestKind:      string(cfg.DigestKind),
		Compressor:      string(cfg.Compressor),
		CompLevel:       cfg.CompLevel,
		CipherName:      cipherName,
		Password:        c.String("password"),
		CloudProviderID: c.String("cloud-provider"),
		CloudAddr:       c.String("cloud-addr"),
		CloudUser:       c.String("cloud-user"),
		CloudPassword:   c.String("cloud-password"),
		CloudBucket:     c.String("cloud-bucket"),
		CloudRegion:     c.String("cloud-region"),
		RemoteRoot:      cfg.RemoteRoot,
	}
}

func orchestratorConfigFromTaskConfig(tc taskstore.TaskConfig) (orchestrator.Config, error) {
	var cfg orchestrator.Config
	cfg.Directories = tc.Directories
	cfg.Exclude = tc.Exclude
	cfg.OutputRoot = tc.OutputRoot
	cfg.RemoteRoot = tc.RemoteRoot

	kind, err := digest.ParseKind(tc.DigestKind)
	if err != nil {
		return cfg, fmt.Errorf("task config: %w", err)
	}
	cfg.DigestKind = kind

	codec, err := compressengine.ParseCodec(tc.Compressor)
	if err != nil {
		return cfg, fmt.Errorf("task config: %w", err)
	}
	cfg.Compressor = codec
	cfg.CompLevel = tc.CompLevel

	if tc.CipherName != "" {
		spec, err := cipherengine.ParseCipher(tc.CipherName)
		if err != nil {
			return cfg, fmt.Errorf("task config: %w", err)
		}
		cfg.CipherSpec = &spec
		cfg.Password = secret.FromString(tc.Password)
	}

	switch tc.CloudProviderID {
	case "", "none":
	case "ftp":
		cfg.Provider = cloudmirror.NewFTPProvider(cloudmirror.FTPConfig{
			Addr:     tc.CloudAddr,
			User:     tc.CloudUser,
			Password: secret.FromString(tc.CloudPassword),
		})
	case "s3":
		cfg.Provider = cloudmirror.NewS3Provider(cloudmirror.S3Config{
			Bucket: tc.CloudBucket,
			Prefix: tc.RemoteRoot,
			Region: tc.CloudRegion,
		})
	default:
		return cfg, fmt.Errorf("task config: unknown cloud provider %q", tc.CloudProviderID)
	}

	return cfg, nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list past backup runs",
		Flags: []cli.Flag{dbFlag},
		Action: func(c *cli.Context) error {
			db, err := openStore(c)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			defer db.Close()

			records, err := taskstore.ListRecords(db)
			if err != nil {
				return fmt.Errorf("qbak: %w", err)
			}
			for _, r := range records {
				fmt.Printf("%d\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Name, r.OutputRoot)
			}
			return nil
		},
	}
}
