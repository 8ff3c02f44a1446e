// Package taskstore persists run history and scheduled/watch task
// definitions in a SQLite database, adapted from the teacher's
// database.go InitializeDatabase and tasks.go's task CRUD
// (loadTasksFromDB, CreateTask, UpdateTask, DeleteTask). The teacher
// kept this logic inline on its Wails App struct; here it is its own
// package so cmd/qbak and internal/scheduler can share it without a
// GUI dependency.
package taskstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TaskType distinguishes a cron-scheduled task from a filesystem-watch
// triggered one, mirroring the teacher's core.TaskType.
type TaskType string

const (
	TaskTypeSchedule TaskType = "schedule"
	TaskTypeWatch    TaskType = "watch"
)

// TaskConfig is the JSON-serialized body of a scheduled or watched
// backup task. Field names follow the teacher's core.TaskConfig,
// adapted to qbak's Options-shaped run configuration in place of the
// teacher's single-archive-file Backup()/BackupIncremental() knobs.
type TaskConfig struct {
	Directories     []string  `json:"directories"`
	Exclude         []string  `json:"exclude"`
	OutputRoot      string    `json:"outputRoot"`
	DigestKind      string    `json:"digestKind"`
	Compressor      string    `json:"compressor"`
	CompLevel       int       `json:"compLevel"`
	CipherName      string    `json:"cipherName"`
	Password        string    `json:"password"`
	CloudProviderID string    `json:"cloudProviderId"`
	CloudAddr       string    `json:"cloudAddr"`
	CloudUser       string    `json:"cloudUser"`
	CloudPassword   string    `json:"cloudPassword"`
	CloudBucket     string    `json:"cloudBucket"`
	CloudRegion     string    `json:"cloudRegion"`
	RemoteRoot      string    `json:"remoteRoot"`
	CronExpr        string    `json:"cronExpr"`
	WatchPaths      []string  `json:"watchPaths"`
	WatchDebounceMs int       `json:"watchDebounceMs"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	LastRunAt       time.Time `json:"lastRunAt"`
}

// Task is one persisted schedule/watch definition.
type Task struct {
	ID      string
	Name    string
	Type    TaskType
	Enabled bool
	Config  TaskConfig
}

// Record is one completed run's history entry.
type Record struct {
	ID          int64
	Name        string
	OutputRoot  string
	SourcePaths []string
	CreatedAt   time.Time
}

// Open creates (if needed) and opens the SQLite database at dbPath,
// ensuring the backups/tasks schema exists. Passing "" resolves to
// ~/.qbak/history.db, matching the teacher's per-user app-data layout.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("taskstore: resolve home dir: %w", err)
		}
		dbDir := filepath.Join(home, ".qbak")
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("taskstore: create %s: %w", dbDir, err)
		}
		dbPath = filepath.Join(dbDir, "history.db")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("taskstore: open %s: %w", dbPath, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backups (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			output_root TEXT,
			source_paths TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("taskstore: migrate: %w", err)
		}
	}
	return nil
}

// AddRecord appends a completed-run history entry.
func AddRecord(db *sql.DB, name, outputRoot string, sourcePaths []string) error {
	_, err := db.Exec(
		"INSERT INTO backups(name, output_root, source_paths, created_at) VALUES(?, ?, ?, ?)",
		name, outputRoot, strings.Join(sourcePaths, "\x1f"), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("taskstore: add record: %w", err)
	}
	return nil
}

// ListRecords returns run history, most recent first.
func ListRecords(db *sql.DB) ([]Record, error) {
	rows, err := db.Query("SELECT id, name, output_root, source_paths, created_at FROM backups ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("taskstore: list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var sourcePaths string
		if err := rows.Scan(&r.ID, &r.Name, &r.OutputRoot, &sourcePaths, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("taskstore: scan record: %w", err)
		}
		if sourcePaths != "" {
			r.SourcePaths = strings.Split(sourcePaths, "\x1f")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTasks loads every persisted task, newest first.
func ListTasks(db *sql.DB) ([]Task, error) {
	rows, err := db.Query("SELECT id, name, type, enabled, config_json FROM tasks ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("taskstore: list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var (
			id        int
			name      string
			typ       string
			enabled   int
			configRaw string
		)
		if err := rows.Scan(&id, &name, &typ, &enabled, &configRaw); err != nil {
			return nil, fmt.Errorf("taskstore: scan task: %w", err)
		}
		var cfg TaskConfig
		if err := json.Unmarshal([]byte(configRaw), &cfg); err != nil {
			return nil, fmt.Errorf("taskstore: parse task %d config: %w", id, err)
		}
		out = append(out, Task{
			ID:      strconv.Itoa(id),
			Name:    name,
			Type:    TaskType(typ),
			Enabled: enabled != 0,
			Config:  cfg,
		})
	}
	return out, rows.Err()
}

// CreateTask inserts a new task and returns it with its assigned ID.
func CreateTask(db *sql.DB, task Task) (Task, error) {
	if strings.TrimSpace(task.Name) == "" {
		return Task{}, fmt.Errorf("taskstore: task name cannot be empty")
	}
	if task.Type != TaskTypeSchedule && task.Type != TaskTypeWatch {
		return Task{}, fmt.Errorf("taskstore: invalid task type: %s", task.Type)
	}

	now := time.Now()
	task.Config.CreatedAt = now
	task.Config.UpdatedAt = now

	cfgBytes, err := json.Marshal(task.Config)
	if err != nil {
		return Task{}, fmt.Errorf("taskstore: marshal config: %w", err)
	}

	res, err := db.Exec(
		"INSERT INTO tasks(name, type, enabled, config_json, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)",
		task.Name, string(task.Type), boolToInt(task.Enabled), string(cfgBytes), now, now,
	)
	if err != nil {
		return Task{}, fmt.Errorf("taskstore: insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("taskstore: read inserted id: %w", err)
	}
	task.ID = strconv.FormatInt(id, 10)
	return task, nil
}

// UpdateTask persists task's current fields over its existing row.
func UpdateTask(db *sql.DB, task Task) error {
	id, err := strconv.Atoi(task.ID)
	if err != nil {
		return fmt.Errorf("taskstore: invalid task id %q: %w", task.ID, err)
	}

	task.Config.UpdatedAt = time.Now()
	cfgBytes, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("taskstore: marshal config: %w", err)
	}

	_, err = db.Exec(
		"UPDATE tasks SET name = ?, type = ?, enabled = ?, config_json = ?, updated_at = ? WHERE id = ?",
		task.Name, string(task.Type), boolToInt(task.Enabled), string(cfgBytes), task.Config.UpdatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("taskstore: update task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes a task by ID.
func DeleteTask(db *sql.DB, taskID string) error {
	id, err := strconv.Atoi(taskID)
	if err != nil {
		return fmt.Errorf("taskstore: invalid task id %q: %w", taskID, err)
	}
	if _, err := db.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("taskstore: delete task %s: %w", taskID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
