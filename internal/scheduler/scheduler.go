// Package scheduler re-invokes internal/orchestrator runs on a cron
// expression or in response to filesystem changes, replacing the
// teacher's core.TaskRunner (which re-ran its single-archive-file
// Backup()/BackupIncremental() the same way). The cron/fsnotify wiring
// itself has one idiomatic shape and is kept close to the teacher's;
// what changes is how a triggered run is dispatched: spec.md section 5
// requires single-threaded, destination-ordered execution with no
// multi-writer concurrency, so every task — cron or watch, any task ID
// — funnels through one dispatch goroutine instead of each task
// retrying itself independently the way the teacher's per-task
// running/pending flags did. A task already waiting its turn is not
// queued twice, and Status reports the outcome of each task's last run
// instead of the teacher's single LastBackupPath field, which qbak has
// no equivalent of (a run writes into a destination tree, not one
// archive file).
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/bling233/qbak/internal/taskstore"
)

// Executor runs one task to completion and reports a human-readable
// summary (or an error). cmd/qbak supplies the real implementation,
// translating a taskstore.TaskConfig into an orchestrator.Config and
// calling orchestrator.Run.
type Executor func(ctx context.Context, task taskstore.Task) (summary string, err error)

// RunStatus is the outcome of a task's most recent dispatched run.
type RunStatus struct {
	LastRunAt    time.Time
	LastSummary  string
	LastErr      error
	RunCount     int
	FailureCount int
}

// Runner schedules taskstore.Task definitions on a cron expression or
// in response to filesystem changes under watched paths, and dispatches
// every triggered run through a single worker so runs never overlap
// regardless of which task or trigger produced them.
type Runner struct {
	mu       sync.Mutex
	tasks    map[string]*taskState
	executor Executor

	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	runQueue chan string
	dispatch sync.WaitGroup
}

type taskState struct {
	task taskstore.Task

	cronEntry cron.EntryID

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
	debounce  *time.Timer

	queued bool
	status RunStatus
}

// New builds a Runner that invokes executor for every dispatched run,
// whether cron-triggered, watch-triggered, or requested via RunNow.
func New(executor Executor) *Runner {
	return &Runner{
		tasks:    make(map[string]*taskState),
		executor: executor,
		cron:     cron.New(),
		runQueue: make(chan string, 64),
	}
}

// Start begins dispatching cron ticks and filesystem watches for every
// currently registered, enabled task, and starts the single run-worker
// goroutine that serializes their execution.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.started = true
	r.cron.Start()

	r.dispatch.Add(1)
	go r.dispatchLoop(r.ctx)

	for id := range r.tasks {
		_ = r.applyTaskLocked(id)
	}
}

// Stop cancels all pending watches, cron entries, and debounce timers,
// and waits for the run-worker to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}

	if r.cancel != nil {
		r.cancel()
	}
	r.cron.Stop()

	for id := range r.tasks {
		r.stopTaskLocked(id)
	}
	r.started = false
	r.mu.Unlock()

	r.dispatch.Wait()
}

// Upsert registers or replaces task, re-applying its schedule/watch
// wiring if the runner is already started.
func (r *Runner) Upsert(task taskstore.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.tasks[task.ID]
	if !ok {
		st = &taskState{task: task}
		r.tasks[task.ID] = st
	} else {
		st.task = task
	}

	if r.started {
		return r.applyTaskLocked(task.ID)
	}
	return nil
}

// Remove tears down taskID's schedule/watch wiring and forgets it.
func (r *Runner) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTaskLocked(taskID)
	delete(r.tasks, taskID)
}

// RunNow requests an immediate out-of-band run of taskID, subject to
// the same single-worker serialization as cron/watch triggers.
func (r *Runner) RunNow(taskID string) {
	r.enqueueRun(taskID)
}

// List returns every registered task.
func (r *Runner) List() []taskstore.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]taskstore.Task, 0, len(r.tasks))
	for _, st := range r.tasks {
		out = append(out, st.task)
	}
	return out
}

// Status reports taskID's most recently dispatched run, or false if
// taskID is unknown or has never run.
func (r *Runner) Status(taskID string) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.tasks[taskID]
	if !ok || st.status.RunCount == 0 {
		return RunStatus{}, false
	}
	return st.status, true
}

func (r *Runner) applyTaskLocked(taskID string) error {
	st, ok := r.tasks[taskID]
	if !ok {
		return nil
	}

	r.stopTaskLocked(taskID)

	if !st.task.Enabled {
		return nil
	}

	switch st.task.Type {
	case taskstore.TaskTypeSchedule:
		entryID, err := r.cron.AddFunc(st.task.Config.CronExpr, func() {
			r.enqueueRun(taskID)
		})
		if err != nil {
			return fmt.Errorf("scheduler: invalid cron expression for task %s: %w", taskID, err)
		}
		st.cronEntry = entryID
	case taskstore.TaskTypeWatch:
		if err := r.startWatchLocked(taskID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("scheduler: unsupported task type: %s", st.task.Type)
	}
	return nil
}

func (r *Runner) stopTaskLocked(taskID string) {
	st, ok := r.tasks[taskID]
	if !ok {
		return
	}

	if st.cronEntry != 0 {
		r.cron.Remove(st.cronEntry)
		st.cronEntry = 0
	}

	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}

	if st.watcher != nil {
		close(st.watchDone)
		_ = st.watcher.Close()
		st.watcher = nil
	}
}

func (r *Runner) startWatchLocked(taskID string) error {
	st, ok := r.tasks[taskID]
	if !ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scheduler: create watcher for task %s: %w", taskID, err)
	}

	for _, p := range st.task.Config.WatchPaths {
		if err := addWatchRecursive(watcher, p); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("scheduler: watch %s for task %s: %w", p, taskID, err)
		}
	}

	st.watcher = watcher
	st.watchDone = make(chan struct{})

	debounce := time.Duration(st.task.Config.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	go r.watchLoop(taskID, watcher, st.watchDone, debounce)

	return nil
}

// watchLoop relays fsnotify events for one task into a debounced run
// request. A newly created directory is folded into the watch set so a
// watch task started on an empty tree still picks up files created in
// subdirectories added after the fact.
func (r *Runner) watchLoop(taskID string, watcher *fsnotify.Watcher, done chan struct{}, debounce time.Duration) {
	for {
		select {
		case <-done:
			return
		case <-r.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchRecursive(watcher, event.Name)
				}
			}
			r.requestRun(taskID, debounce)
		case <-watcher.Errors:
		}
	}
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return w.Add(filepath.Dir(root))
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (r *Runner) requestRun(taskID string, debounce time.Duration) {
	r.mu.Lock()
	st, ok := r.tasks[taskID]
	if !ok || !st.task.Enabled {
		r.mu.Unlock()
		return
	}

	if st.debounce != nil {
		st.debounce.Stop()
	}
	st.debounce = time.AfterFunc(debounce, func() {
		r.enqueueRun(taskID)
	})
	r.mu.Unlock()
}

// enqueueRun hands taskID to the single run-worker, deduplicating
// against a task that is already waiting its turn; a task whose run
// has already started can be queued once more. Unlike the teacher's TaskRunner, where each task retried
// itself independently under its own running/pending pair, dedup here
// feeds one shared queue so no two tasks' executor calls ever overlap.
func (r *Runner) enqueueRun(taskID string) {
	r.mu.Lock()
	st, ok := r.tasks[taskID]
	if !ok || !st.task.Enabled || st.queued {
		r.mu.Unlock()
		return
	}
	st.queued = true
	ctx := r.ctx
	r.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		select {
		case r.runQueue <- taskID:
		case <-ctx.Done():
		}
	}()
}

func (r *Runner) dispatchLoop(ctx context.Context) {
	defer r.dispatch.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-r.runQueue:
			r.runOne(ctx, taskID)
		}
	}
}

func (r *Runner) runOne(ctx context.Context, taskID string) {
	r.mu.Lock()
	st, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return
	}
	st.queued = false
	if !st.task.Enabled {
		r.mu.Unlock()
		return
	}
	taskCopy := st.task
	r.mu.Unlock()

	summary, err := r.executor(ctx, taskCopy)

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok = r.tasks[taskID]
	if !ok {
		return
	}
	st.status.LastRunAt = time.Now()
	st.status.RunCount++
	st.status.LastErr = err
	if err != nil {
		st.status.FailureCount++
		log.Printf("scheduler: task %s failed: %v", taskID, err)
		return
	}
	st.status.LastSummary = summary
	if summary != "" {
		log.Printf("scheduler: task %s completed: %s", taskID, summary)
	}
}
