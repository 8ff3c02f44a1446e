package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bling233/qbak/internal/taskstore"
)

func TestRunNowInvokesExecutor(t *testing.T) {
	var calls int32
	r := New(func(ctx context.Context, task taskstore.Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})
	require.NoError(t, r.Upsert(taskstore.Task{
		ID:      "1",
		Name:    "manual",
		Type:    taskstore.TaskTypeSchedule,
		Enabled: true,
		Config:  taskstore.TaskConfig{CronExpr: "@yearly"},
	}))
	r.Start()
	defer r.Stop()

	r.RunNow("1")
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })
}

func TestDisabledTaskDoesNotRun(t *testing.T) {
	var calls int32
	r := New(func(ctx context.Context, task taskstore.Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", nil
	})
	require.NoError(t, r.Upsert(taskstore.Task{
		ID:      "1",
		Name:    "disabled",
		Type:    taskstore.TaskTypeSchedule,
		Enabled: false,
		Config:  taskstore.TaskConfig{CronExpr: "@yearly"},
	}))
	r.Start()
	defer r.Stop()

	r.RunNow("1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls)
}

func TestWatchTriggersRunOnFileChange(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	r := New(func(ctx context.Context, task taskstore.Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})
	require.NoError(t, r.Upsert(taskstore.Task{
		ID:      "1",
		Name:    "watcher",
		Type:    taskstore.TaskTypeWatch,
		Enabled: true,
		Config: taskstore.TaskConfig{
			WatchPaths:      []string{dir},
			WatchDebounceMs: 10,
		},
	}))
	r.Start()
	defer r.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))

	waitFor(t, func() bool { return atomic.LoadInt32(&calls) >= 1 })
}

func TestRemoveStopsFutureRuns(t *testing.T) {
	var calls int32
	r := New(func(ctx context.Context, task taskstore.Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", nil
	})
	require.NoError(t, r.Upsert(taskstore.Task{
		ID:      "1",
		Name:    "to-remove",
		Type:    taskstore.TaskTypeSchedule,
		Enabled: true,
		Config:  taskstore.TaskConfig{CronExpr: "@yearly"},
	}))
	r.Start()
	defer r.Stop()

	r.Remove("1")
	r.RunNow("1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
