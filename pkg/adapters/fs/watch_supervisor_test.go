package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasher/reddit-modbot/pkg/core"
)

func startWatcher(t *testing.T, dir, pattern string) (*Watcher, <-chan core.RuleEvent) {
	t.Helper()
	events := make(chan core.RuleEvent, 16)
	w, err := NewWatcher(dir, pattern, events, WithWatchLogger(quietLogger()), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = w.Stop(stopCtx)
		cancel()
	})
	return w, events
}

func nextEvent(t *testing.T, events <-chan core.RuleEvent) core.RuleEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for rule event")
		return core.RuleEvent{}
	}
}

func assertNoEvent(t *testing.T, events <-chan core.RuleEvent) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_LoadAndRemove(t *testing.T) {
	dir := t.TempDir()
	w, events := startWatcher(t, dir, DefaultRulePattern)
	assert.True(t, w.Active())

	path := filepath.Join(dir, "a.rule")
	writeRule(t, path, "title: A")

	ev := nextEvent(t, events)
	assert.Equal(t, core.RuleLoad, ev.Kind)
	assert.Equal(t, path, ev.Path)

	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, events)
	assert.Equal(t, core.RuleRemove, ev.Kind)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_BurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir, DefaultRulePattern)

	path := filepath.Join(dir, "a.rule")
	for i := 0; i < 5; i++ {
		writeRule(t, path, "title: A")
	}

	ev := nextEvent(t, events)
	assert.Equal(t, core.RuleLoad, ev.Kind)
	assertNoEvent(t, events)
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir, DefaultRulePattern)

	writeRule(t, filepath.Join(dir, "notes.txt"), "x")
	writeRule(t, filepath.Join(dir, ".a.rule.swp"), "x")
	writeRule(t, filepath.Join(dir, TempFilePrefix+"1.rule"), "x")

	assertNoEvent(t, events)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir, "**/*.rule")

	sub := filepath.Join(dir, "spam")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Let the watcher pick up the directory before writing into it.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "b.rule")
	writeRule(t, path, "title: B")

	ev := nextEvent(t, events)
	assert.Equal(t, core.RuleLoad, ev.Kind)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_InvalidPattern(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), "[", make(chan core.RuleEvent))
	assert.Error(t, err)
}

func TestMapEventKind(t *testing.T) {
	assert.Equal(t, core.RuleLoad, mapEventKind(fsnotify.Event{Op: fsnotify.Create}))
	assert.Equal(t, core.RuleLoad, mapEventKind(fsnotify.Event{Op: fsnotify.Write}))
	assert.Equal(t, core.RuleRemove, mapEventKind(fsnotify.Event{Op: fsnotify.Remove}))
	assert.Equal(t, core.RuleRemove, mapEventKind(fsnotify.Event{Op: fsnotify.Rename}))
	assert.Equal(t, core.RuleEventKind(""), mapEventKind(fsnotify.Event{Op: fsnotify.Chmod}))
}

func TestWatcherSupervisorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	events := make(chan core.RuleEvent)
	created := make(chan *Watcher, 2)

	spec := supervisor.Spec{
		Name: "rule-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			w, err := NewWatcher(dir, DefaultRulePattern, events, WithWatchLogger(quietLogger()))
			if err != nil {
				return nil, err
			}
			created <- w
			return w, nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("test-watcher", supervisor.StrategyOneForOne, spec)
	require.NoError(t, sup.Start(ctx))

	first := waitForWorker(t, created, "first")
	waitForActive(t, first)
	_ = first.watcher.Close()

	second := waitForWorker(t, created, "second")
	require.NotSame(t, first, second, "expected supervisor to restart watcher with a new instance")
	waitForActive(t, second)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, sup.Stop(stopCtx))
}

func waitForWorker(t *testing.T, ch <-chan *Watcher, label string) *Watcher {
	t.Helper()

	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s worker", label)
		return nil
	}
}

func waitForActive(t *testing.T, w *Watcher) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for !w.Active() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher to become active")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
