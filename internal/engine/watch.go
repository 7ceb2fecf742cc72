package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"driftmap/internal/conflict"
	"driftmap/internal/graph"
)

// Debouncer delays work until a quiet period has passed. Each trigger
// resets the timer and replaces the pending function.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the quiet period, resetting any running timer.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending
		d.pending = nil
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Cancel drops any pending execution.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush runs any pending function immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// treeState is a cheap fingerprint of the analyzable tree.
type treeState struct {
	files  int
	newest time.Time
}

// Watcher re-runs analysis when the repository changes. Detection is by
// polling: .git/HEAD and the index for VCS-level changes, content file
// modification times for working-tree edits. A trigger arriving while an
// analysis is in flight queues exactly one follow-up run.
type Watcher struct {
	engine   *Engine
	logger   *slog.Logger
	debounce *Debouncer
	interval time.Duration

	onResult    func(*graph.Graph)
	onConflicts func([]conflict.Warning)

	mu      sync.Mutex
	running bool
	queued  bool
	wg      sync.WaitGroup

	lastHead  string
	lastIndex time.Time
	lastTree  treeState
}

// NewWatcher builds a watcher honoring the engine's watch settings. The
// callbacks are optional and receive each run's graph and each background
// conflict pass's findings.
func NewWatcher(e *Engine, onResult func(*graph.Graph), onConflicts func([]conflict.Warning)) *Watcher {
	debounceMs := e.cfg.Watch.DebounceMs
	if debounceMs <= 0 {
		debounceMs = 2000
	}
	pollMs := e.cfg.Watch.PollIntervalMs
	if pollMs <= 0 {
		pollMs = 1000
	}
	return &Watcher{
		engine:      e,
		logger:      e.logger,
		debounce:    NewDebouncer(time.Duration(debounceMs) * time.Millisecond),
		interval:    time.Duration(pollMs) * time.Millisecond,
		onResult:    onResult,
		onConflicts: onConflicts,
	}
}

// Run analyzes once, then polls for changes until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.lastHead = w.readHead()
	w.lastIndex = w.indexModTime()
	w.lastTree = w.scanTree()

	w.logger.Info("watching for changes",
		"root", w.engine.root,
		"pollInterval", w.interval,
		"debounce", w.debounce.delay)

	w.startRun(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.debounce.Cancel()
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			if w.detectChanges() {
				w.debounce.Trigger(func() { w.startRun(ctx) })
			}
		}
	}
}

// detectChanges reports whether the repository moved since the last poll
// and records the new state.
func (w *Watcher) detectChanges() bool {
	changed := false

	if head := w.readHead(); head != w.lastHead {
		w.lastHead = head
		changed = true
	}
	if idx := w.indexModTime(); idx.After(w.lastIndex) {
		w.lastIndex = idx
		changed = true
	}
	if tree := w.scanTree(); tree != w.lastTree {
		w.lastTree = tree
		changed = true
	}

	if changed {
		w.logger.Debug("change detected", "root", w.engine.root)
	}
	return changed
}

// startRun starts an analysis, or queues exactly one follow-up when a run
// is already in flight. Triggers during a queued state collapse into that
// single follow-up.
func (w *Watcher) startRun(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.queued = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.runLoop(ctx)
}

func (w *Watcher) runLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		w.runOnce(ctx)

		w.mu.Lock()
		if !w.queued || ctx.Err() != nil {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.queued = false
		w.mu.Unlock()
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	g, err := w.engine.Analyze(ctx, "")
	if err != nil {
		w.logger.Warn("watch analysis failed", "error", err)
		return
	}
	if w.onResult != nil {
		w.onResult(g)
	}

	// Conflict detection runs in the background with its own error
	// boundary; a slow pass never delays the next analysis.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		warnings := w.engine.Conflicts(context.Background(), g, conflict.Options{})
		if len(warnings) > 0 {
			w.logger.Info("cross-branch conflicts detected", "count", len(warnings))
		}
		if w.onConflicts != nil {
			w.onConflicts(warnings)
		}
	}()
}

func (w *Watcher) readHead() string {
	data, err := os.ReadFile(filepath.Join(w.engine.root, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (w *Watcher) indexModTime() time.Time {
	info, err := os.Stat(filepath.Join(w.engine.root, ".git", "index"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (w *Watcher) scanTree() treeState {
	rels, err := w.engine.collectFiles()
	if err != nil {
		return treeState{}
	}
	st := treeState{files: len(rels)}
	for _, rel := range rels {
		info, err := os.Stat(filepath.Join(w.engine.root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		if mt := info.ModTime(); mt.After(st.newest) {
			st.newest = mt
		}
	}
	return st
}
