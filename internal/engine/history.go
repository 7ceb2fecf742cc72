package engine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"driftmap/internal/graph"
)

const (
	historyFileName     = "history.json.zst"
	defaultMaxSnapshots = 50
)

// Snapshot summarizes one analysis run for trend inspection across runs.
type Snapshot struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Branch    string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Commit    string    `json:"commit,omitempty" yaml:"commit,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty"`
	Nodes     int       `json:"nodes" yaml:"nodes"`
	Edges     int       `json:"edges" yaml:"edges"`
	Broken    int       `json:"broken" yaml:"broken"`
}

// History is a bounded, oldest-evicted list of snapshots persisted as
// zstd-compressed JSON. Persistence failures degrade to an in-memory list.
type History struct {
	path   string
	max    int
	logger *slog.Logger

	mu        sync.Mutex
	snapshots []Snapshot
}

// NewHistory loads the history at path. A missing, unreadable, or corrupt
// file starts an empty history.
func NewHistory(path string, maxSnapshots int, logger *slog.Logger) *History {
	if maxSnapshots <= 0 {
		maxSnapshots = defaultMaxSnapshots
	}
	h := &History{path: path, max: maxSnapshots, logger: logger}
	h.load()
	return h
}

func (h *History) load() {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Warn("history unreadable, starting empty", "path", h.path, "error", err)
		}
		return
	}

	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		h.logger.Warn("history corrupt, starting empty", "path", h.path, "error", err)
		return
	}
	defer r.Close()

	var snaps []Snapshot
	if err := json.NewDecoder(r).Decode(&snaps); err != nil {
		h.logger.Warn("history corrupt, starting empty", "path", h.path, "error", err)
		return
	}
	h.snapshots = snaps
}

// Append adds a snapshot, evicts beyond the bound, and persists.
func (h *History) Append(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = append(h.snapshots, s)
	if len(h.snapshots) > h.max {
		h.snapshots = h.snapshots[len(h.snapshots)-h.max:]
	}
	if err := h.save(); err != nil {
		h.logger.Warn("history write failed", "path", h.path, "error", err)
	}
}

// save writes the list through a temp file so a crash mid-write never
// leaves a truncated history behind.
func (h *History) save() error {
	data, err := json.Marshal(h.snapshots)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*")
	if err != nil {
		return err
	}

	w, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

// Snapshots returns up to limit snapshots, newest first. limit <= 0 returns
// all of them.
func (h *History) Snapshots(limit int) []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.snapshots)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Snapshot, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.snapshots[i])
	}
	return out
}

// appendSnapshot records the run in history. Outside a repository the
// snapshot carries counts only.
func (e *Engine) appendSnapshot(g *graph.Graph, label string) {
	s := Snapshot{
		ID:        uuid.New().String(),
		Timestamp: g.Timestamp,
		Label:     label,
		Nodes:     len(g.Nodes),
		Edges:     len(g.Edges),
	}
	for _, edge := range g.Edges {
		if edge.Broken {
			s.Broken++
		}
	}
	if e.vcs.IsRepo() {
		if branch, err := e.vcs.CurrentBranch(); err == nil {
			s.Branch = branch
		}
		s.Commit = e.vcs.CurrentCommit()
		s.Message = e.vcs.CommitMessage()
	}
	e.history.Append(s)
}
