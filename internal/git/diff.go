package git

import (
	"fmt"
	"sort"
	"strings"
)

// Status classifies how a file differs from the comparison base.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
)

// DiffResult is the change set of the working tree relative to a base branch.
// Statuses maps repository-relative paths to their state; renames appear as a
// deletion of the old path plus an addition of the new one.
type DiffResult struct {
	BaseBranch     string
	CurrentBranch  string
	HasUncommitted bool
	Statuses       map[string]Status
}

// nameStatusEntry is one record of `git diff --name-status -z` output. For
// renames and copies path holds the new name and oldPath the original.
type nameStatusEntry struct {
	status  string
	path    string
	oldPath string
}

// parseNameStatusZ parses NUL-separated name-status output. Records are
// STATUS\0PATH\0, except renames and copies which carry two paths:
// STATUS\0OLD\0NEW\0.
func parseNameStatusZ(out []byte) []nameStatusEntry {
	fields := strings.Split(string(out), "\x00")

	var entries []nameStatusEntry
	for i := 0; i < len(fields); i++ {
		status := strings.TrimSpace(fields[i])
		if status == "" {
			continue
		}
		if i+1 >= len(fields) {
			break
		}
		entry := nameStatusEntry{status: status, path: fields[i+1]}
		i++
		if strings.HasPrefix(status, "R") || strings.HasPrefix(status, "C") {
			if i+1 >= len(fields) {
				break
			}
			entry.oldPath = entry.path
			entry.path = fields[i+1]
			i++
		}
		entries = append(entries, entry)
	}
	return entries
}

// applyEntries folds name-status records into a status map, later records
// overwriting earlier ones. Renames split into a deletion and an addition so
// importers of the old path see their target disappear.
func applyEntries(statuses map[string]Status, entries []nameStatusEntry) {
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.status, "R"):
			statuses[e.oldPath] = StatusDeleted
			statuses[e.path] = StatusAdded
		case strings.HasPrefix(e.status, "C"):
			statuses[e.path] = StatusAdded
		case e.status == "A":
			statuses[e.path] = StatusAdded
		case e.status == "D":
			statuses[e.path] = StatusDeleted
		default:
			statuses[e.path] = StatusModified
		}
	}
}

// Diff computes file statuses relative to base: the committed diff from the
// merge base to HEAD, overlaid with staged, unstaged, and untracked changes.
// An empty base skips the committed portion.
func (c *Client) Diff(base string) (*DiffResult, error) {
	current, err := c.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current branch: %w", err)
	}

	res := &DiffResult{
		BaseBranch:    base,
		CurrentBranch: current,
		Statuses:      make(map[string]Status),
	}

	if base != "" {
		mb, err := c.MergeBase(base, "HEAD")
		if err != nil {
			c.logger.Debug("merge base unresolvable, skipping committed diff", "base", base, "error", err)
		} else {
			out, err := c.run("diff", "--name-status", "-z", "-M100%", mb, "HEAD")
			if err != nil {
				return nil, err
			}
			applyEntries(res.Statuses, parseNameStatusZ(out))
		}
	}

	res.HasUncommitted = c.applyUncommitted(res.Statuses)
	return res, nil
}

// applyUncommitted overlays staged, unstaged, and untracked changes onto the
// status map and reports whether any were found. Untracked files count as
// added.
func (c *Client) applyUncommitted(statuses map[string]Status) bool {
	changed := false

	for _, args := range [][]string{
		{"diff", "--name-status", "-z", "--cached"},
		{"diff", "--name-status", "-z"},
	} {
		out, err := c.run(args...)
		if err != nil {
			c.logger.Debug("uncommitted diff failed", "args", args, "error", err)
			continue
		}
		entries := parseNameStatusZ(out)
		if len(entries) > 0 {
			changed = true
		}
		applyEntries(statuses, entries)
	}

	out, err := c.run("ls-files", "-z", "--others", "--exclude-standard")
	if err != nil {
		c.logger.Debug("untracked listing failed", "error", err)
		return changed
	}
	for _, path := range strings.Split(string(out), "\x00") {
		if path == "" {
			continue
		}
		statuses[path] = StatusAdded
		changed = true
	}
	return changed
}

// ModifiedFiles returns the paths a branch touched since its merge base with
// base, from a tree-to-tree comparison. Exact renames change no content and
// are excluded; renames with edits count both the old and new path.
func (c *Client) ModifiedFiles(branch, base string) ([]string, error) {
	mb, err := c.MergeBase(base, branch)
	if err != nil {
		return nil, err
	}

	out, err := c.run("diff", "--name-status", "-z", "-M100%", mb, branch)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, e := range parseNameStatusZ(out) {
		switch {
		case e.status == "R100":
			continue
		case strings.HasPrefix(e.status, "R"):
			seen[e.oldPath] = true
			seen[e.path] = true
		case strings.HasPrefix(e.status, "C"):
			seen[e.path] = true
		default:
			seen[e.path] = true
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
