// Package testutil provides shared fixtures for tests that need a real
// git repository on disk.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// RequireGit skips the test when no git binary is on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// GitRepo is a throwaway repository under a test temp directory.
type GitRepo struct {
	Dir string
	t   *testing.T
}

// NewGitRepo creates an empty repository with deterministic settings.
// The unborn branch is pinned to main so assertions do not depend on
// the host's init.defaultBranch, and commit signing is off.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()
	RequireGit(t)

	r := &GitRepo{Dir: t.TempDir(), t: t}
	r.Git("init")
	r.Git("symbolic-ref", "HEAD", "refs/heads/main")
	r.Git("config", "user.name", "test")
	r.Git("config", "user.email", "test@example.com")
	r.Git("config", "commit.gpgsign", "false")
	return r
}

// Git runs a git command in the repository and fails the test on error.
func (r *GitRepo) Git(args ...string) {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	if out, err := cmd.CombinedOutput(); err != nil {
		r.t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// WriteFile writes a file relative to the repository root, creating
// parent directories as needed.
func (r *GitRepo) WriteFile(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("failed to create parent of %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("failed to write %s: %v", name, err)
	}
}

// WriteTree writes several files at once.
func (r *GitRepo) WriteTree(files map[string]string) {
	r.t.Helper()
	for name, content := range files {
		r.WriteFile(name, content)
	}
}

// Commit stages the whole tree and commits it.
func (r *GitRepo) Commit(message string) {
	r.t.Helper()
	r.Git("add", ".")
	r.Git("commit", "-m", message)
}
