package git

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// Client runs git against one repository root. All failures are plain errors;
// callers degrade (empty diff, empty conflict set) rather than abort.
type Client struct {
	root   string
	logger *slog.Logger
}

// NewClient creates a client for the repository at root.
func NewClient(root string, logger *slog.Logger) *Client {
	return &Client{root: root, logger: logger}
}

// Root returns the repository root the client was built for.
func (c *Client) Root() string {
	return c.root
}

func (c *Client) run(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// IsRepo reports whether root is inside a git repository.
func (c *Client) IsRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = c.root
	return cmd.Run() == nil
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (c *Client) CurrentBranch() (string, error) {
	out, err := c.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentCommit returns the HEAD commit hash, or "" when unresolvable.
func (c *Client) CurrentCommit() string {
	out, err := c.run("rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// CommitMessage returns the HEAD commit subject line, or "" when unresolvable.
func (c *Client) CommitMessage() string {
	out, err := c.run("log", "-1", "--format=%s")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// DetectBaseBranch returns the first existing branch among the explicit name,
// main, and master; "" when none exist.
func (c *Client) DetectBaseBranch(explicit string) string {
	for _, name := range []string{explicit, "main", "master"} {
		if name == "" {
			continue
		}
		if c.branchExists(name) {
			return name
		}
	}
	return ""
}

func (c *Client) branchExists(name string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = c.root
	return cmd.Run() == nil
}

// LocalBranches lists local branch names, sorted.
func (c *Client) LocalBranches() ([]string, error) {
	out, err := c.run("for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			branches = append(branches, name)
		}
	}
	sort.Strings(branches)
	return branches, nil
}

// MergeBase returns the merge base of two refs.
func (c *Client) MergeBase(a, b string) (string, error) {
	out, err := c.run("merge-base", a, b)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ShowFileAtRef returns a file's content at a ref. path must be
// repository-relative with forward slashes.
func (c *Client) ShowFileAtRef(ref, path string) ([]byte, error) {
	return c.run("show", ref+":"+path)
}
