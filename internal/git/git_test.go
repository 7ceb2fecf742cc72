package git

import (
	"testing"

	"driftmap/internal/logging"
	"driftmap/internal/testutil"
)

func TestParseNameStatusZ(t *testing.T) {
	out := []byte("M\x00src/a.ts\x00A\x00b.ts\x00R100\x00old.ts\x00new.ts\x00D\x00gone.py\x00")

	entries := parseNameStatusZ(out)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(entries), entries)
	}

	if entries[0].status != "M" || entries[0].path != "src/a.ts" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].status != "A" || entries[1].path != "b.ts" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].status != "R100" || entries[2].oldPath != "old.ts" || entries[2].path != "new.ts" {
		t.Errorf("unexpected rename entry: %+v", entries[2])
	}
	if entries[3].status != "D" || entries[3].path != "gone.py" {
		t.Errorf("unexpected delete entry: %+v", entries[3])
	}
}

func TestParseNameStatusZEmpty(t *testing.T) {
	if entries := parseNameStatusZ(nil); len(entries) != 0 {
		t.Errorf("expected no entries for empty output, got %+v", entries)
	}
	if entries := parseNameStatusZ([]byte("\x00")); len(entries) != 0 {
		t.Errorf("expected no entries for bare separator, got %+v", entries)
	}
}

func TestParseNameStatusZTruncated(t *testing.T) {
	// A rename record missing its second path must not panic or emit a
	// half-parsed entry.
	entries := parseNameStatusZ([]byte("R086\x00old.ts\x00"))
	if len(entries) != 0 {
		t.Errorf("expected truncated rename to be dropped, got %+v", entries)
	}
}

func TestApplyEntriesStatuses(t *testing.T) {
	statuses := make(map[string]Status)
	applyEntries(statuses, []nameStatusEntry{
		{status: "A", path: "new.ts"},
		{status: "M", path: "changed.ts"},
		{status: "D", path: "gone.ts"},
		{status: "R086", path: "moved.ts", oldPath: "orig.ts"},
		{status: "T", path: "typechange.ts"},
	})

	want := map[string]Status{
		"new.ts":        StatusAdded,
		"changed.ts":    StatusModified,
		"gone.ts":       StatusDeleted,
		"orig.ts":       StatusDeleted,
		"moved.ts":      StatusAdded,
		"typechange.ts": StatusModified,
	}
	if len(statuses) != len(want) {
		t.Fatalf("expected %d statuses, got %d: %+v", len(want), len(statuses), statuses)
	}
	for path, status := range want {
		if statuses[path] != status {
			t.Errorf("path %s: expected %s, got %s", path, status, statuses[path])
		}
	}
}

func TestApplyEntriesLastWins(t *testing.T) {
	statuses := make(map[string]Status)
	applyEntries(statuses, []nameStatusEntry{{status: "A", path: "a.ts"}})
	applyEntries(statuses, []nameStatusEntry{{status: "M", path: "a.ts"}})

	if statuses["a.ts"] != StatusModified {
		t.Errorf("expected later entry to win, got %s", statuses["a.ts"])
	}
}

// fixtureRepo creates a repository with an initial commit on main and
// returns a client for it.
func fixtureRepo(t *testing.T) (*testutil.GitRepo, *Client) {
	t.Helper()
	repo := testutil.NewGitRepo(t)
	repo.WriteFile("a.ts", "export function alpha() { return 1 }\n")
	repo.WriteFile("b.ts", "export const beta = 2\n")
	repo.Commit("initial")
	return repo, NewClient(repo.Dir, logging.Discard())
}

func TestIsRepoAndBranch(t *testing.T) {
	_, client := fixtureRepo(t)

	if !client.IsRepo() {
		t.Fatal("expected fixture to be a repository")
	}
	branch, err := client.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "main" {
		t.Errorf("expected branch main, got %s", branch)
	}
	if client.CurrentCommit() == "" {
		t.Error("expected a commit hash")
	}
	if client.CommitMessage() != "initial" {
		t.Errorf("expected commit message 'initial', got %q", client.CommitMessage())
	}
}

func TestIsRepoOutsideRepository(t *testing.T) {
	testutil.RequireGit(t)
	client := NewClient(t.TempDir(), logging.Discard())
	if client.IsRepo() {
		t.Error("expected plain directory to not be a repository")
	}
}

func TestDetectBaseBranch(t *testing.T) {
	repo, client := fixtureRepo(t)

	if got := client.DetectBaseBranch(""); got != "main" {
		t.Errorf("expected main, got %q", got)
	}
	if got := client.DetectBaseBranch("nonexistent"); got != "main" {
		t.Errorf("expected fallback to main, got %q", got)
	}

	repo.Git("branch", "develop")
	if got := client.DetectBaseBranch("develop"); got != "develop" {
		t.Errorf("expected explicit branch to win, got %q", got)
	}

	branches, err := client.LocalBranches()
	if err != nil {
		t.Fatalf("LocalBranches failed: %v", err)
	}
	if len(branches) != 2 || branches[0] != "develop" || branches[1] != "main" {
		t.Errorf("unexpected branches: %v", branches)
	}
}

func TestDiffAgainstBase(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.Git("checkout", "-b", "feature")
	repo.WriteFile("b.ts", "export const beta = 3\n")
	repo.WriteFile("c.ts", "export const gamma = 4\n")
	repo.Git("rm", "-q", "a.ts")
	repo.Commit("rework")

	res, err := client.Diff("main")
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if res.BaseBranch != "main" || res.CurrentBranch != "feature" {
		t.Errorf("unexpected branches: %+v", res)
	}
	if res.HasUncommitted {
		t.Error("expected clean working tree")
	}

	want := map[string]Status{
		"a.ts": StatusDeleted,
		"b.ts": StatusModified,
		"c.ts": StatusAdded,
	}
	if len(res.Statuses) != len(want) {
		t.Fatalf("expected %d statuses, got %+v", len(want), res.Statuses)
	}
	for path, status := range want {
		if res.Statuses[path] != status {
			t.Errorf("path %s: expected %s, got %s", path, status, res.Statuses[path])
		}
	}
}

func TestDiffIncludesUncommitted(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.WriteFile("a.ts", "export function alpha() { return 99 }\n")
	repo.WriteFile("d.ts", "export const delta = 5\n")

	res, err := client.Diff("main")
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if !res.HasUncommitted {
		t.Error("expected uncommitted changes to be flagged")
	}
	if res.Statuses["a.ts"] != StatusModified {
		t.Errorf("expected a.ts modified, got %s", res.Statuses["a.ts"])
	}
	if res.Statuses["d.ts"] != StatusAdded {
		t.Errorf("expected untracked d.ts added, got %s", res.Statuses["d.ts"])
	}
}

func TestDiffWithoutBase(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.WriteFile("d.ts", "export const delta = 5\n")

	res, err := client.Diff("")
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(res.Statuses) != 1 || res.Statuses["d.ts"] != StatusAdded {
		t.Errorf("expected only the untracked file, got %+v", res.Statuses)
	}
}

func TestShowFileAtRef(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.Git("checkout", "-b", "feature")
	repo.WriteFile("b.ts", "export const beta = 3\n")
	repo.Commit("bump")

	content, err := client.ShowFileAtRef("main", "b.ts")
	if err != nil {
		t.Fatalf("ShowFileAtRef failed: %v", err)
	}
	if string(content) != "export const beta = 2\n" {
		t.Errorf("unexpected content at base: %q", content)
	}

	if _, err := client.ShowFileAtRef("main", "missing.ts"); err == nil {
		t.Error("expected error for file absent from ref")
	}
}

func TestModifiedFiles(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.Git("checkout", "-b", "feature")
	repo.WriteFile("b.ts", "export const beta = 3\n")
	repo.WriteFile("c.ts", "export const gamma = 4\n")
	repo.Commit("rework")
	repo.Git("checkout", "main")

	files, err := client.ModifiedFiles("feature", "main")
	if err != nil {
		t.Fatalf("ModifiedFiles failed: %v", err)
	}
	if len(files) != 2 || files[0] != "b.ts" || files[1] != "c.ts" {
		t.Errorf("unexpected modified files: %v", files)
	}
}

func TestModifiedFilesIgnoresExactRename(t *testing.T) {
	repo, client := fixtureRepo(t)

	repo.Git("checkout", "-b", "feature")
	repo.Git("mv", "a.ts", "renamed.ts")
	repo.Commit("rename only")
	repo.Git("checkout", "main")

	files, err := client.ModifiedFiles("feature", "main")
	if err != nil {
		t.Fatalf("ModifiedFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected exact rename to be excluded, got %v", files)
	}
}

func TestModifiedFilesSameBranch(t *testing.T) {
	_, client := fixtureRepo(t)

	files, err := client.ModifiedFiles("main", "main")
	if err != nil {
		t.Fatalf("ModifiedFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty diff for identical refs, got %v", files)
	}
}
