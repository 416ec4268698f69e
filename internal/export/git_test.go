package export

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newClone creates a bare remote with one commit on main and returns a
// clone of it.
func newClone(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remote := t.TempDir()
	git(t, remote, "init", "--bare")

	work := t.TempDir()
	git(t, work, "clone", remote, "repo")
	repo := filepath.Join(work, "repo")

	git(t, repo, "config", "user.email", "export@example.com")
	git(t, repo, "config", "user.name", "Export Test")
	git(t, repo, "checkout", "-b", "main")
	if err := os.WriteFile(filepath.Join(repo, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-m", "init")
	git(t, repo, "push", "origin", "main")
	return repo
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

func commitCount(t *testing.T, repo string) int {
	t.Helper()
	return len(strings.Fields(git(t, repo, "rev-list", "HEAD")))
}

func TestGitDestination_CommitsOnlyChanges(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "queries.jsonl", "main")
	ctx := context.Background()

	first := []byte(`{"version":"1","type":"header"}` + "\n")
	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "queries.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(first) {
		t.Fatalf("file content mismatch: got %q", got)
	}
	if n := commitCount(t, repo); n != 2 {
		t.Fatalf("expected 2 commits, got %d", n)
	}

	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("unchanged write: %v", err)
	}
	if n := commitCount(t, repo); n != 2 {
		t.Fatalf("unchanged data should not commit, got %d commits", n)
	}

	second := []byte(`{"version":"1","type":"header","query_count":1}` + "\n")
	if err := dest.Write(ctx, second); err != nil {
		t.Fatalf("changed write: %v", err)
	}
	if n := commitCount(t, repo); n != 3 {
		t.Fatalf("expected 3 commits, got %d", n)
	}
}

func TestGitDestination_SubDirectory(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "exports/queries.jsonl", "main")

	data := []byte(`{"type":"header"}` + "\n")
	if err := dest.Write(context.Background(), data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "exports", "queries.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestGitDestination_MissingRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	dest := NewGitDestination(filepath.Join(t.TempDir(), "absent"), "q.jsonl", "main")
	if err := dest.Write(context.Background(), []byte("{}\n")); err == nil {
		t.Fatal("expected error for missing repository")
	}
}

func TestCommitMessage(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`{"version":"1","type":"header","query_count":4,"custom_field_count":2}` + "\n" + `{"type":"query"}` + "\n", "export: 4 saved queries, 2 custom fields"},
		{`{"type":"query"}` + "\n", "export: update saved queries"},
		{"not json", "export: update saved queries"},
		{"", "export: update saved queries"},
	}
	for _, tc := range tests {
		if got := commitMessage([]byte(tc.data)); got != tc.want {
			t.Errorf("commitMessage(%q) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestGitDestination_CommitMessage(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "queries.jsonl", "main")

	data := []byte(`{"version":"1","type":"header","query_count":3,"custom_field_count":1}` + "\n")
	if err := dest.Write(context.Background(), data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := strings.TrimSpace(git(t, repo, "log", "-1", "--format=%s")); msg != "export: 3 saved queries, 1 custom fields" {
		t.Errorf("commit message = %q", msg)
	}
	entries, err := os.ReadDir(repo)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".export-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
