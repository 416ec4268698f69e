package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination commits the snapshot to a file in a local clone and
// pushes it.
type GitDestination struct {
	repo   string
	file   string
	branch string
}

// NewGitDestination creates a git destination. repo must be an existing
// clone with an "origin" remote.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

func (d *GitDestination) Name() string { return "git" }

// Write replaces the file, then commits and pushes when its content changed.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return fmt.Errorf("git checkout: %w", err)
	}
	// The remote may not have the branch yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	if err := writeFileAtomic(filepath.Join(d.repo, d.file), data); err != nil {
		return err
	}

	if err := d.git(ctx, "add", d.file); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	if err := d.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}
	if err := d.git(ctx, "commit", "-m", commitMessage(data)); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	if err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path so that a concurrent reader of the clone
// never sees a half-written snapshot.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// commitMessage summarizes the snapshot from its header line.
func commitMessage(data []byte) string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return "export: update saved queries"
	}
	return fmt.Sprintf("export: %d saved queries, %d custom fields", h.QueryCount, h.CustomFieldCount)
}

func (d *GitDestination) git(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
