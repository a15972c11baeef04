package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestGitLog_EmptyCommitIsAnError(t *testing.T) {
	g := &GitLog{}
	if _, err := g.CommitMessage(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty commit identifier")
	}
}

func TestGitLog_ReadsCommitMessage(t *testing.T) {
	requireGit(t)

	dir := t.TempDir()
	mustGit(t, dir, "init", "--quiet")
	mustGit(t, dir, "config", "user.email", "ci@example.test")
	mustGit(t, dir, "config", "user.name", "ci")

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mustGit(t, dir, "add", "f.txt")
	mustGit(t, dir, "commit", "--quiet", "-m", "add [Feature] coverage")

	g := &GitLog{Dir: dir}
	msg, err := g.CommitMessage(context.Background(), "HEAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "add [Feature] coverage" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestGitLog_UnknownCommitFailsWithoutPanic(t *testing.T) {
	requireGit(t)

	dir := t.TempDir()
	mustGit(t, dir, "init", "--quiet")

	g := &GitLog{Dir: dir}
	msg, err := g.CommitMessage(context.Background(), "deadbeef")
	if err == nil {
		t.Fatalf("expected error for unknown commit, got message %q", msg)
	}
	if msg != "" {
		t.Fatalf("message must be empty on failure, got %q", msg)
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
}
