// Package vcs queries version control history for classification inputs.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitLog reads commit messages from a git working tree by shelling out to
// the git binary.
//
// Errors from this source are advisory: the classifier treats any failure
// as "no commit message" and carries on. Callers must not fail a run on a
// GitLog error.
type GitLog struct {
	// Dir is the repository working tree. Empty means the current process
	// directory, which is what a pipeline checkout gives us.
	Dir string
}

// CommitMessage returns the full message body of the given commit.
func (g *GitLog) CommitMessage(ctx context.Context, commit string) (string, error) {
	if strings.TrimSpace(commit) == "" {
		return "", fmt.Errorf("vcs: empty commit identifier")
	}

	cmd := exec.CommandContext(ctx, "git", "log", "--format=%B", "-n", "1", commit)
	if g != nil {
		cmd.Dir = g.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("vcs: git log %s: %w: %s", commit, err, detail)
		}
		return "", fmt.Errorf("vcs: git log %s: %w", commit, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
