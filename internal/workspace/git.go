// Package workspace is a thin adapter over the git binary: per-strand
// clone, per-goal worktree+branch, merge, push. Grounded
// on the git-over-exec.Command pattern from the retrieval pack's
// houx15-agenterm/internal/git and internal/api/worktrees.go, adapted so
// every operation returns a result struct and never raises — panics and
// bare errors from exec.Command are always converted to {ok:false, error}.
package workspace

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		op := strings.Join(args, " ")
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %s failed: %s", op, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("git %s failed: %w", op, err)
	}
	return string(out), nil
}

func isGitRepo(path string) bool {
	out, err := runGit(path, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// detectMainBranch inspects local branches then HEAD to find "main" or
// "master". Missing remotes are non-fatal for local-only
// mode.
func detectMainBranch(repoPath string) (string, error) {
	out, err := runGit(repoPath, "branch", "--list", "main", "master")
	if err == nil {
		for _, line := range strings.Split(out, "\n") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "* "))
			if name == "main" {
				return "main", nil
			}
		}
		for _, line := range strings.Split(out, "\n") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "* "))
			if name == "master" {
				return "master", nil
			}
		}
	}
	head, err := runGit(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("detect main branch: %w", err)
	}
	return strings.TrimSpace(head), nil
}
