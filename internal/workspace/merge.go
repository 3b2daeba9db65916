package workspace

import "strings"

// CommitAll stages every change in a goal's worktree and commits it with
// message, tolerating a clean tree (nothing to commit is not an error).
func (m *Manager) CommitAll(strandID, goalID, message string) Result {
	worktreeDir := m.goalWorktreeDir(strandID, goalID)
	if _, err := runGit(worktreeDir, "add", "-A"); err != nil {
		return fail("git add -A: %v", err)
	}
	if _, err := runGit(worktreeDir, "diff", "--cached", "--quiet"); err == nil {
		return ok("nothing to commit")
	}
	if _, err := runGit(worktreeDir, "commit", "-m", message); err != nil {
		return fail("git commit: %v", err)
	}
	return ok("committed")
}

// PushGoalBranch pushes a goal's branch to origin, creating the upstream
// tracking ref on first push.
func (m *Manager) PushGoalBranch(strandID, goalID, branch string) Result {
	worktreeDir := m.goalWorktreeDir(strandID, goalID)
	if _, err := runGit(worktreeDir, "push", "--set-upstream", "origin", branch); err != nil {
		return fail("git push: %v", err)
	}
	return ok("pushed " + branch)
}

// MergeResult captures the outcome of an attempted merge into base,
// including the abort the manager performs automatically on conflict so
// the strand workspace is never left mid-merge (: a failed
// auto-merge must be retryable, not poisoned).
type MergeResult struct {
	Merged        bool     `json:"merged"`
	ConflictFiles []string `json:"conflictFiles,omitempty"`
}

// MergeGoalBranch merges branch into base with --no-ff inside the
// strand's root checkout. On conflict it aborts the merge immediately,
// leaving the goal worktree and branch untouched for a future retry.
func (m *Manager) MergeGoalBranch(strandID, branch string) (MergeResult, Result) {
	strandDir := m.strandDir(strandID)
	base, err := detectMainBranch(strandDir)
	if err != nil {
		return MergeResult{}, fail("detect main branch: %v", err)
	}

	if _, err := runGit(strandDir, "checkout", base); err != nil {
		return MergeResult{}, fail("checkout %s: %v", base, err)
	}
	if _, err := runGit(strandDir, "pull", "--ff-only", "origin", base); err != nil {
		m.logger.Warn("merge: pull --ff-only failed, merging against local base", "error", err)
	}

	out, mergeErr := runGit(strandDir, "merge", "--no-ff", "-m", "merge "+branch, branch)
	if mergeErr == nil {
		return MergeResult{Merged: true}, ok("merged " + branch)
	}

	conflictOut, _ := runGit(strandDir, "diff", "--name-only", "--diff-filter=U")
	var files []string
	for _, f := range strings.Split(strings.TrimSpace(conflictOut), "\n") {
		if f != "" {
			files = append(files, f)
		}
	}

	if _, abortErr := runGit(strandDir, "merge", "--abort"); abortErr != nil {
		return MergeResult{ConflictFiles: files}, fail("merge conflict on %s, and abort failed: %v (merge output: %s)", branch, abortErr, out)
	}
	return MergeResult{Merged: false, ConflictFiles: files}, fail("merge conflict on %s", branch)
}

// PushMainBranch pushes the strand's base branch to origin, used after a
// successful local merge to publish it upstream.
func (m *Manager) PushMainBranch(strandID string) Result {
	strandDir := m.strandDir(strandID)
	base, err := detectMainBranch(strandDir)
	if err != nil {
		return fail("detect main branch: %v", err)
	}
	if _, err := runGit(strandDir, "push", "origin", base); err != nil {
		return fail("git push %s: %v", base, err)
	}
	return ok("pushed " + base)
}
