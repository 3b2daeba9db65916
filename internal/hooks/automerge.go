package hooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/go-strand/internal/entities"
	orchotel "github.com/basket/go-strand/internal/otel"
)

// autoMerge runs when every task in a goal has reached a terminal state.
// A goal with no worktree is simply marked done; a goal with a worktree
// is committed, pushed, and merged into the strand's main branch.
func (h *Hooks) autoMerge(ctx context.Context, goal *entities.Goal) error {
	if goal.Worktree == nil || goal.Worktree.Path == "" {
		if err := h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
			g.Status = entities.GoalStatusDone
			g.Completed = true
			return nil
		}); err != nil {
			return err
		}
		h.publish("goal.completed", map[string]any{"goalId": goal.ID, "strandId": goal.StrandID, "phase": goal.Phase})
		if h.Metrics != nil {
			h.Metrics.GoalsCompleted.Add(ctx, 1)
		}
		go h.delayedKickoffUnblocked(goal.StrandID, 0)
		return nil
	}

	if h.workspace == nil {
		h.logger.Warn("hooks: goal has a worktree but no workspace.Manager is wired; skipping auto-merge", "goalId", goal.ID)
		return nil
	}

	commitRes := h.workspace.CommitAll(goal.StrandID, goal.ID, "Goal complete: "+goal.Title)
	if !commitRes.Ok {
		h.logger.Warn("hooks: auto-commit before merge failed", "goalId", goal.ID, "error", commitRes.Error)
	}

	pushRes := h.workspace.PushGoalBranch(goal.StrandID, goal.ID, goal.Worktree.Branch)
	if !pushRes.Ok {
		if err := h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
			g.PushStatus = "error"
			return nil
		}); err != nil {
			h.logger.Warn("hooks: record push failure failed", "goalId", goal.ID, "error", err)
		}
		h.publish("goal.push_failed", map[string]any{"goalId": goal.ID, "error": pushRes.Error})
		return nil
	}
	_ = h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
		g.PushStatus = "pushed"
		return nil
	})

	if h.Tracer != nil {
		var span trace.Span
		ctx, span = orchotel.StartMergeSpan(ctx, h.Tracer, goal.ID, goal.Worktree.Branch)
		defer span.End()
	}

	mergeResult, mergeRes := h.workspace.MergeGoalBranch(goal.StrandID, goal.Worktree.Branch)

	mergeStatus := "error"
	mergeError := ""
	switch {
	case mergeRes.Ok && mergeResult.Merged:
		mergeStatus = "merged"
	case len(mergeResult.ConflictFiles) > 0:
		mergeStatus = "conflict"
		mergeError = mergeRes.Error
	default:
		mergeError = mergeRes.Error
	}

	if h.Metrics != nil {
		if mergeStatus == "merged" {
			h.Metrics.MergesSucceeded.Add(ctx, 1)
		} else if mergeStatus == "conflict" {
			h.Metrics.MergesConflicted.Add(ctx, 1)
		}
	}

	if err := h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
		g.MergeStatus = mergeStatus
		g.MergeError = mergeError
		g.MergedAtMs = entities.NowMs(time.Now())
		return nil
	}); err != nil {
		return err
	}

	h.publish("goal.merged", map[string]any{"goalId": goal.ID, "mergeStatus": mergeStatus, "branch": goal.Worktree.Branch})

	if mergeStatus != "merged" {
		return nil
	}

	if h.Sandbox != nil {
		verifyStatus, verifyError := "passed", ""
		result, err := h.Sandbox.VerifyMergedWorkspace(ctx, h.workspace.StrandDir(goal.StrandID), h.SandboxCommand)
		switch {
		case err != nil:
			verifyStatus, verifyError = "failed", err.Error()
		case !result.Passed:
			verifyStatus, verifyError = "failed", result.Stderr
		}
		if err := h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
			g.VerifyStatus = verifyStatus
			g.VerifyError = verifyError
			return nil
		}); err != nil {
			h.logger.Warn("hooks: record post-merge verification failed", "goalId", goal.ID, "error", err)
		}
		if verifyStatus != "passed" {
			h.logger.Warn("hooks: post-merge verification failed", "goalId", goal.ID, "error", verifyError)
			h.publish("goal.verify_failed", map[string]any{"goalId": goal.ID, "strandId": goal.StrandID, "error": verifyError})
		}
	}

	if pushMainRes := h.workspace.PushMainBranch(goal.StrandID); !pushMainRes.Ok {
		h.logger.Warn("hooks: push main branch after merge failed", "strandId", goal.StrandID, "error", pushMainRes.Error)
	}

	if err := h.store.UpdateGoal(goal.ID, func(g *entities.Goal) error {
		g.Status = entities.GoalStatusDone
		g.Completed = true
		return nil
	}); err != nil {
		return err
	}
	h.publish("goal.completed", map[string]any{"goalId": goal.ID, "strandId": goal.StrandID, "phase": goal.Phase})
	if h.Metrics != nil {
		h.Metrics.GoalsCompleted.Add(ctx, 1)
	}

	go h.delayedKickoffUnblocked(goal.StrandID, 2*time.Second)
	return nil
}

// delayedKickoffUnblocked waits delay then fires kickoffUnblockedGoals,
// giving downstream goals a brief grace period to settle before the
// next phase spawns.
func (h *Hooks) delayedKickoffUnblocked(strandID string, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	if _, err := h.scheduler.KickoffUnblockedGoals(strandID); err != nil {
		h.logger.Warn("hooks: kickoffUnblockedGoals after merge failed", "strandId", strandID, "error", err)
	}
}
