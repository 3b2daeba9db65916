package surface

import (
	"context"
	"encoding/json"

	"github.com/basket/go-strand/internal/entities"
)

type createGoalParams struct {
	StrandID    string `json:"strandId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Phase       *int   `json:"phase,omitempty"`
	Worktree    bool   `json:"worktree,omitempty"`
}

func (s *Surface) goalsCreate(raw json.RawMessage) Result {
	var p createGoalParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Title == "" {
		return fail("goals.create: title is required")
	}

	now := entities.NowMs(nowFunc())
	goal := &entities.Goal{
		ID:           s.Store.NewID("goal_"),
		Title:        p.Title,
		Description:  p.Description,
		Status:       entities.GoalStatusActive,
		StrandID:     p.StrandID,
		Phase:        p.Phase,
		CascadeState: entities.CascadeStateAwaitingPlan,
		MaxRetries:   entities.DefaultMaxRetries,
		CreatedAtMs:  now,
		UpdatedAtMs:  now,
	}

	if p.Worktree && p.StrandID != "" && s.Workspace != nil {
		wt, res := s.Workspace.CreateGoalWorktree(p.StrandID, goal.ID, p.Title)
		if !res.Ok {
			s.Logger.Warn("goals.create: worktree creation failed", "goalId", goal.ID, "error", res.Error)
		} else {
			goal.Worktree = &entities.WorktreeRef{Path: wt.Path, Branch: wt.Branch}
		}
	}

	if err := s.Store.CreateGoal(goal); err != nil {
		return fail("goals.create: %v", err)
	}
	return ok(goal)
}

type goalIDParams struct {
	GoalID string `json:"goalId"`
}

func (s *Surface) goalsGet(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.get: goalId is required")
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.get: %v", err)
	}
	return ok(goal)
}

func (s *Surface) goalsList(raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("goals.list: strandId is required")
	}
	goals, err := s.Store.ListGoalsByStrand(p.StrandID)
	if err != nil {
		return fail("goals.list: %v", err)
	}
	return ok(goals)
}

type updateGoalParams struct {
	GoalID      string  `json:"goalId"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (s *Surface) goalsUpdate(raw json.RawMessage) Result {
	var p updateGoalParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.update: goalId is required")
	}
	err := s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error {
		if p.Title != nil {
			g.Title = *p.Title
		}
		if p.Description != nil {
			g.Description = *p.Description
		}
		if p.Status != nil {
			g.Status = entities.GoalStatus(*p.Status)
			g.Completed = g.Status == entities.GoalStatusDone
		}
		g.UpdatedAtMs = entities.NowMs(nowFunc())
		return nil
	})
	if err != nil {
		return fail("goals.update: %v", err)
	}
	goal, _ := s.Store.GetGoal(p.GoalID)
	return ok(goal)
}

func (s *Surface) goalsDelete(ctx context.Context, raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.delete: goalId is required")
	}

	var killed []string
	if s.Lifecycle != nil {
		r, err := s.Lifecycle.KillForGoal(ctx, p.GoalID)
		if err != nil {
			s.Logger.Warn("goals.delete: killForGoal failed", "goalId", p.GoalID, "error", err)
		}
		killed = r.KilledSessions
	}

	goal, _ := s.Store.GetGoal(p.GoalID)
	if err := s.Store.DeleteGoal(p.GoalID); err != nil {
		return fail("goals.delete: %v", err)
	}
	if goal != nil && goal.Worktree != nil && s.Workspace != nil {
		if res := s.Workspace.RemoveGoalWorktree(goal.StrandID, goal.ID, goal.Worktree.Branch, true, true); !res.Ok {
			s.Logger.Warn("goals.delete: worktree removal failed", "goalId", p.GoalID, "error", res.Error)
		}
	}

	s.publish("goal.deleted", map[string]any{"goalId": p.GoalID})
	return ok(map[string]any{"killedSessions": killed})
}

func (s *Surface) goalsKickoff(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.kickoff: goalId is required")
	}
	result, err := s.Scheduler.InternalKickoff(p.GoalID)
	if err != nil {
		return fail("goals.kickoff: %v", err)
	}
	return ok(result)
}

// goalsClose kills every session attached to the goal, removes its
// worktree, and marks it done.
func (s *Surface) goalsClose(ctx context.Context, raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.close: goalId is required")
	}

	if s.Lifecycle != nil {
		if _, err := s.Lifecycle.KillForGoal(ctx, p.GoalID); err != nil {
			s.Logger.Warn("goals.close: killForGoal failed", "goalId", p.GoalID, "error", err)
		}
	}

	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.close: %v", err)
	}
	if goal.Worktree != nil && s.Workspace != nil {
		if res := s.Workspace.RemoveGoalWorktree(goal.StrandID, goal.ID, goal.Worktree.Branch, true, false); !res.Ok {
			s.Logger.Warn("goals.close: worktree removal failed", "goalId", p.GoalID, "error", res.Error)
		}
	}

	now := entities.NowMs(nowFunc())
	if err := s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error {
		g.Status = entities.GoalStatusDone
		g.Completed = true
		g.ClosedAtMs = now
		return nil
	}); err != nil {
		return fail("goals.close: %v", err)
	}

	s.publish("goal.closed", map[string]any{"goalId": p.GoalID})
	goal, _ = s.Store.GetGoal(p.GoalID)
	return ok(goal)
}

func (s *Surface) goalsBranchStatus(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.branchStatus: goalId is required")
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.branchStatus: %v", err)
	}
	if goal.Worktree == nil || s.Workspace == nil {
		return fail("goals.branchStatus: goal has no worktree")
	}
	status, res := s.Workspace.CheckBranchStatus(goal.StrandID, goal.Worktree.Branch)
	if !res.Ok {
		return fail("goals.branchStatus: %s", res.Error)
	}
	return ok(status)
}

// goalsCreatePR is a stub: this core has no forge (GitHub/GitLab) client
// wired in; it reports the branch that would need a PR opened against it so an
// operator or external automation can do so.
func (s *Surface) goalsCreatePR(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.createPR: goalId is required")
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.createPR: %v", err)
	}
	if goal.Worktree == nil {
		return fail("goals.createPR: goal has no worktree/branch")
	}
	return ok(map[string]any{"branch": goal.Worktree.Branch, "note": "no forge client configured; open the PR out of band"})
}

func (s *Surface) goalsRetryPush(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.retryPush: goalId is required")
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.retryPush: %v", err)
	}
	if goal.Worktree == nil || s.Workspace == nil {
		return fail("goals.retryPush: goal has no worktree")
	}
	res := s.Workspace.PushGoalBranch(goal.StrandID, goal.ID, goal.Worktree.Branch)
	status := "pushed"
	if !res.Ok {
		status = "error"
	}
	_ = s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error { g.PushStatus = status; return nil })
	if !res.Ok {
		return fail("goals.retryPush: %s", res.Error)
	}
	return ok(map[string]any{"pushStatus": status})
}

func (s *Surface) goalsRetryMerge(raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("goals.retryMerge: goalId is required")
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("goals.retryMerge: %v", err)
	}
	if goal.Worktree == nil || s.Workspace == nil {
		return fail("goals.retryMerge: goal has no worktree")
	}

	result, res := s.Workspace.MergeGoalBranch(goal.StrandID, goal.Worktree.Branch)
	mergeStatus := "error"
	mergeError := ""
	switch {
	case res.Ok && result.Merged:
		mergeStatus = "merged"
	case len(result.ConflictFiles) > 0:
		mergeStatus = "conflict"
		mergeError = res.Error
	default:
		mergeError = res.Error
	}
	_ = s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error {
		g.MergeStatus = mergeStatus
		g.MergeError = mergeError
		g.MergedAtMs = entities.NowMs(nowFunc())
		return nil
	})
	s.publish("goal.merged", map[string]any{"goalId": p.GoalID, "mergeStatus": mergeStatus, "branch": goal.Worktree.Branch})
	return ok(map[string]any{"mergeStatus": mergeStatus, "conflictFiles": result.ConflictFiles})
}

func (s *Surface) goalsPushMain(raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("goals.pushMain: strandId is required")
	}
	if s.Workspace == nil {
		return fail("goals.pushMain: no workspace configured")
	}
	res := s.Workspace.PushMainBranch(p.StrandID)
	if !res.Ok {
		return fail("goals.pushMain: %s", res.Error)
	}
	return ok(map[string]any{"pushed": true})
}
