package hooks

import (
	"context"
	"fmt"

	"github.com/basket/go-strand/internal/entities"
)

// StrandToolOutput is the uniform text-plus-metadata shape every
// strand_* tool returns, matching goal_update's contract.
type StrandToolOutput struct {
	Text string         `json:"text"`
	Meta map[string]any `json:"_meta,omitempty"`
}

// strandBoundSession resolves the strand a non-PM session is bound to,
// the only callers allowed to invoke the strand_* surface.
func (h *Hooks) strandBoundSession(sessionKey string) (string, error) {
	c := h.classify(sessionKey)
	switch c.kind {
	case kindStrandBound:
		return c.strandID, nil
	case kindWorkerTask:
		goal, err := h.store.GetGoal(c.goalID)
		if err != nil {
			return "", err
		}
		return goal.StrandID, nil
	default:
		return "", fmt.Errorf("strand tools: session %s is not bound to a strand", sessionKey)
	}
}

// StrandBind reports the strand a session is bound to (
// strand_bind). It performs no mutation; bindings are established when
// the session is created, not by this tool.
func (h *Hooks) StrandBind(ctx context.Context, sessionKey string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	strand, err := h.store.GetStrand(strandID)
	if err != nil {
		return StrandToolOutput{}, err
	}
	return StrandToolOutput{
		Text: fmt.Sprintf("bound to strand %s (%s)", strand.ID, strand.Name),
		Meta: map[string]any{"strandId": strand.ID},
	}, nil
}

// StrandCreateGoal creates a goal directly (no PM cascade involved),
// used when a worker decides mid-task that a new deliverable is needed.
func (h *Hooks) StrandCreateGoal(ctx context.Context, sessionKey, title, description string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	goal := &entities.Goal{
		ID:           h.store.NewID("goal_"),
		Title:        title,
		Description:  description,
		Status:       entities.GoalStatusActive,
		StrandID:     strandID,
		CascadeState: entities.CascadeStateAwaitingPlan,
		MaxRetries:   entities.DefaultMaxRetries,
	}
	if err := h.store.CreateGoal(goal); err != nil {
		return StrandToolOutput{}, err
	}
	h.publish("goal.created", map[string]any{"goalId": goal.ID, "strandId": strandID})
	return StrandToolOutput{Text: "goal created: " + goal.ID, Meta: map[string]any{"goalId": goal.ID}}, nil
}

// StrandAddTask appends a task to an existing goal, chaining it after
// the goal's current last task (same ordering rule as goal_update's
// addTasks and cascade.CreateTasksFromPlan).
func (h *Hooks) StrandAddTask(ctx context.Context, sessionKey, goalID, text string) (StrandToolOutput, error) {
	if _, err := h.strandBoundSession(sessionKey); err != nil {
		return StrandToolOutput{}, err
	}
	ids, err := h.addTasks(goalID, []string{text})
	if err != nil {
		return StrandToolOutput{}, err
	}
	return StrandToolOutput{Text: "task added: " + ids[0], Meta: map[string]any{"taskId": ids[0]}}, nil
}

// StrandSpawnTask triggers an immediate kickoff attempt for a goal,
// equivalent to the scheduler noticing a newly-ready task on its own.
func (h *Hooks) StrandSpawnTask(ctx context.Context, sessionKey, goalID string) (StrandToolOutput, error) {
	if _, err := h.strandBoundSession(sessionKey); err != nil {
		return StrandToolOutput{}, err
	}
	result, err := h.scheduler.InternalKickoff(goalID)
	if err != nil {
		return StrandToolOutput{}, err
	}
	return StrandToolOutput{
		Text: result.Message,
		Meta: map[string]any{"spawned": len(result.SpawnedSessions)},
	}, nil
}

// StrandList lists every goal in the calling session's strand.
func (h *Hooks) StrandList(ctx context.Context, sessionKey string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	goals, err := h.store.ListGoalsByStrand(strandID)
	if err != nil {
		return StrandToolOutput{}, err
	}
	text := fmt.Sprintf("%d goal(s) in strand %s:\n", len(goals), strandID)
	ids := make([]string, 0, len(goals))
	for _, g := range goals {
		text += fmt.Sprintf("- [%s] %s: %s\n", g.Status, g.ID, g.Title)
		ids = append(ids, g.ID)
	}
	return StrandToolOutput{Text: text, Meta: map[string]any{"goalIds": ids}}, nil
}

// StrandStatus reports the strand PM cascade's outstanding work.
func (h *Hooks) StrandStatus(ctx context.Context, sessionKey string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	strand, err := h.store.GetStrand(strandID)
	if err != nil {
		return StrandToolOutput{}, err
	}
	text := fmt.Sprintf("strand %s: %d goal(s) awaiting cascade", strand.Name, len(strand.CascadePendingGoals))
	return StrandToolOutput{Text: text, Meta: map[string]any{"cascadePendingGoals": strand.CascadePendingGoals}}, nil
}

// StrandPMChat appends a message to the strand PM's chat history without
// invoking the gateway; used by tools that want to leave a note for the
// next PM turn.
func (h *Hooks) StrandPMChat(ctx context.Context, sessionKey, role, content string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	if err := h.store.UpdateStrand(strandID, func(s *entities.Strand) error {
		s.PMChatHistory = entities.TrimHistory(append(s.PMChatHistory, entities.ChatMessage{Role: role, Content: content}), entities.DefaultHistoryLimit)
		return nil
	}); err != nil {
		return StrandToolOutput{}, err
	}
	return StrandToolOutput{Text: "noted"}, nil
}

// StrandPMKickoff re-derives which goals are unblocked and kicks each
// off, the same sweep lifecycle.CleanupStale's caller and the post-merge
// grace period both invoke.
func (h *Hooks) StrandPMKickoff(ctx context.Context, sessionKey string) (StrandToolOutput, error) {
	strandID, err := h.strandBoundSession(sessionKey)
	if err != nil {
		return StrandToolOutput{}, err
	}
	results, err := h.scheduler.KickoffUnblockedGoals(strandID)
	if err != nil {
		return StrandToolOutput{}, err
	}
	spawned := 0
	for _, r := range results {
		spawned += len(r.SpawnedSessions)
	}
	return StrandToolOutput{
		Text: fmt.Sprintf("kicked off %d goal(s), %d session(s) spawned", len(results), spawned),
		Meta: map[string]any{"goalsConsidered": len(results), "spawned": spawned},
	}, nil
}
