package surface

import (
	"context"
	"encoding/json"

	"github.com/basket/go-strand/internal/entities"
)

type pmStrandChatParams struct {
	StrandID string `json:"strandId"`
	GoalID   string `json:"goalId,omitempty"`
	Role     string `json:"role"`
	Content  string `json:"content"`
}

// pmStrandChat appends a chat turn to a strand's (or, when goalId is
// set, a goal's) PM chat history — the caller is responsible for
// actually sending content to the gateway; this just records it.
func (s *Surface) pmStrandChat(raw json.RawMessage) Result {
	var p pmStrandChatParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Content == "" {
		return fail("pm.chat: content is required")
	}
	turn := entities.ChatMessage{Role: p.Role, Content: p.Content}

	if p.GoalID != "" {
		if err := s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error {
			g.PMChatHistory = append(g.PMChatHistory, turn)
			g.PMChatHistory = entities.TrimHistory(g.PMChatHistory, entities.DefaultHistoryLimit)
			return nil
		}); err != nil {
			return fail("pm.chat: %v", err)
		}
		goal, _ := s.Store.GetGoal(p.GoalID)
		return ok(goal.PMChatHistory)
	}

	if p.StrandID == "" {
		return fail("pm.chat: strandId or goalId is required")
	}
	if err := s.Store.UpdateStrand(p.StrandID, func(st *entities.Strand) error {
		st.PMChatHistory = append(st.PMChatHistory, turn)
		st.PMChatHistory = entities.TrimHistory(st.PMChatHistory, entities.DefaultHistoryLimit)
		return nil
	}); err != nil {
		return fail("pm.chat: %v", err)
	}
	strand, _ := s.Store.GetStrand(p.StrandID)
	return ok(strand.PMChatHistory)
}

type pmGoalCascadeParams struct {
	GoalID  string `json:"goalId"`
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

// pmGoalCascade is pm.saveResponse/pm.createTasksFromPlan's shared
// engine: it is exposed directly as its own operation too, since a
// caller that already has the PM's raw reply text needs exactly this
// one round trip.
func (s *Surface) pmGoalCascade(ctx context.Context, raw json.RawMessage) Result {
	var p pmGoalCascadeParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" || p.Content == "" {
		return fail("pm.goalCascade: goalId and content are required")
	}
	mode := entities.CascadeMode(p.Mode)
	if mode == "" {
		mode = entities.CascadeModeFull
	}
	result, err := s.Cascade.CreateTasksFromPlan(ctx, p.GoalID, p.Content, mode)
	if err != nil {
		return fail("pm.goalCascade: %v", err)
	}
	s.publish("goal.cascade_advanced", map[string]any{
		"goalId": p.GoalID, "cascadeState": result.CascadeState, "createdTasks": result.CreatedTasks,
	})
	return ok(result)
}

type pmStrandCascadeParams struct {
	StrandID string `json:"strandId"`
	Content  string `json:"content"`
}

func (s *Surface) pmStrandCascade(ctx context.Context, raw json.RawMessage) Result {
	var p pmStrandCascadeParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" || p.Content == "" {
		return fail("pm.strandCascade: strandId and content are required")
	}
	result, err := s.Cascade.CreateGoalsFromPlan(ctx, p.StrandID, p.Content)
	if err != nil {
		return fail("pm.strandCascade: %v", err)
	}
	s.publish("strand.cascade_complete", map[string]any{
		"strandId": p.StrandID, "createdGoals": result.CreatedGoals,
	})
	return ok(result)
}

// pmSaveResponse records a PM reply without requiring the caller to
// know cascade mode: used when a plan is only partially formed and the
// caller just wants the turn persisted (cascadeState=response_saved is
// CreateTasksFromPlan's own verdict when no plan is detected).
func (s *Surface) pmSaveResponse(raw json.RawMessage) Result {
	var p pmGoalCascadeParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" || p.Content == "" {
		return fail("pm.saveResponse: goalId and content are required")
	}
	if err := s.Store.UpdateGoal(p.GoalID, func(g *entities.Goal) error {
		g.PMChatHistory = append(g.PMChatHistory, entities.ChatMessage{Role: "assistant", Content: p.Content})
		g.PMChatHistory = entities.TrimHistory(g.PMChatHistory, entities.DefaultHistoryLimit)
		return nil
	}); err != nil {
		return fail("pm.saveResponse: %v", err)
	}
	goal, _ := s.Store.GetGoal(p.GoalID)
	return ok(goal)
}

func (s *Surface) pmCreateTasksFromPlan(ctx context.Context, raw json.RawMessage) Result {
	return s.pmGoalCascade(ctx, raw)
}

func (s *Surface) pmStrandCreateGoals(ctx context.Context, raw json.RawMessage) Result {
	return s.pmStrandCascade(ctx, raw)
}
