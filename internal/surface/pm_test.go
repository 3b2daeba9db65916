package surface

import (
	"context"
	"testing"

	"github.com/basket/go-strand/internal/entities"
)

func TestPMStrandCascadeCreatesGoals(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")

	plan := "## Goals\n" +
		"- Backend: build the API (phase: 1)\n" +
		"- Frontend: build the UI (phase: 2)\n"
	res := s.Dispatch(ctx, "pm.strandCreateGoals", mustJSON(t, pmStrandCascadeParams{StrandID: strandID, Content: plan}))
	if !res.Ok {
		t.Fatalf("pm.strandCreateGoals failed: %s", res.Error)
	}

	goals, err := st.ListGoalsByStrand(strandID)
	if err != nil {
		t.Fatalf("ListGoalsByStrand: %v", err)
	}
	if len(goals) == 0 {
		t.Fatalf("expected the heuristic parser to detect at least one goal")
	}
}

func TestPMChatRecordsHistoryOnGoalAndStrand(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")
	goal := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Backend"})).Payload.(*entities.Goal)

	res := s.Dispatch(ctx, "pm.chat", mustJSON(t, pmStrandChatParams{GoalID: goal.ID, Role: "user", Content: "status?"}))
	if !res.Ok {
		t.Fatalf("pm.chat (goal) failed: %s", res.Error)
	}
	refreshed, err := st.GetGoal(goal.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if len(refreshed.PMChatHistory) != 1 || refreshed.PMChatHistory[0].Content != "status?" {
		t.Fatalf("expected one recorded turn, got %+v", refreshed.PMChatHistory)
	}

	strandRes := s.Dispatch(ctx, "pm.strandChat", mustJSON(t, pmStrandChatParams{StrandID: strandID, Role: "user", Content: "kickoff everything"}))
	if !strandRes.Ok {
		t.Fatalf("pm.strandChat failed: %s", strandRes.Error)
	}
	strand, err := st.GetStrand(strandID)
	if err != nil {
		t.Fatalf("GetStrand: %v", err)
	}
	if len(strand.PMChatHistory) != 1 {
		t.Fatalf("expected one recorded strand turn, got %+v", strand.PMChatHistory)
	}
}
