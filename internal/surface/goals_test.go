package surface

import (
	"context"
	"testing"

	"github.com/basket/go-strand/internal/entities"
)

func mustCreateStrand(t *testing.T, s *Surface, name string) string {
	t.Helper()
	res := s.Dispatch(context.Background(), "strands.create", mustJSON(t, createStrandParams{Name: name}))
	if !res.Ok {
		t.Fatalf("strands.create failed: %s", res.Error)
	}
	return res.Payload.(*entities.Strand).ID
}

func TestGoalsCreateGetUpdateKickoff(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")

	created := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Backend"}))
	if !created.Ok {
		t.Fatalf("goals.create failed: %s", created.Error)
	}
	goal := created.Payload.(*entities.Goal)

	added := s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: goal.ID, Text: "write handler"}))
	if !added.Ok {
		t.Fatalf("tasks.add failed: %s", added.Error)
	}

	kicked := s.Dispatch(ctx, "goals.kickoff", mustJSON(t, goalIDParams{GoalID: goal.ID}))
	if !kicked.Ok {
		t.Fatalf("goals.kickoff failed: %s", kicked.Error)
	}

	refreshed, err := st.GetGoal(goal.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if len(refreshed.Tasks) != 1 || refreshed.Tasks[0].SessionKey == "" {
		t.Fatalf("expected kickoff to spawn a session for the task, got %+v", refreshed.Tasks)
	}

	second := "paused"
	updated := s.Dispatch(ctx, "goals.update", mustJSON(t, updateGoalParams{GoalID: goal.ID, Title: &second}))
	if !updated.Ok {
		t.Fatalf("goals.update failed: %s", updated.Error)
	}
	if updated.Payload.(*entities.Goal).Title != "paused" {
		t.Fatalf("expected title update to apply")
	}
}

func TestGoalsDeleteKillsSessionsAndRemovesGoal(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")

	created := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Backend"}))
	goal := created.Payload.(*entities.Goal)
	s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: goal.ID, Text: "write handler"}))
	s.Dispatch(ctx, "goals.kickoff", mustJSON(t, goalIDParams{GoalID: goal.ID}))

	deleted := s.Dispatch(ctx, "goals.delete", mustJSON(t, goalIDParams{GoalID: goal.ID}))
	if !deleted.Ok {
		t.Fatalf("goals.delete failed: %s", deleted.Error)
	}
	if _, err := st.GetGoal(goal.ID); err == nil {
		t.Fatalf("expected goal to be deleted")
	}
}

func TestGoalsKickoffBlockedByDependencies(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")

	g1 := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Phase1"})).Payload.(*entities.Goal)
	s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: g1.ID, Text: "setup"}))

	g2 := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Phase2"})).Payload.(*entities.Goal)
	if err := st.UpdateGoal(g2.ID, func(g *entities.Goal) error {
		g.DependsOn = []string{g1.ID}
		return nil
	}); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}
	s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: g2.ID, Text: "build on phase1"}))

	blocked := s.Dispatch(ctx, "goals.kickoff", mustJSON(t, goalIDParams{GoalID: g2.ID}))
	if !blocked.Ok {
		t.Fatalf("goals.kickoff should report ok with an empty spawn list, got %s", blocked.Error)
	}
}
