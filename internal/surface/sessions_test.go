package surface

import (
	"context"
	"testing"

	"github.com/basket/go-strand/internal/entities"
)

func TestSessionsKillForGoalRequeuesInProgressTask(t *testing.T) {
	s, st, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")
	goal := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Backend"})).Payload.(*entities.Goal)
	s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: goal.ID, Text: "write handler"}))
	s.Dispatch(ctx, "goals.kickoff", mustJSON(t, goalIDParams{GoalID: goal.ID}))

	res := s.Dispatch(ctx, "sessions.killForGoal", mustJSON(t, goalIDParams{GoalID: goal.ID}))
	if !res.Ok {
		t.Fatalf("sessions.killForGoal failed: %s", res.Error)
	}

	refreshed, err := st.GetGoal(goal.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if refreshed.Tasks[0].SessionKey != "" || refreshed.Tasks[0].Status != entities.TaskStatusPending {
		t.Fatalf("expected task requeued to pending with no session, got %+v", refreshed.Tasks[0])
	}
}

func TestSessionsListForStrand(t *testing.T) {
	s, _, _ := newTestSurface(t)
	ctx := context.Background()
	strandID := mustCreateStrand(t, s, "App")
	goal := s.Dispatch(ctx, "goals.create", mustJSON(t, createGoalParams{StrandID: strandID, Title: "Backend"})).Payload.(*entities.Goal)
	s.Dispatch(ctx, "tasks.add", mustJSON(t, addTaskParams{GoalID: goal.ID, Text: "write handler"}))
	s.Dispatch(ctx, "goals.kickoff", mustJSON(t, goalIDParams{GoalID: goal.ID}))

	res := s.Dispatch(ctx, "sessions.listForStrand", mustJSON(t, strandIDParams{StrandID: strandID}))
	if !res.Ok {
		t.Fatalf("sessions.listForStrand failed: %s", res.Error)
	}
}
