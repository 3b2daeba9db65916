package lifecycle

import (
	"context"
	"testing"

	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/store"
)

type fakeGateway struct {
	aborted []string
	deleted []string
	failAll bool
}

func (g *fakeGateway) ChatAbort(_ context.Context, sessionKey string) error {
	g.aborted = append(g.aborted, sessionKey)
	if g.failAll {
		return errFake
	}
	return nil
}

func (g *fakeGateway) SessionsDelete(_ context.Context, sessionKey string) error {
	g.deleted = append(g.deleted, sessionKey)
	if g.failAll {
		return errFake
	}
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("simulated gateway failure")

func newTestManager(t *testing.T) (*Manager, *store.Store, *fakeGateway) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	gw := &fakeGateway{}
	return New(st, gw, nil), st, gw
}

func TestKillForGoalRequeuesNonDoneTasksAndToleratesGatewayFailure(t *testing.T) {
	m, st, gw := newTestManager(t)
	gw.failAll = true

	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(goal)

	running := entities.Task{ID: st.NewID("task_"), Text: "t1", Status: entities.TaskStatusInProgress}
	done := entities.Task{ID: st.NewID("task_"), Text: "t2", Status: entities.TaskStatusDone}
	_ = st.AddTask(goal.ID, running)
	_ = st.AddTask(goal.ID, done)
	_ = st.AssignSession(goal.ID, running.ID, "agent:main:webchat:task-r")
	_ = st.AssignSession(goal.ID, done.ID, "agent:main:webchat:task-d")

	result, err := m.KillForGoal(context.Background(), goal.ID)
	if err != nil {
		t.Fatalf("KillForGoal: %v", err)
	}
	if len(result.KilledSessions) != 2 {
		t.Fatalf("expected both sessions killed, got %+v", result.KilledSessions)
	}
	if len(result.RequeuedTaskIDs) != 1 || result.RequeuedTaskIDs[0] != running.ID {
		t.Fatalf("expected only the non-done task requeued, got %+v", result.RequeuedTaskIDs)
	}

	got, _ := st.GetGoal(goal.ID)
	requeued := got.FindTask(running.ID)
	if requeued.Status != entities.TaskStatusPending || requeued.SessionKey != "" {
		t.Errorf("expected requeued task pending with no session, got %+v", requeued)
	}
	stillDone := got.FindTask(done.ID)
	if stillDone.Status != entities.TaskStatusDone || stillDone.SessionKey == "" {
		t.Errorf("done task's session should be killed but its status untouched, got %+v", stillDone)
	}
}

func TestCleanupStaleOnlyTouchesNonTerminalNonInProgressTasks(t *testing.T) {
	m, st, _ := newTestManager(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(goal)

	waiting := entities.Task{ID: st.NewID("task_"), Text: "t1", Status: entities.TaskStatusWaiting}
	inProgress := entities.Task{ID: st.NewID("task_"), Text: "t2", Status: entities.TaskStatusInProgress}
	_ = st.AddTask(goal.ID, waiting)
	_ = st.AddTask(goal.ID, inProgress)
	_ = st.AssignSession(goal.ID, waiting.ID, "agent:main:webchat:task-w")
	_ = st.AssignSession(goal.ID, inProgress.ID, "agent:main:webchat:task-p")

	result, err := m.CleanupStale(context.Background(), strand.ID)
	if err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if len(result.KilledSessions) != 1 || result.KilledSessions[0] != "agent:main:webchat:task-w" {
		t.Fatalf("expected only the stale waiting task's session cleaned, got %+v", result.KilledSessions)
	}

	got, _ := st.GetGoal(goal.ID)
	if got.FindTask(inProgress.ID).SessionKey == "" {
		t.Error("in-progress task's session should be left alone")
	}
}

func TestListForStrandDelegatesToStore(t *testing.T) {
	m, st, _ := newTestManager(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App", PMStrandSessionKey: "agent:main:webchat:pm-strand-x"}
	_ = st.CreateStrand(strand)
	_ = st.RegisterStrandSession(strand.ID, strand.PMStrandSessionKey)

	sessions, err := m.ListForStrand(strand.ID)
	if err != nil {
		t.Fatalf("ListForStrand: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionKey != strand.PMStrandSessionKey {
		t.Fatalf("expected the strand PM session listed, got %+v", sessions)
	}
}
