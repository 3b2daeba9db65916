package scheduler

import (
	"testing"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/store"
)

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(event string, _ map[string]any) {
	r.events = append(r.events, event)
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *recordingPublisher) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	pub := &recordingPublisher{}
	return New(st, agentrole.NewResolver(""), pub, nil), st, pub
}

func TestInternalKickoffSpawnsOnlyReadyTasks(t *testing.T) {
	s, st, pub := newTestScheduler(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(goal)

	first := entities.Task{ID: st.NewID("task_"), Text: "first", Status: entities.TaskStatusPending}
	second := entities.Task{ID: st.NewID("task_"), Text: "second", Status: entities.TaskStatusPending, DependsOn: []string{first.ID}}
	_ = st.AddTask(goal.ID, first)
	_ = st.AddTask(goal.ID, second)

	result, err := s.InternalKickoff(goal.ID)
	if err != nil {
		t.Fatalf("InternalKickoff: %v", err)
	}
	if len(result.SpawnedSessions) != 1 || result.SpawnedSessions[0].TaskID != first.ID {
		t.Fatalf("expected only the dependency-free task to spawn, got %+v", result.SpawnedSessions)
	}
	if len(pub.events) != 1 || pub.events[0] != "goal.kickoff" {
		t.Errorf("expected a goal.kickoff event, got %v", pub.events)
	}

	got, _ := st.GetGoal(goal.ID)
	firstTask := got.FindTask(first.ID)
	if firstTask.Status != entities.TaskStatusInProgress || firstTask.SessionKey == "" {
		t.Errorf("expected first task in-progress with a session, got %+v", firstTask)
	}
	secondTask := got.FindTask(second.ID)
	if secondTask.Status != entities.TaskStatusPending || secondTask.SessionKey != "" {
		t.Errorf("expected blocked second task to remain untouched, got %+v", secondTask)
	}
}

func TestInternalKickoffReportsBlockedByGoalDependencies(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	upstream := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(upstream)
	downstream := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive, DependsOn: []string{upstream.ID}}
	_ = st.CreateGoal(downstream)
	_ = st.AddTask(downstream.ID, entities.Task{ID: st.NewID("task_"), Text: "t", Status: entities.TaskStatusPending})

	result, err := s.InternalKickoff(downstream.ID)
	if err != nil {
		t.Fatalf("InternalKickoff: %v", err)
	}
	if result.Message != "blocked by dependencies" || len(result.SpawnedSessions) != 0 {
		t.Errorf("expected blocked message, got %+v", result)
	}
}

func TestKickoffUnblockedGoalsSkipsGoalsAlreadySpawned(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	upstream := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusDone}
	_ = st.CreateGoal(upstream)
	downstream := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive, DependsOn: []string{upstream.ID}}
	_ = st.CreateGoal(downstream)
	_ = st.AddTask(downstream.ID, entities.Task{ID: st.NewID("task_"), Text: "t", Status: entities.TaskStatusPending})

	results, err := s.KickoffUnblockedGoals(strand.ID)
	if err != nil {
		t.Fatalf("KickoffUnblockedGoals: %v", err)
	}
	if len(results) != 1 || len(results[0].SpawnedSessions) != 1 {
		t.Fatalf("expected the downstream goal to spawn once, got %+v", results)
	}

	again, err := s.KickoffUnblockedGoals(strand.ID)
	if err != nil {
		t.Fatalf("second KickoffUnblockedGoals: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no goals eligible on second pass (already has sessions), got %+v", again)
	}
}
