package store

import (
	"path/filepath"
	"testing"

	"github.com/basket/go-strand/internal/entities"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetStrand(t *testing.T) {
	s := openTestStore(t)
	strand := &entities.Strand{ID: s.NewID("strand_"), Name: "App", CreatedAtMs: 1, UpdatedAtMs: 1}
	if err := s.CreateStrand(strand); err != nil {
		t.Fatalf("CreateStrand: %v", err)
	}

	got, err := s.GetStrand(strand.ID)
	if err != nil {
		t.Fatalf("GetStrand: %v", err)
	}
	if got.Name != "App" {
		t.Errorf("expected Name App, got %q", got.Name)
	}

	// Mutating the returned clone must not affect the stored document.
	got.Name = "Mutated"
	again, _ := s.GetStrand(strand.ID)
	if again.Name != "App" {
		t.Errorf("GetStrand must return a deep copy; stored strand was mutated to %q", again.Name)
	}
}

func TestReopenReloadsPersistedSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	strand := &entities.Strand{ID: s.NewID("strand_"), Name: "App", CreatedAtMs: 1, UpdatedAtMs: 1}
	if err := s.CreateStrand(strand); err != nil {
		t.Fatalf("CreateStrand: %v", err)
	}
	_ = s.Close()

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetStrand(strand.ID)
	if err != nil {
		t.Fatalf("GetStrand after reopen: %v", err)
	}
	if got.Name != "App" {
		t.Errorf("expected persisted strand to survive reopen, got %q", got.Name)
	}
}

func TestNewIDSeedsFromExistingMaxOnReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		strand := &entities.Strand{ID: s.NewID("strand_"), Name: "x", CreatedAtMs: 1, UpdatedAtMs: 1}
		if err := s.CreateStrand(strand); err != nil {
			t.Fatalf("CreateStrand: %v", err)
		}
	}
	_ = s.Close()

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	next := reopened.NewID("strand_")
	if next != "strand_4" {
		t.Errorf("expected newId to continue from max existing id, got %q", next)
	}
}

func TestAssignSessionRejectsDoubleOwnership(t *testing.T) {
	s := openTestStore(t)
	strand := &entities.Strand{ID: s.NewID("strand_"), Name: "App", CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.CreateStrand(strand)
	goal := &entities.Goal{ID: s.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive, CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.CreateGoal(goal)
	task := entities.Task{ID: s.NewID("task_"), Status: entities.TaskStatusPending, CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.AddTask(goal.ID, task)

	if err := s.AssignSession(goal.ID, task.ID, "agent:main:webchat:task-1"); err != nil {
		t.Fatalf("first AssignSession: %v", err)
	}
	if err := s.AssignSession(goal.ID, task.ID, "agent:main:webchat:task-1"); err == nil {
		t.Error("expected second assignment of the same sessionKey to fail (invariant 6)")
	}
}

func TestDeleteStrandCascadesGoalsAndSessions(t *testing.T) {
	s := openTestStore(t)
	strand := &entities.Strand{ID: s.NewID("strand_"), Name: "App", CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.CreateStrand(strand)
	goal := &entities.Goal{ID: s.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive, CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.CreateGoal(goal)
	task := entities.Task{ID: s.NewID("task_"), Status: entities.TaskStatusPending, CreatedAtMs: 1, UpdatedAtMs: 1}
	_ = s.AddTask(goal.ID, task)
	_ = s.AssignSession(goal.ID, task.ID, "agent:main:webchat:task-1")

	result, err := s.DeleteStrand(strand.ID)
	if err != nil {
		t.Fatalf("DeleteStrand: %v", err)
	}
	if len(result.DeletedGoalIDs) != 1 || len(result.KilledSessions) != 1 {
		t.Fatalf("unexpected cascade result: %+v", result)
	}

	if _, err := s.GetGoal(goal.ID); err == nil {
		t.Error("expected goal to be gone after strand delete")
	}
	kind, _ := s.LookupSession("agent:main:webchat:task-1")
	if kind != SessionKindUnknown {
		t.Error("expected session index entry to be removed after strand delete")
	}
}

func TestInvariantsCatchesStrandIdDangling(t *testing.T) {
	d := newData()
	d.Goals["goal_1"] = &entities.Goal{ID: "goal_1", StrandID: "strand_missing", CreatedAtMs: 1, UpdatedAtMs: 1}
	if err := Invariants(d); err == nil {
		t.Error("expected Invariants to flag a goal referencing a missing strand")
	}
}
