package cascade

import (
	"context"
	"strings"
	"testing"

	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/planparser"
	"github.com/basket/go-strand/internal/store"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewProcessor(st, planparser.NewHeuristicParser()), st
}

func TestCreateGoalsFromPlanConvertsPhasesToDependsOn(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	if err := st.CreateStrand(strand); err != nil {
		t.Fatalf("CreateStrand: %v", err)
	}

	md := "## Goals\n" +
		"- Schema: design tables (phase: 1)\n" +
		"- API: build endpoints (phase: 2)\n" +
		"- Frontend: wire UI (phase: 2)\n"

	result, err := p.CreateGoalsFromPlan(context.Background(), strand.ID, md)
	if err != nil {
		t.Fatalf("CreateGoalsFromPlan: %v", err)
	}
	if !result.HasPlan || len(result.CreatedGoals) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}

	schema, _ := st.GetGoal(result.CreatedGoals[0])
	if len(schema.DependsOn) != 0 {
		t.Errorf("phase 1 (lowest) goal should have no deps, got %v", schema.DependsOn)
	}

	api, _ := st.GetGoal(result.CreatedGoals[1])
	if len(api.DependsOn) != 1 || api.DependsOn[0] != schema.ID {
		t.Errorf("phase 2 goal should depend on phase 1 goal, got %v", api.DependsOn)
	}

	frontend, _ := st.GetGoal(result.CreatedGoals[2])
	if len(frontend.DependsOn) != 1 || frontend.DependsOn[0] != schema.ID {
		t.Errorf("second phase-2 goal should also depend only on phase 1, got %v", frontend.DependsOn)
	}
}

func TestCreateGoalsFromPlanConvertsPhasesToDependsOnOutOfOrderBullets(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	if err := st.CreateStrand(strand); err != nil {
		t.Fatalf("CreateStrand: %v", err)
	}

	// The phase-2 bullet is listed before its phase-1 prerequisite.
	md := "## Goals\n" +
		"- API: build endpoints (phase: 2)\n" +
		"- Schema: design tables (phase: 1)\n"

	result, err := p.CreateGoalsFromPlan(context.Background(), strand.ID, md)
	if err != nil {
		t.Fatalf("CreateGoalsFromPlan: %v", err)
	}
	if !result.HasPlan || len(result.CreatedGoals) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	api, _ := st.GetGoal(result.CreatedGoals[0])
	schema, _ := st.GetGoal(result.CreatedGoals[1])

	if len(schema.DependsOn) != 0 {
		t.Errorf("phase 1 goal should have no deps, got %v", schema.DependsOn)
	}
	if len(api.DependsOn) != 1 || api.DependsOn[0] != schema.ID {
		t.Errorf("phase 2 goal listed before its phase 1 prerequisite should still depend on it, got %v", api.DependsOn)
	}
}

func TestCreateGoalsFromPlanFoldsSuggestedTasksIntoDescription(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	if err := st.CreateStrand(strand); err != nil {
		t.Fatalf("CreateStrand: %v", err)
	}

	md := "## Goals\n" +
		"- Schema: design tables (phase: 1)\n" +
		"  - Create users table\n" +
		"  - Create sessions table\n"

	result, err := p.CreateGoalsFromPlan(context.Background(), strand.ID, md)
	if err != nil {
		t.Fatalf("CreateGoalsFromPlan: %v", err)
	}
	if len(result.CreatedGoals) != 1 {
		t.Fatalf("expected 1 goal, got %+v", result)
	}

	goal, _ := st.GetGoal(result.CreatedGoals[0])
	if !strings.Contains(goal.Description, "## Suggested tasks from project plan") {
		t.Fatalf("expected suggested-tasks header in description, got %q", goal.Description)
	}
	if !strings.Contains(goal.Description, "- Create users table") || !strings.Contains(goal.Description, "- Create sessions table") {
		t.Errorf("expected both suggested tasks in description, got %q", goal.Description)
	}
	if len(goal.Tasks) != 0 {
		t.Errorf("suggested tasks must not be materialized as tasks, got %+v", goal.Tasks)
	}
}

func TestCreateGoalsFromPlanNoGoalsYieldsEmptyCreatedList(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)

	result, err := p.CreateGoalsFromPlan(context.Background(), strand.ID, "Just chatting, no plan here.")
	if err != nil {
		t.Fatalf("CreateGoalsFromPlan: %v", err)
	}
	if result.HasPlan || len(result.CreatedGoals) != 0 {
		t.Errorf("expected no plan detected, got %+v", result)
	}
}

func TestCreateTasksFromPlanFullModeChainsSequentialDeps(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	if err := st.CreateGoal(goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	md := "## Tasks\n- Write migration\n- Write handler\n- Write tests\n"
	result, err := p.CreateTasksFromPlan(context.Background(), goal.ID, md, entities.CascadeModeFull)
	if err != nil {
		t.Fatalf("CreateTasksFromPlan: %v", err)
	}
	if result.CascadeState != entities.CascadeStateTasksCreated || len(result.CreatedTasks) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, _ := st.GetGoal(goal.ID)
	if len(got.Tasks[0].DependsOn) != 0 {
		t.Errorf("first task should have no deps, got %v", got.Tasks[0].DependsOn)
	}
	if len(got.Tasks[1].DependsOn) != 1 || got.Tasks[1].DependsOn[0] != got.Tasks[0].ID {
		t.Errorf("second task should depend on first, got %v", got.Tasks[1].DependsOn)
	}
	if len(got.Tasks[2].DependsOn) != 1 || got.Tasks[2].DependsOn[0] != got.Tasks[1].ID {
		t.Errorf("third task should depend on second, got %v", got.Tasks[2].DependsOn)
	}
}

func TestCreateTasksFromPlanModeReportsNoTasksYet(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(goal)

	md := "## Tasks\n- Write migration\n"
	result, err := p.CreateTasksFromPlan(context.Background(), goal.ID, md, entities.CascadeModePlan)
	if err != nil {
		t.Fatalf("CreateTasksFromPlan: %v", err)
	}
	if result.CascadeState != entities.CascadeStatePlanReady || len(result.CreatedTasks) != 0 {
		t.Fatalf("expected plan_ready with no tasks materialized yet, got %+v", result)
	}
}

func TestCreateTasksFromPlanUnstructuredReplySavesResponse(t *testing.T) {
	p, st := newTestProcessor(t)
	strand := &entities.Strand{ID: st.NewID("strand_"), Name: "App"}
	_ = st.CreateStrand(strand)
	goal := &entities.Goal{ID: st.NewID("goal_"), StrandID: strand.ID, Status: entities.GoalStatusActive}
	_ = st.CreateGoal(goal)

	result, err := p.CreateTasksFromPlan(context.Background(), goal.ID, "Sounds good, will do.", entities.CascadeModeFull)
	if err != nil {
		t.Fatalf("CreateTasksFromPlan: %v", err)
	}
	if result.CascadeState != entities.CascadeStateResponseSaved {
		t.Errorf("expected response_saved, got %v", result.CascadeState)
	}

	got, _ := st.GetGoal(goal.ID)
	if len(got.PMChatHistory) != 1 || got.PMChatHistory[0].Content != "Sounds good, will do." {
		t.Errorf("expected assistant turn appended to history, got %+v", got.PMChatHistory)
	}
}
