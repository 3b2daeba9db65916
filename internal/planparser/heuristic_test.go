package planparser

import (
	"context"
	"testing"
)

func TestParseGoalsFromPlan(t *testing.T) {
	md := "## Goals\n" +
		"- Add OAuth: wire login via OAuth2 (priority: 1, phase: 1)\n" +
		"- Add billing: Stripe integration (phase: 2)\n" +
		"- Polish UI: no phase given\n"

	p := NewHeuristicParser()
	plan, err := p.Parse(context.Background(), md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !plan.HasPlan {
		t.Fatal("expected HasPlan=true")
	}
	if len(plan.Goals) != 3 {
		t.Fatalf("expected 3 goals, got %d: %+v", len(plan.Goals), plan.Goals)
	}
	if plan.Goals[0].Title != "Add OAuth" || plan.Goals[0].Priority != 1 || plan.Goals[0].Phase != 1 {
		t.Errorf("unexpected first goal: %+v", plan.Goals[0])
	}
	if plan.Goals[2].Phase != 0 {
		t.Errorf("expected phase-less goal to default to 0, got %d", plan.Goals[2].Phase)
	}
}

func TestParseGoalsFromPlanCapturesNestedSuggestedTasks(t *testing.T) {
	md := "## Goals\n" +
		"- Add OAuth: wire login via OAuth2 (phase: 1)\n" +
		"  - Add JWT middleware\n" +
		"  - Add session store\n" +
		"- Add billing: Stripe integration (phase: 2)\n"

	p := NewHeuristicParser()
	plan, err := p.Parse(context.Background(), md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(plan.Goals) != 2 {
		t.Fatalf("expected 2 goals (sub-bullets must not become sibling goals), got %d: %+v", len(plan.Goals), plan.Goals)
	}
	if got := plan.Goals[0].SuggestedTasks; len(got) != 2 || got[0] != "Add JWT middleware" || got[1] != "Add session store" {
		t.Errorf("unexpected suggested tasks for first goal: %+v", got)
	}
	if len(plan.Goals[1].SuggestedTasks) != 0 {
		t.Errorf("second goal should have no suggested tasks, got %+v", plan.Goals[1].SuggestedTasks)
	}
}

func TestParseTasksFromPlan(t *testing.T) {
	md := "## Tasks\n" +
		"- Write migration: add users table (agent: backend, time: 2h)\n" +
		"- Add tests\n"

	p := NewHeuristicParser()
	plan, err := p.Parse(context.Background(), md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(plan.Tasks))
	}
	if plan.Tasks[0].Agent != "backend" || plan.Tasks[0].Time != "2h" {
		t.Errorf("unexpected first task: %+v", plan.Tasks[0])
	}
	if plan.Tasks[1].Text != "Add tests" {
		t.Errorf("expected second task text 'Add tests', got %q", plan.Tasks[1].Text)
	}
}

// TestDetectedButEmptyPlanStillReportsHasPlan is law L3: a plan section
// header with no bullets still reports HasPlan=true with an empty slice.
func TestDetectedButEmptyPlanStillReportsHasPlan(t *testing.T) {
	md := "Here's my thinking.\n\n## Goals\n"
	p := NewHeuristicParser()
	plan, err := p.Parse(context.Background(), md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !plan.HasPlan {
		t.Error("expected HasPlan=true for a detected-but-empty goals section")
	}
	if len(plan.Goals) != 0 {
		t.Errorf("expected zero goals, got %d", len(plan.Goals))
	}
}

func TestUnstructuredReplyYieldsNoPlan(t *testing.T) {
	md := "Sounds good, I'll get started on this right away and keep you posted."
	p := NewHeuristicParser()
	plan, err := p.Parse(context.Background(), md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if plan.HasPlan {
		t.Error("expected HasPlan=false for unstructured prose")
	}
}
