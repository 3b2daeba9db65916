// Package cascade transforms a PM agent's reply into concrete Goals or
// Tasks and advances the owning entity's cascade state machine. Its two
// entry points apply well-formedness checks — reject malformed
// dependency references before they reach the Store — generalized from
// a DAG-of-steps validator to goal/task dependency conversion.
package cascade

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/planparser"
	"github.com/basket/go-strand/internal/store"
)

// Processor applies plan-parser output to the Store.
type Processor struct {
	store  *store.Store
	parser planparser.Parser
}

func NewProcessor(st *store.Store, parser planparser.Parser) *Processor {
	return &Processor{store: st, parser: parser}
}

// CreateGoalsFromPlanResult reports what a strand-level cascade did.
type CreateGoalsFromPlanResult struct {
	HasPlan      bool
	CreatedGoals []string
}

// CreateGoalsFromPlan saves content as the strand's pmPlanContent, parses
// it, and — if it yields goals — creates one Goal per entry in order,
// converting phase numbers to dependsOn edges: every
// goal in phase N depends on all goals with phase < N, and the smallest
// phase present "wins" no-deps status. Phase-less goals get no deps.
// Embedded per-goal task suggestions are not materialized as tasks; they
// are folded into each goal's description under a fixed header.
func (p *Processor) CreateGoalsFromPlan(ctx context.Context, strandID, content string) (CreateGoalsFromPlanResult, error) {
	if err := p.store.View(func(d *store.Data) error {
		if _, ok := d.Strands[strandID]; !ok {
			return fmt.Errorf("cascade: strand %s not found", strandID)
		}
		return nil
	}); err != nil {
		return CreateGoalsFromPlanResult{}, err
	}

	if err := p.store.UpdateStrand(strandID, func(s *entities.Strand) error {
		s.PMPlanContent = content
		return nil
	}); err != nil {
		return CreateGoalsFromPlanResult{}, err
	}

	plan, err := p.parser.Parse(ctx, content)
	if err != nil {
		return CreateGoalsFromPlanResult{}, fmt.Errorf("cascade: parse plan: %w", err)
	}
	if !plan.HasPlan || len(plan.Goals) == 0 {
		return CreateGoalsFromPlanResult{HasPlan: plan.HasPlan}, nil
	}

	// phaseOrder collects the distinct phase numbers present, ascending,
	// excluding the "no phase" sentinel 0.
	var phases []int
	seenPhase := map[int]bool{}
	for _, g := range plan.Goals {
		if g.Phase > 0 && !seenPhase[g.Phase] {
			seenPhase[g.Phase] = true
			phases = append(phases, g.Phase)
		}
	}
	sort.Ints(phases)

	// First pass: mint every goal's id and bucket it by phase before any
	// dependsOn is computed, so a phase-N bullet appearing before its
	// phase-<N prerequisites in the markdown still resolves every
	// earlier-phase goal (ids, unlike textual order, don't depend on
	// where the PM happened to list the bullet).
	ids := make([]string, len(plan.Goals))
	goalIDsByPhase := map[int][]string{}
	for i, pg := range plan.Goals {
		goalID := p.store.NewID("goal_")
		ids[i] = goalID
		goalIDsByPhase[pg.Phase] = append(goalIDsByPhase[pg.Phase], goalID)
	}

	// Store.CreateGoal validates that every dependsOn id already exists,
	// so goals must actually be created in phase-ascending order even
	// though the markdown may list them out of order; process a working
	// copy of the indices sorted by phase (stable, so same-phase goals
	// keep their original relative order) and only use that order for
	// the CreateGoal calls themselves.
	order := make([]int, len(plan.Goals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return plan.Goals[order[a]].Phase < plan.Goals[order[b]].Phase
	})

	created := make([]string, len(plan.Goals))
	var createdInOrder []string

	for _, i := range order {
		pg := plan.Goals[i]
		goalID := ids[i]
		goal := &entities.Goal{
			ID:           goalID,
			StrandID:     strandID,
			Title:        pg.Title,
			Description:  withSuggestedTasks(pg.Description, pg.SuggestedTasks),
			Status:       entities.GoalStatusActive,
			CascadeState: entities.CascadeStateAwaitingPlan,
			CascadeMode:  entities.CascadeModePlan,
		}
		if pg.Phase > 0 {
			phase := pg.Phase
			goal.Phase = &phase
		}

		var deps []string
		for _, ph := range phases {
			if ph < pg.Phase {
				deps = append(deps, goalIDsByPhase[ph]...)
			}
		}
		goal.DependsOn = deps

		if err := p.store.CreateGoal(goal); err != nil {
			return CreateGoalsFromPlanResult{HasPlan: true, CreatedGoals: createdInOrder}, fmt.Errorf("cascade: create goal: %w", err)
		}
		created[i] = goalID
		createdInOrder = append(createdInOrder, goalID)
	}

	return CreateGoalsFromPlanResult{HasPlan: true, CreatedGoals: created}, nil
}

// withSuggestedTasks appends suggested, one per line, to description
// under a fixed header. They are not materialized as Tasks here — that
// requires a subsequent goal-level cascade once a goal-PM session
// reviews them.
func withSuggestedTasks(description string, suggested []string) string {
	if len(suggested) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString(description)
	if description != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("## Suggested tasks from project plan\n")
	for _, s := range suggested {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}
