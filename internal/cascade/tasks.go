package cascade

import (
	"context"
	"fmt"

	"github.com/basket/go-strand/internal/entities"
)

// CreateTasksFromPlanResult reports what a goal-level cascade did.
type CreateTasksFromPlanResult struct {
	CascadeState entities.CascadeState
	CreatedTasks []string
}

// CreateTasksFromPlan appends content to the goal's pmChatHistory as an
// assistant turn, parses it, and advances the goal's cascade state
//:
//
//   - no plan detected            -> response_saved
//   - plan detected, mode=plan    -> plan_ready (no tasks created)
//   - plan detected, mode=full,
//     tasks extract               -> tasks_created, sequential dependsOn
//   - plan detected, mode=full,
//     no tasks extract            -> plan_parse_failed
func (p *Processor) CreateTasksFromPlan(ctx context.Context, goalID, content string, mode entities.CascadeMode) (CreateTasksFromPlanResult, error) {
	plan, err := p.parser.Parse(ctx, content)
	if err != nil {
		return CreateTasksFromPlanResult{}, fmt.Errorf("cascade: parse plan: %w", err)
	}

	var created []string
	var nextState entities.CascadeState

	switch {
	case !plan.HasPlan:
		nextState = entities.CascadeStateResponseSaved
	case mode == entities.CascadeModePlan:
		nextState = entities.CascadeStatePlanReady
	case len(plan.Tasks) == 0:
		nextState = entities.CascadeStatePlanParseFailed
	default:
		nextState = entities.CascadeStateTasksCreated
	}

	err = p.store.UpdateGoal(goalID, func(g *entities.Goal) error {
		g.PMChatHistory = append(g.PMChatHistory, entities.ChatMessage{Role: "assistant", Content: content})
		g.PMChatHistory = entities.TrimHistory(g.PMChatHistory, entities.DefaultHistoryLimit)
		g.CascadeState = nextState
		g.CascadeMode = mode

		if nextState != entities.CascadeStateTasksCreated {
			return nil
		}

		var previousID string
		for i, pt := range plan.Tasks {
			taskID := p.store.NewID("task_")
			task := entities.Task{
				ID:            taskID,
				Text:          pt.Text,
				Description:   pt.Description,
				Status:        entities.TaskStatusPending,
				AssignedAgent: pt.Agent,
				EstimatedTime: pt.Time,
				MaxRetries:    entities.DefaultMaxRetries,
			}
			if i > 0 {
				task.DependsOn = []string{previousID}
			}
			g.Tasks = append(g.Tasks, task)
			created = append(created, taskID)
			previousID = taskID
		}
		return nil
	})
	if err != nil {
		return CreateTasksFromPlanResult{}, fmt.Errorf("cascade: update goal: %w", err)
	}

	return CreateTasksFromPlanResult{CascadeState: nextState, CreatedTasks: created}, nil
}
