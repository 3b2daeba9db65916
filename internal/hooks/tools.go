package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/go-strand/internal/entities"
)

// goalUpdateSchemaJSON constrains the goal_update tool's payload.
// Every field is optional; the handler below decides which
// combination of fields makes sense for the calling session.
const goalUpdateSchemaJSON = `{
  "type": "object",
  "properties": {
    "goalId":     {"type": "string"},
    "taskId":     {"type": "string"},
    "status":     {"type": "string", "enum": ["pending", "in-progress", "blocked", "waiting", "done", "failed"]},
    "summary":    {"type": "string"},
    "addTasks":   {"type": "array", "items": {"type": "string"}},
    "nextTask":   {"type": "string"},
    "goalStatus": {"type": "string", "enum": ["active", "done", "failed"]},
    "notes":      {"type": "string"},
    "files":      {"type": "array", "items": {"type": "string"}},
    "planFile":   {"type": "string"},
    "planStatus": {"type": "string"},
    "stepIndex":  {"type": "integer"},
    "stepStatus": {"type": "string", "enum": ["pending", "in-progress", "done", "failed"]}
  },
  "additionalProperties": false
}`

var goalUpdateSchema = compileToolSchema(goalUpdateSchemaJSON)

func compileToolSchema(schemaJSON string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("hooks: invalid embedded tool schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("goal_update.json", doc); err != nil {
		panic(fmt.Sprintf("hooks: add tool schema resource: %v", err))
	}
	schema, err := c.Compile("goal_update.json")
	if err != nil {
		panic(fmt.Sprintf("hooks: compile tool schema: %v", err))
	}
	return schema
}

// GoalUpdateInput is the goal_update tool's parameter set.
type GoalUpdateInput struct {
	GoalID     string   `json:"goalId,omitempty"`
	TaskID     string   `json:"taskId,omitempty"`
	Status     string   `json:"status,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	AddTasks   []string `json:"addTasks,omitempty"`
	NextTask   string   `json:"nextTask,omitempty"`
	GoalStatus string   `json:"goalStatus,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Files      []string `json:"files,omitempty"`
	PlanFile   string   `json:"planFile,omitempty"`
	PlanStatus string   `json:"planStatus,omitempty"`
	StepIndex  *int     `json:"stepIndex,omitempty"`
	StepStatus string   `json:"stepStatus,omitempty"`
}

// GoalUpdateOutput is the text-plus-metadata contract every tool call in
// this surface returns; Meta drives the post-tool cascade the gateway
// runs after it hands the call back to the worker.
type GoalUpdateOutput struct {
	Text string         `json:"text"`
	Meta GoalUpdateMeta `json:"_meta"`
}

type GoalUpdateMeta struct {
	GoalID          string `json:"goalId"`
	TaskCompletedID string `json:"taskCompletedId,omitempty"`
	AllTasksDone    bool   `json:"allTasksDone,omitempty"`
}

// GoalUpdate implements the goal_update tool available to worker
// sessions. sessionKey identifies the calling session;
// classification resolves goalId/taskId when the caller omits them.
func (h *Hooks) GoalUpdate(ctx context.Context, sessionKey string, raw json.RawMessage) (GoalUpdateOutput, error) {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return GoalUpdateOutput{}, fmt.Errorf("goal_update: invalid JSON: %w", err)
	}
	if err := goalUpdateSchema.Validate(inst); err != nil {
		return GoalUpdateOutput{}, fmt.Errorf("goal_update: %w", err)
	}

	var in GoalUpdateInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return GoalUpdateOutput{}, fmt.Errorf("goal_update: decode: %w", err)
	}

	goalID, taskID := in.GoalID, in.TaskID
	if goalID == "" || taskID == "" {
		c := h.classify(sessionKey)
		if c.kind == kindWorkerTask {
			if goalID == "" {
				goalID = c.goalID
			}
			if taskID == "" {
				taskID = c.taskID
			}
		}
	}
	if goalID == "" {
		return GoalUpdateOutput{}, fmt.Errorf("goal_update: could not resolve goalId for session %s", sessionKey)
	}

	meta := GoalUpdateMeta{GoalID: goalID}

	if taskID != "" && in.Status != "" {
		if err := h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
			t.Status = entities.TaskStatus(in.Status)
			t.Done = in.Status == "done"
			if in.Summary != "" {
				t.Summary = in.Summary
			}
			return nil
		}); err != nil {
			return GoalUpdateOutput{}, err
		}
		if in.Status == "done" {
			meta.TaskCompletedID = taskID
			allDone := false
			if goal, err := h.store.GetGoal(goalID); err == nil {
				allDone = goal.AllTasksTerminal()
			}
			h.publish("goal.task_completed", map[string]any{"goalId": goalID, "taskId": taskID, "allTasksDone": allDone})
		}
		if in.Status == "done" || in.Status == "failed" {
			if err := h.afterTaskTerminal(ctx, goalID); err != nil {
				h.logger.Warn("goal_update: post-task-terminal kickoff/merge failed", "goalId", goalID, "taskId", taskID, "error", err)
			}
		}
	}

	if taskID != "" && in.PlanFile != "" {
		_ = h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
			t.Plan.ExpectedFilePath = in.PlanFile
			if in.PlanStatus != "" {
				t.Plan.Status = in.PlanStatus
			}
			return nil
		})
	}
	if taskID != "" && in.StepIndex != nil && in.StepStatus != "" {
		_ = h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
			for i := range t.Plan.Steps {
				if t.Plan.Steps[i].Index == *in.StepIndex {
					t.Plan.Steps[i].Status = in.StepStatus
					return nil
				}
			}
			t.Plan.Steps = append(t.Plan.Steps, entities.PlanStepState{Index: *in.StepIndex, Status: in.StepStatus})
			return nil
		})
		h.publish("plan.file_changed", map[string]any{"sessionKey": sessionKey, "filePath": in.PlanFile})
	}

	if len(in.AddTasks) > 0 {
		if _, err := h.addTasks(goalID, in.AddTasks); err != nil {
			return GoalUpdateOutput{}, err
		}
	}

	if in.GoalStatus != "" {
		if err := h.store.UpdateGoal(goalID, func(g *entities.Goal) error {
			switch in.GoalStatus {
			case "done":
				g.Status = entities.GoalStatusDone
				g.Completed = true
			case "failed":
				g.Status = entities.GoalStatusFailed
			default:
				g.Status = entities.GoalStatusActive
			}
			return nil
		}); err != nil {
			return GoalUpdateOutput{}, err
		}
	}

	if goal, err := h.store.GetGoal(goalID); err == nil && goal.AllTasksTerminal() {
		meta.AllTasksDone = true
	}

	return GoalUpdateOutput{Text: "ok", Meta: meta}, nil
}

// afterTaskTerminal fires the same kickoff/auto-merge cascade agent_end
// drives when a worker session ends, but from the goal_update call path:
// a worker that reports status=done/failed before its session actually
// ends must not wait for agent_end to unblock dependents or start a merge.
func (h *Hooks) afterTaskTerminal(ctx context.Context, goalID string) error {
	goal, err := h.store.GetGoal(goalID)
	if err != nil {
		return err
	}
	if goal.AllTasksTerminal() {
		return h.autoMerge(ctx, goal)
	}
	_, err = h.scheduler.InternalKickoff(goalID)
	return err
}

// addTasks appends ad hoc follow-up tasks to a goal, chaining each onto
// the end of the existing task sequence the way cascade.CreateTasksFromPlan
// chains a freshly parsed plan.
func (h *Hooks) addTasks(goalID string, texts []string) ([]string, error) {
	goal, err := h.store.GetGoal(goalID)
	if err != nil {
		return nil, err
	}
	var prevID string
	if n := len(goal.Tasks); n > 0 {
		prevID = goal.Tasks[n-1].ID
	}

	var ids []string
	for _, text := range texts {
		id := h.store.NewID("task_")
		var dependsOn []string
		if prevID != "" {
			dependsOn = []string{prevID}
		}
		task := entities.Task{
			ID:         id,
			Text:       text,
			Status:     entities.TaskStatusPending,
			DependsOn:  dependsOn,
			MaxRetries: entities.DefaultMaxRetries,
		}
		if err := h.store.AddTask(goalID, task); err != nil {
			return ids, err
		}
		ids = append(ids, id)
		prevID = id
	}
	return ids, nil
}
