package surface

import (
	"encoding/json"

	"github.com/basket/go-strand/internal/entities"
)

type addTaskParams struct {
	GoalID    string   `json:"goalId"`
	Text      string   `json:"text"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

func (s *Surface) tasksAdd(raw json.RawMessage) Result {
	var p addTaskParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" || p.Text == "" {
		return fail("tasks.add: goalId and text are required")
	}

	now := entities.NowMs(nowFunc())
	task := entities.Task{
		ID:          s.Store.NewID("task_"),
		Text:        p.Text,
		Status:      entities.TaskStatusPending,
		DependsOn:   p.DependsOn,
		MaxRetries:  entities.DefaultMaxRetries,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
	if err := s.Store.AddTask(p.GoalID, task); err != nil {
		return fail("tasks.add: %v", err)
	}
	return ok(task)
}

type updateTaskParams struct {
	GoalID  string  `json:"goalId"`
	TaskID  string  `json:"taskId"`
	Text    *string `json:"text,omitempty"`
	Status  *string `json:"status,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

func (s *Surface) tasksUpdate(raw json.RawMessage) Result {
	var p updateTaskParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" || p.TaskID == "" {
		return fail("tasks.update: goalId and taskId are required")
	}
	err := s.Store.UpdateTask(p.GoalID, p.TaskID, func(t *entities.Task) error {
		if p.Text != nil {
			t.Text = *p.Text
		}
		if p.Status != nil {
			t.Status = entities.TaskStatus(*p.Status)
			t.Done = t.Status == entities.TaskStatusDone
		}
		if p.Summary != nil {
			t.Summary = *p.Summary
		}
		t.UpdatedAtMs = entities.NowMs(nowFunc())
		return nil
	})
	if err != nil {
		return fail("tasks.update: %v", err)
	}
	goal, err := s.Store.GetGoal(p.GoalID)
	if err != nil {
		return fail("tasks.update: %v", err)
	}
	task := goal.FindTask(p.TaskID)
	return ok(task)
}
