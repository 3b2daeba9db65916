package store

import (
	"fmt"

	"github.com/basket/go-strand/internal/entities"
)

// AddTask appends a task to a goal, validating that every dependsOn
// entry names a sibling already present (invariant 2).
func (s *Store) AddTask(goalID string, task entities.Task) error {
	return s.Do(func(d *Data) error {
		goal, ok := d.Goals[goalID]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
		}
		existing := make(map[string]struct{}, len(goal.Tasks))
		for _, t := range goal.Tasks {
			existing[t.ID] = struct{}{}
		}
		for _, dep := range task.DependsOn {
			if _, ok := existing[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on missing sibling %s", ErrConflict, task.ID, dep)
			}
		}
		goal.Tasks = append(goal.Tasks, task)
		return nil
	})
}

// UpdateTask applies mutate to a task within a goal under the store lock.
func (s *Store) UpdateTask(goalID, taskID string, mutate func(*entities.Task) error) error {
	return s.Do(func(d *Data) error {
		goal, ok := d.Goals[goalID]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
		}
		task := goal.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: task %s in goal %s", ErrNotFound, taskID, goalID)
		}
		return mutate(task)
	})
}

// AssignSession records that sessionKey now owns taskID within goalID,
// enforcing invariant 6 (a sessionKey owned by at most one task) and
// maintaining the sessionIndex side of invariant 7.
func (s *Store) AssignSession(goalID, taskID, sessionKey string) error {
	return s.Do(func(d *Data) error {
		if _, exists := d.SessionIndex[sessionKey]; exists {
			return fmt.Errorf("%w: sessionKey %s already indexed", ErrConflict, sessionKey)
		}
		goal, ok := d.Goals[goalID]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
		}
		task := goal.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: task %s in goal %s", ErrNotFound, taskID, goalID)
		}
		task.SessionKey = sessionKey
		goal.Sessions = append(goal.Sessions, sessionKey)
		d.SessionIndex[sessionKey] = SessionOwner{GoalID: goalID}
		return nil
	})
}

// ClearTaskSession drops a task's session assignment (used on kill or
// on retry-requeue), maintaining invariant 7.
func (s *Store) ClearTaskSession(goalID, taskID string) error {
	return s.Do(func(d *Data) error {
		goal, ok := d.Goals[goalID]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
		}
		task := goal.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: task %s in goal %s", ErrNotFound, taskID, goalID)
		}
		if task.SessionKey != "" {
			delete(d.SessionIndex, task.SessionKey)
			task.SessionKey = ""
		}
		return nil
	})
}
