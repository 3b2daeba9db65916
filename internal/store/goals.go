package store

import (
	"fmt"
	"sort"

	"github.com/basket/go-strand/internal/entities"
)

// CreateGoal inserts a new goal into the document. If the goal carries
// a non-empty strandId, the caller must already have validated that the
// strand exists (invariant 1) — cascade/scheduler callers do this via
// GetStrand before constructing the goal.
func (s *Store) CreateGoal(goal *entities.Goal) error {
	return s.Do(func(d *Data) error {
		if goal.StrandID != "" {
			if _, ok := d.Strands[goal.StrandID]; !ok {
				return fmt.Errorf("%w: goal %s references missing strand %s", ErrConflict, goal.ID, goal.StrandID)
			}
		}
		for _, dep := range goal.DependsOn {
			depGoal, ok := d.Goals[dep]
			if !ok || depGoal.StrandID != goal.StrandID {
				return fmt.Errorf("%w: goal %s depends on %s outside its strand", ErrConflict, goal.ID, dep)
			}
		}
		d.Goals[goal.ID] = goal
		return nil
	})
}

// GetGoal returns a deep copy of a goal, or ErrNotFound.
func (s *Store) GetGoal(id string) (*entities.Goal, error) {
	var out *entities.Goal
	err := s.View(func(d *Data) error {
		goal, ok := d.Goals[id]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, id)
		}
		clone, err := cloneGoal(goal)
		if err != nil {
			return err
		}
		out = clone
		return nil
	})
	return out, err
}

// ListGoalsByStrand returns every goal owned by strandID, oldest-first.
func (s *Store) ListGoalsByStrand(strandID string) ([]*entities.Goal, error) {
	var out []*entities.Goal
	err := s.View(func(d *Data) error {
		for _, g := range d.goalsByStrand(strandID) {
			clone, err := cloneGoal(g)
			if err != nil {
				return err
			}
			out = append(out, clone)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, err
}

// UpdateGoal applies mutate to the live goal under the store lock.
func (s *Store) UpdateGoal(id string, mutate func(*entities.Goal) error) error {
	return s.Do(func(d *Data) error {
		goal, ok := d.Goals[id]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, id)
		}
		return mutate(goal)
	})
}

// DeleteGoal removes a goal, its session-index entries, and its
// worktree reference (the caller is responsible for actually removing
// the worktree directory via workspace.Manager before or after this
// call — Store never touches the filesystem outside its own snapshot).
func (s *Store) DeleteGoal(id string) error {
	return s.Do(func(d *Data) error {
		goal, ok := d.Goals[id]
		if !ok {
			return fmt.Errorf("%w: goal %s", ErrNotFound, id)
		}
		for _, t := range goal.Tasks {
			if t.SessionKey != "" {
				delete(d.SessionIndex, t.SessionKey)
			}
		}
		for _, sk := range goal.Sessions {
			delete(d.SessionIndex, sk)
		}
		if goal.PMSessionKey != "" {
			delete(d.SessionStrandIndex, goal.PMSessionKey)
			delete(d.SessionIndex, goal.PMSessionKey)
		}
		delete(d.Goals, id)
		return nil
	})
}

func cloneGoal(g *entities.Goal) (*entities.Goal, error) {
	clone := *g
	clone.DependsOn = append([]string(nil), g.DependsOn...)
	clone.Sessions = append([]string(nil), g.Sessions...)
	clone.Tasks = append([]entities.Task(nil), g.Tasks...)
	clone.PMChatHistory = append([]entities.ChatMessage(nil), g.PMChatHistory...)
	return &clone, nil
}
