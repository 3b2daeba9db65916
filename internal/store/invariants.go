package store

import (
	"fmt"

	"github.com/basket/go-strand/internal/entities"
)

// Invariants checks every invariant in against a document.
// It is never called from the hot write path (that would make save()
// quadratic in the number of entities); it is exercised by tests and by
// the operator-facing doctor subcommand.
func Invariants(d *Data) error {
	for _, g := range d.Goals {
		// (1) goal.strandId either references an existing Strand or is null.
		if g.StrandID != "" {
			if _, ok := d.Strands[g.StrandID]; !ok {
				return fmt.Errorf("%w: goal %s references missing strand %s", ErrConflict, g.ID, g.StrandID)
			}
		}

		taskIDs := make(map[string]struct{}, len(g.Tasks))
		for _, t := range g.Tasks {
			taskIDs[t.ID] = struct{}{}
		}
		for _, t := range g.Tasks {
			// (2) every task.dependsOn[i] refers to a sibling task in the same goal.
			for _, dep := range t.DependsOn {
				if _, ok := taskIDs[dep]; !ok {
					return fmt.Errorf("%w: task %s depends on missing sibling %s", ErrConflict, t.ID, dep)
				}
			}
			// (5) task.status=done <=> task.done=true.
			if (t.Status == entities.TaskStatusDone) != t.Done {
				return fmt.Errorf("%w: task %s status/done mismatch", ErrConflict, t.ID)
			}
			// (10) updatedAtMs >= createdAtMs.
			if t.UpdatedAtMs < t.CreatedAtMs {
				return fmt.Errorf("%w: task %s updatedAtMs before createdAtMs", ErrConflict, t.ID)
			}
		}

		// (3) every goal.dependsOn[i] refers to another goal in the same strand.
		for _, dep := range g.DependsOn {
			depGoal, ok := d.Goals[dep]
			if !ok || depGoal.StrandID != g.StrandID {
				return fmt.Errorf("%w: goal %s depends on %s outside its strand", ErrConflict, g.ID, dep)
			}
		}

		// (8) a goal with status=done has all tasks in {done, failed}.
		if g.Status == entities.GoalStatusDone && len(g.Tasks) > 0 && !g.AllTasksTerminal() {
			return fmt.Errorf("%w: goal %s marked done with non-terminal tasks", ErrConflict, g.ID)
		}

		// (9) pmChatHistory length <= history limit.
		if len(g.PMChatHistory) > entities.DefaultHistoryLimit {
			return fmt.Errorf("%w: goal %s pmChatHistory exceeds history limit", ErrConflict, g.ID)
		}

		// (10) updatedAtMs >= createdAtMs.
		if g.UpdatedAtMs < g.CreatedAtMs {
			return fmt.Errorf("%w: goal %s updatedAtMs before createdAtMs", ErrConflict, g.ID)
		}
	}

	for _, s := range d.Strands {
		if len(s.PMChatHistory) > entities.DefaultHistoryLimit {
			return fmt.Errorf("%w: strand %s pmChatHistory exceeds history limit", ErrConflict, s.ID)
		}
		if s.UpdatedAtMs < s.CreatedAtMs {
			return fmt.Errorf("%w: strand %s updatedAtMs before createdAtMs", ErrConflict, s.ID)
		}
	}

	// (6) a sessionKey appears in at most one task's sessionKey field, and
	// (7) every live sessionKey in any Task appears in exactly one of the
	// two indices.
	seenSessionKeys := make(map[string]string) // sessionKey -> taskID, to catch (6)
	for _, g := range d.Goals {
		for _, t := range g.Tasks {
			if t.SessionKey == "" {
				continue
			}
			if owner, ok := seenSessionKeys[t.SessionKey]; ok {
				return fmt.Errorf("%w: sessionKey %s owned by both %s and %s", ErrConflict, t.SessionKey, owner, t.ID)
			}
			seenSessionKeys[t.SessionKey] = t.ID

			_, inGoalIdx := d.SessionIndex[t.SessionKey]
			_, inStrandIdx := d.SessionStrandIndex[t.SessionKey]
			if inGoalIdx == inStrandIdx {
				return fmt.Errorf("%w: sessionKey %s must be indexed in exactly one of sessionIndex/sessionStrandIndex", ErrConflict, t.SessionKey)
			}
		}
	}

	return nil
}
