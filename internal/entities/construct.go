package entities

import "time"

// Clock is the minimal time source entities need. Production code uses
// a real clock; tests thread a fixed one through so timestamp assertions
// stay deterministic. Timestamps are explicit constructor inputs rather
// than a database-side default, since the document store has no SQL
// layer to supply one.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDMinter mints the next id for a given prefix. Implemented by store.Store.
type IDMinter interface {
	NewID(prefix string) string
}

// NewStrand constructs a Strand with fresh timestamps and a minted id.
func NewStrand(clock Clock, ids IDMinter, name, description, color string) *Strand {
	now := clock.Now().UnixMilli()
	return &Strand{
		ID:          ids.NewID("strand_"),
		Name:        name,
		Description: description,
		Color:       color,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
}

// NewGoal constructs a Goal owned by strandID (empty for ungrouped).
func NewGoal(clock Clock, ids IDMinter, strandID, title, description string) *Goal {
	now := clock.Now().UnixMilli()
	return &Goal{
		ID:          ids.NewID("goal_"),
		Title:       title,
		Description: description,
		Status:      GoalStatusActive,
		StrandID:    strandID,
		MaxRetries:  DefaultMaxRetries,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
}

// NewTask constructs a Task owned by a goal (the goal reference is held
// by the caller appending it to goal.Tasks, not stored on the Task).
func NewTask(clock Clock, ids IDMinter, text, description string) *Task {
	now := clock.Now().UnixMilli()
	return &Task{
		ID:          ids.NewID("task_"),
		Text:        text,
		Description: description,
		Status:      TaskStatusPending,
		MaxRetries:  DefaultMaxRetries,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
}

// Touch advances updatedAtMs on a Strand, enforcing invariant 10
// (updatedAtMs >= createdAtMs).
func (s *Strand) Touch(clock Clock) {
	ms := clock.Now().UnixMilli()
	if ms < s.CreatedAtMs {
		ms = s.CreatedAtMs
	}
	s.UpdatedAtMs = ms
}

// Touch advances updatedAtMs on a Goal.
func (g *Goal) Touch(clock Clock) {
	ms := clock.Now().UnixMilli()
	if ms < g.CreatedAtMs {
		ms = g.CreatedAtMs
	}
	g.UpdatedAtMs = ms
}

// Touch advances updatedAtMs on a Task.
func (t *Task) Touch(clock Clock) {
	ms := clock.Now().UnixMilli()
	if ms < t.CreatedAtMs {
		ms = t.CreatedAtMs
	}
	t.UpdatedAtMs = ms
}

// SetStatus transitions a task's status, keeping the done mirror in sync
// (invariant 5: task.status=done <=> task.done=true).
func (t *Task) SetStatus(clock Clock, status TaskStatus) bool {
	if !CanTransitionTask(t.Status, status) {
		return false
	}
	t.Status = status
	t.Done = status == TaskStatusDone
	t.Touch(clock)
	return true
}

// SetStatus transitions a goal's status, keeping the completed mirror in sync.
func (g *Goal) SetStatus(clock Clock, status GoalStatus) bool {
	if !CanTransitionGoal(g.Status, status) {
		return false
	}
	g.Status = status
	g.Completed = status == GoalStatusDone
	g.Touch(clock)
	return true
}

// AllTasksTerminal reports whether every task in the goal is done or failed
// (used to enforce invariant 8 before a goal is marked done).
func (g *Goal) AllTasksTerminal() bool {
	for _, t := range g.Tasks {
		if t.Status != TaskStatusDone && t.Status != TaskStatusFailed {
			return false
		}
	}
	return true
}

// AppendHistory appends a chat message to a goal's PM history, trimming
// to the history limit (invariant 9).
func (g *Goal) AppendHistory(clock Clock, msg ChatMessage, limit int) {
	g.PMChatHistory = TrimHistory(append(g.PMChatHistory, msg), limit)
	g.Touch(clock)
}

// AppendHistory appends a chat message to a strand's PM history.
func (s *Strand) AppendHistory(clock Clock, msg ChatMessage, limit int) {
	s.PMChatHistory = TrimHistory(append(s.PMChatHistory, msg), limit)
	s.Touch(clock)
}

// FindTask locates a task by id within a goal.
func (g *Goal) FindTask(taskID string) *Task {
	for i := range g.Tasks {
		if g.Tasks[i].ID == taskID {
			return &g.Tasks[i]
		}
	}
	return nil
}

// DoneTaskIDs returns the set of task ids currently in status done.
func (g *Goal) DoneTaskIDs() map[string]struct{} {
	done := make(map[string]struct{}, len(g.Tasks))
	for _, t := range g.Tasks {
		if t.Status == TaskStatusDone {
			done[t.ID] = struct{}{}
		}
	}
	return done
}

// TerminalTaskIDs returns the set of task ids that are done, or failed
// when the goal's dependsOnPolicy is "skip-failed" (decided Open
// Question (b), ).
func (g *Goal) TerminalTaskIDs() map[string]struct{} {
	done := g.DoneTaskIDs()
	if g.DependsOnPolicy != DependsOnPolicySkipFailed {
		return done
	}
	for _, t := range g.Tasks {
		if t.Status == TaskStatusFailed {
			done[t.ID] = struct{}{}
		}
	}
	return done
}
