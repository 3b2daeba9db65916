package store

import "fmt"

// SessionKind classifies a sessionKey by which index (if any) owns it.
type SessionKind int

const (
	SessionKindUnknown SessionKind = iota
	SessionKindStrand               // indexed in sessionStrandIndex: PM/orchestrator session
	SessionKindGoal                 // indexed in sessionIndex: worker/task session
)

// RegisterStrandSession records a strand-scoped (PM/orchestrator)
// session key, maintaining invariant 7.
func (s *Store) RegisterStrandSession(strandID, sessionKey string) error {
	return s.Do(func(d *Data) error {
		if _, ok := d.Strands[strandID]; !ok {
			return fmt.Errorf("%w: strand %s", ErrNotFound, strandID)
		}
		if _, exists := d.SessionIndex[sessionKey]; exists {
			return fmt.Errorf("%w: sessionKey %s already indexed as a goal session", ErrConflict, sessionKey)
		}
		d.SessionStrandIndex[sessionKey] = strandID
		return nil
	})
}

// UnregisterStrandSession removes a strand-scoped session key.
func (s *Store) UnregisterStrandSession(sessionKey string) error {
	return s.Do(func(d *Data) error {
		delete(d.SessionStrandIndex, sessionKey)
		return nil
	})
}

// LookupSession classifies sessionKey and, if known, returns the id of
// its owning goal or strand.
func (s *Store) LookupSession(sessionKey string) (kind SessionKind, ownerID string) {
	_ = s.View(func(d *Data) error {
		if strandID, ok := d.SessionStrandIndex[sessionKey]; ok {
			kind, ownerID = SessionKindStrand, strandID
			return nil
		}
		if owner, ok := d.SessionIndex[sessionKey]; ok {
			kind, ownerID = SessionKindGoal, owner.GoalID
			return nil
		}
		kind, ownerID = SessionKindUnknown, ""
		return nil
	})
	return kind, ownerID
}

// ListSessionsForStrand returns every sessionKey attributed to a strand:
// its own PM session, every goal's PM session, every goal's worker
// sessions, and every task's sessionKey. Used by lifecycle.Manager's
// listForStrand operation.
type AttributedSession struct {
	SessionKey string
	GoalID     string // empty for the strand-level PM session
	TaskID     string // empty unless this is a worker task session
}

func (s *Store) ListSessionsForStrand(strandID string) ([]AttributedSession, error) {
	var out []AttributedSession
	err := s.View(func(d *Data) error {
		if strand, ok := d.Strands[strandID]; ok && strand.PMStrandSessionKey != "" {
			out = append(out, AttributedSession{SessionKey: strand.PMStrandSessionKey})
		}
		for _, g := range d.goalsByStrand(strandID) {
			if g.PMSessionKey != "" {
				out = append(out, AttributedSession{SessionKey: g.PMSessionKey, GoalID: g.ID})
			}
			for _, t := range g.Tasks {
				if t.SessionKey != "" {
					out = append(out, AttributedSession{SessionKey: t.SessionKey, GoalID: g.ID, TaskID: t.ID})
				}
			}
		}
		return nil
	})
	return out, err
}
