package store

import "github.com/basket/go-strand/internal/entities"

// SessionOwner is the value half of sessionIndex: sessionKey -> {goalId}.
type SessionOwner struct {
	GoalID string `json:"goalId"`
}

// Data is the single document persisted by the Store. Every read returns
// either this whole structure (a deep-copied snapshot) or a subset
// derived from one. Every write replaces it atomically.
type Data struct {
	Strands map[string]*entities.Strand `json:"strands"`
	Goals   map[string]*entities.Goal   `json:"goals"`

	// SessionIndex maps worker/task sessionKeys to their owning goal.
	SessionIndex map[string]SessionOwner `json:"sessionIndex"`
	// SessionStrandIndex maps strand-scoped (PM/orchestrator) sessionKeys
	// to their owning strand.
	SessionStrandIndex map[string]string `json:"sessionStrandIndex"`
}

// newData returns an empty, ready-to-use document.
func newData() *Data {
	return &Data{
		Strands:            make(map[string]*entities.Strand),
		Goals:               make(map[string]*entities.Goal),
		SessionIndex:        make(map[string]SessionOwner),
		SessionStrandIndex:  make(map[string]string),
	}
}

// goalsByStrand returns every goal owned by strandID, in map-iteration
// order is not guaranteed by Go maps; callers that need stable order
// should sort by CreatedAtMs.
func (d *Data) goalsByStrand(strandID string) []*entities.Goal {
	var out []*entities.Goal
	for _, g := range d.Goals {
		if g.StrandID == strandID {
			out = append(out, g)
		}
	}
	return out
}
