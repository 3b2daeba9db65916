package store

import (
	"fmt"
	"sort"

	"github.com/basket/go-strand/internal/entities"
)

// CreateStrand inserts a new strand into the document.
func (s *Store) CreateStrand(strand *entities.Strand) error {
	return s.Do(func(d *Data) error {
		d.Strands[strand.ID] = strand
		return nil
	})
}

// GetStrand returns a deep copy of a strand, or ErrNotFound.
func (s *Store) GetStrand(id string) (*entities.Strand, error) {
	var out *entities.Strand
	err := s.View(func(d *Data) error {
		strand, ok := d.Strands[id]
		if !ok {
			return fmt.Errorf("%w: strand %s", ErrNotFound, id)
		}
		clone := *strand
		out = &clone
		return nil
	})
	return out, err
}

// ListStrands returns every strand, ordered oldest-first.
func (s *Store) ListStrands() ([]*entities.Strand, error) {
	var out []*entities.Strand
	err := s.View(func(d *Data) error {
		for _, strand := range d.Strands {
			clone := *strand
			out = append(out, &clone)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, err
}

// UpdateStrand applies mutate to the live strand under the store lock.
func (s *Store) UpdateStrand(id string, mutate func(*entities.Strand) error) error {
	return s.Do(func(d *Data) error {
		strand, ok := d.Strands[id]
		if !ok {
			return fmt.Errorf("%w: strand %s", ErrNotFound, id)
		}
		return mutate(strand)
	})
}

// DeleteStrandResult reports what DeleteStrand tore down, so callers can
// report it back to the operator.
type DeleteStrandResult struct {
	DeletedGoalIDs []string
	KilledSessions []string
}

// DeleteStrand cascade-deletes every goal owned by the strand and
// removes all of its session-index entries (invariant 7, scenario 4).
// It does not itself talk to the gateway to abort sessions — that is
// lifecycle.Manager's job, invoked by the caller with the returned
// KilledSessions list before or after this call completes.
func (s *Store) DeleteStrand(id string) (*DeleteStrandResult, error) {
	result := &DeleteStrandResult{}
	err := s.Do(func(d *Data) error {
		if _, ok := d.Strands[id]; !ok {
			return fmt.Errorf("%w: strand %s", ErrNotFound, id)
		}

		for goalID, g := range d.Goals {
			if g.StrandID != id {
				continue
			}
			result.DeletedGoalIDs = append(result.DeletedGoalIDs, goalID)
			if g.PMSessionKey != "" {
				result.KilledSessions = append(result.KilledSessions, g.PMSessionKey)
			}
			for _, t := range g.Tasks {
				if t.SessionKey != "" {
					result.KilledSessions = append(result.KilledSessions, t.SessionKey)
				}
			}
			for _, sk := range g.Sessions {
				result.KilledSessions = append(result.KilledSessions, sk)
			}
			delete(d.Goals, goalID)
		}

		if strand := d.Strands[id]; strand.PMStrandSessionKey != "" {
			result.KilledSessions = append(result.KilledSessions, strand.PMStrandSessionKey)
		}

		for _, sk := range result.KilledSessions {
			delete(d.SessionIndex, sk)
			delete(d.SessionStrandIndex, sk)
		}

		delete(d.Strands, id)
		return nil
	})
	return result, err
}
