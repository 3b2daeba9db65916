package surface

import (
	"context"
	"encoding/json"

	"github.com/basket/go-strand/internal/entities"
)

type createStrandParams struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	RepoURL     string   `json:"repoUrl,omitempty"`
}

func (s *Surface) strandsCreate(raw json.RawMessage) Result {
	var p createStrandParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fail("strands.create: %v", err)
	}
	if p.Name == "" {
		return fail("strands.create: name is required")
	}

	now := entities.NowMs(nowFunc())
	strand := &entities.Strand{
		ID:          s.Store.NewID("strand_"),
		Name:        p.Name,
		Description: p.Description,
		Color:       p.Color,
		Keywords:    p.Keywords,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
	if err := s.Store.CreateStrand(strand); err != nil {
		return fail("strands.create: %v", err)
	}

	if p.RepoURL != "" && s.Workspace != nil {
		wsRes := s.Workspace.CreateStrandWorkspace(strand.ID, p.RepoURL)
		if !wsRes.Ok {
			s.Logger.Warn("strands.create: workspace init failed", "strandId", strand.ID, "error", wsRes.Error)
		} else {
			_ = s.Store.UpdateStrand(strand.ID, func(st *entities.Strand) error {
				st.Workspace = &entities.WorkspaceRef{Path: s.Workspace.StrandDir(strand.ID), RepoURL: p.RepoURL}
				return nil
			})
		}
	}

	return ok(strand)
}

func (s *Surface) strandsList() Result {
	strands, err := s.Store.ListStrands()
	if err != nil {
		return fail("strands.list: %v", err)
	}
	return ok(strands)
}

type strandIDParams struct {
	StrandID string `json:"strandId"`
}

func (s *Surface) strandsGet(raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("strands.get: strandId is required")
	}
	strand, err := s.Store.GetStrand(p.StrandID)
	if err != nil {
		return fail("strands.get: %v", err)
	}
	return ok(strand)
}

type updateStrandParams struct {
	StrandID    string  `json:"strandId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

func (s *Surface) strandsUpdate(raw json.RawMessage) Result {
	var p updateStrandParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("strands.update: strandId is required")
	}
	err := s.Store.UpdateStrand(p.StrandID, func(st *entities.Strand) error {
		if p.Name != nil {
			st.Name = *p.Name
		}
		if p.Description != nil {
			st.Description = *p.Description
		}
		if p.Color != nil {
			st.Color = *p.Color
		}
		st.UpdatedAtMs = entities.NowMs(nowFunc())
		return nil
	})
	if err != nil {
		return fail("strands.update: %v", err)
	}
	strand, _ := s.Store.GetStrand(p.StrandID)
	return ok(strand)
}

// strandsDelete cascades the delete: sessions are torn down first (while
// lifecycle can still see the goals/tasks that own them), then the Store
// removes the strand and every goal it owns.
func (s *Surface) strandsDelete(ctx context.Context, raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("strands.delete: strandId is required")
	}

	var killedSessions []string
	if s.Lifecycle != nil {
		killResult, err := s.Lifecycle.KillForStrand(ctx, p.StrandID)
		if err != nil {
			s.Logger.Warn("strands.delete: killForStrand failed", "strandId", p.StrandID, "error", err)
		}
		killedSessions = killResult.KilledSessions
	}

	deleted, err := s.Store.DeleteStrand(p.StrandID)
	if err != nil {
		return fail("strands.delete: %v", err)
	}

	if s.Workspace != nil {
		if wsRes := s.Workspace.RemoveStrandWorkspace(p.StrandID); !wsRes.Ok {
			s.Logger.Warn("strands.delete: workspace removal failed", "strandId", p.StrandID, "error", wsRes.Error)
		}
	}

	return ok(map[string]any{
		"deletedGoalIds": deleted.DeletedGoalIDs,
		"killedSessions": killedSessions,
	})
}
