package surface

import (
	"context"
	"encoding/json"
)

func (s *Surface) sessionsKillForGoal(ctx context.Context, raw json.RawMessage) Result {
	var p goalIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.GoalID == "" {
		return fail("sessions.killForGoal: goalId is required")
	}
	if s.Lifecycle == nil {
		return fail("sessions.killForGoal: no lifecycle manager configured")
	}
	result, err := s.Lifecycle.KillForGoal(ctx, p.GoalID)
	if err != nil {
		return fail("sessions.killForGoal: %v", err)
	}
	return ok(result)
}

func (s *Surface) sessionsKillForStrand(ctx context.Context, raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("sessions.killForStrand: strandId is required")
	}
	if s.Lifecycle == nil {
		return fail("sessions.killForStrand: no lifecycle manager configured")
	}
	result, err := s.Lifecycle.KillForStrand(ctx, p.StrandID)
	if err != nil {
		return fail("sessions.killForStrand: %v", err)
	}
	return ok(result)
}

type cleanupStaleParams struct {
	StrandID string `json:"strandId,omitempty"`
}

func (s *Surface) sessionsCleanupStale(ctx context.Context, raw json.RawMessage) Result {
	var p cleanupStaleParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return fail("sessions.cleanupStale: %v", err)
		}
	}
	if s.Lifecycle == nil {
		return fail("sessions.cleanupStale: no lifecycle manager configured")
	}
	result, err := s.Lifecycle.CleanupStale(ctx, p.StrandID)
	if err != nil {
		return fail("sessions.cleanupStale: %v", err)
	}
	return ok(result)
}

func (s *Surface) sessionsListForStrand(raw json.RawMessage) Result {
	var p strandIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.StrandID == "" {
		return fail("sessions.listForStrand: strandId is required")
	}
	if s.Lifecycle == nil {
		return fail("sessions.listForStrand: no lifecycle manager configured")
	}
	sessions, err := s.Lifecycle.ListForStrand(p.StrandID)
	if err != nil {
		return fail("sessions.listForStrand: %v", err)
	}
	return ok(sessions)
}
