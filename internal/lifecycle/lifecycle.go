// Package lifecycle manages the three session populations (strand-PM,
// goal-PM, worker) by sessionKey shape. Its best-effort,
// tolerate-gateway-failure posture is grounded on
// internal/agent/registry.go's RemoveAgent/DrainAll/AbortTask: the Store
// is always the source of truth, so a gateway call failing to abort a
// session never blocks updating local state.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/store"
)

// Gateway is the subset of the external LLM gateway's surface lifecycle
// needs. All calls are best-effort: their errors are logged, never
// propagated, trusting local Store state over a remote runtime's
// acknowledgement.
type Gateway interface {
	ChatAbort(ctx context.Context, sessionKey string) error
	SessionsDelete(ctx context.Context, sessionKey string) error
}

// Manager implements killForGoal, killForStrand, cleanupStale, and
// listForStrand.
type Manager struct {
	store   *store.Store
	gateway Gateway
	logger  *slog.Logger
}

func New(st *store.Store, gw Gateway, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, gateway: gw, logger: logger}
}

// Result reports which sessions a kill/cleanup operation touched.
type Result struct {
	KilledSessions  []string `json:"killedSessions"`
	RequeuedTaskIDs []string `json:"requeuedTaskIds,omitempty"`
}

func dedup(sessions []string) []string {
	seen := make(map[string]bool, len(sessions))
	var out []string
	for _, s := range sessions {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (m *Manager) killSession(ctx context.Context, sessionKey string) {
	if m.gateway == nil {
		return
	}
	if err := m.gateway.SessionsDelete(ctx, sessionKey); err != nil {
		m.logger.Warn("lifecycle: sessions.delete failed (tolerated)", "sessionKey", sessionKey, "error", err)
	}
	if err := m.gateway.ChatAbort(ctx, sessionKey); err != nil {
		m.logger.Warn("lifecycle: chat.abort failed (tolerated)", "sessionKey", sessionKey, "error", err)
	}
}

// KillForGoal tears down every session attributed to a goal: its own
// sessions list, its PM session, and every task's session. Non-done
// tasks are requeued (sessionKey cleared, status reset to pending) so a
// later kickoff re-spawns them.
func (m *Manager) KillForGoal(ctx context.Context, goalID string) (Result, error) {
	goal, err := m.store.GetGoal(goalID)
	if err != nil {
		return Result{}, err
	}

	var sessions []string
	sessions = append(sessions, goal.Sessions...)
	if goal.PMSessionKey != "" {
		sessions = append(sessions, goal.PMSessionKey)
	}
	for _, t := range goal.Tasks {
		if t.SessionKey != "" {
			sessions = append(sessions, t.SessionKey)
		}
	}
	sessions = dedup(sessions)

	for _, sk := range sessions {
		m.killSession(ctx, sk)
	}

	var requeued []string
	for _, t := range goal.Tasks {
		if t.SessionKey == "" || t.Status == entities.TaskStatusDone {
			continue
		}
		taskID := t.ID
		if err := m.store.UpdateTask(goalID, taskID, func(task *entities.Task) error {
			task.SessionKey = ""
			task.Status = entities.TaskStatusPending
			return nil
		}); err != nil {
			m.logger.Warn("lifecycle: requeue task failed", "taskId", taskID, "error", err)
			continue
		}
		if err := m.store.ClearTaskSession(goalID, taskID); err != nil {
			m.logger.Warn("lifecycle: clear task session failed", "taskId", taskID, "error", err)
		}
		requeued = append(requeued, taskID)
	}

	if goal.PMSessionKey != "" {
		_ = m.store.UnregisterStrandSession(goal.PMSessionKey)
	}

	return Result{KilledSessions: sessions, RequeuedTaskIDs: requeued}, nil
}

// KillForStrand tears down every goal's sessions plus the strand's own
// PM session.
func (m *Manager) KillForStrand(ctx context.Context, strandID string) (Result, error) {
	goals, err := m.store.ListGoalsByStrand(strandID)
	if err != nil {
		return Result{}, err
	}

	var total Result
	for _, g := range goals {
		r, err := m.KillForGoal(ctx, g.ID)
		if err != nil {
			m.logger.Warn("lifecycle: killForGoal failed during killForStrand", "goalId", g.ID, "error", err)
			continue
		}
		total.KilledSessions = append(total.KilledSessions, r.KilledSessions...)
		total.RequeuedTaskIDs = append(total.RequeuedTaskIDs, r.RequeuedTaskIDs...)
	}

	strand, err := m.store.GetStrand(strandID)
	if err != nil {
		return total, err
	}
	if strand.PMStrandSessionKey != "" {
		m.killSession(ctx, strand.PMStrandSessionKey)
		_ = m.store.UnregisterStrandSession(strand.PMStrandSessionKey)
		total.KilledSessions = append(total.KilledSessions, strand.PMStrandSessionKey)
	}
	total.KilledSessions = dedup(total.KilledSessions)

	return total, nil
}

// CleanupStale aborts sessions attached to tasks stuck in a state that
// is neither in-progress nor done — leftovers from a crash mid-kickoff.
// If strandID is empty, every strand is scanned.
func (m *Manager) CleanupStale(ctx context.Context, strandID string) (Result, error) {
	var strandIDs []string
	if strandID != "" {
		strandIDs = []string{strandID}
	} else {
		strands, err := m.store.ListStrands()
		if err != nil {
			return Result{}, err
		}
		for _, s := range strands {
			strandIDs = append(strandIDs, s.ID)
		}
	}

	var result Result
	for _, sid := range strandIDs {
		goals, err := m.store.ListGoalsByStrand(sid)
		if err != nil {
			m.logger.Warn("lifecycle: list goals failed during cleanupStale", "strandId", sid, "error", err)
			continue
		}
		for _, g := range goals {
			for _, t := range g.Tasks {
				if t.SessionKey == "" {
					continue
				}
				if t.Status == entities.TaskStatusInProgress || t.Status == entities.TaskStatusDone {
					continue
				}
				m.killSession(ctx, t.SessionKey)
				if err := m.store.ClearTaskSession(g.ID, t.ID); err != nil {
					m.logger.Warn("lifecycle: clear stale task session failed", "taskId", t.ID, "error", err)
					continue
				}
				result.KilledSessions = append(result.KilledSessions, t.SessionKey)
			}
		}
	}
	result.KilledSessions = dedup(result.KilledSessions)
	return result, nil
}

// ListForStrand reports every session attributed to a strand with its
// task/goal attribution, delegating to the Store's index.
func (m *Manager) ListForStrand(strandID string) ([]store.AttributedSession, error) {
	return m.store.ListSessionsForStrand(strandID)
}
