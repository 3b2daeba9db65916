package hooks

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/go-strand/internal/entities"
	orchotel "github.com/basket/go-strand/internal/otel"
)

// AgentEnd implements the agent_end(sessionKey, success) hook,
// dispatching on session kind. Gateway
// history fetches and merge/push calls are all best-effort at the
// perimeter: a failure widens the error surface reported back but never
// leaves Store state inconsistent (the mutation that already landed
// stands).
func (h *Hooks) AgentEnd(ctx context.Context, sessionKey string, success bool) error {
	c := h.classify(sessionKey)

	if c.kind == kindWorkerTask && h.Tracer != nil {
		var span trace.Span
		ctx, span = orchotel.StartAgentEndSpan(ctx, h.Tracer, c.goalID, c.taskID)
		defer span.End()
	}

	switch c.kind {
	case kindStrandBound:
		return h.store.UpdateStrand(c.strandID, func(s *entities.Strand) error { return nil })

	case kindStrandPM:
		return nil

	case kindGoalPM:
		return h.agentEndGoalPM(ctx, c.goalID, sessionKey)

	case kindWorkerTask:
		return h.agentEndWorkerTask(ctx, c.goalID, c.taskID, success)

	default:
		return nil
	}
}

// agentEndGoalPM handles a goal-PM session ending while the goal is
// awaiting a plan: fetch the PM's last reply, hand it to the cascade
// processor, and (in full mode) kick the goal off immediately.
func (h *Hooks) agentEndGoalPM(ctx context.Context, goalID, sessionKey string) error {
	goal, err := h.store.GetGoal(goalID)
	if err != nil {
		return err
	}
	if goal.CascadeState != entities.CascadeStateAwaitingPlan {
		return nil
	}
	if h.gateway == nil {
		return nil
	}

	history, err := h.gateway.ChatHistory(ctx, sessionKey, 20)
	if err != nil {
		h.logger.Warn("agent_end: chat.history failed", "sessionKey", sessionKey, "error", err)
		return nil
	}
	var lastAssistant string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			lastAssistant = history[i].Content
			break
		}
	}
	if lastAssistant == "" {
		return nil
	}

	mode := goal.CascadeMode
	if mode == "" {
		mode = entities.CascadeModePlan
	}

	result, err := h.cascade.CreateTasksFromPlan(ctx, goalID, lastAssistant, mode)
	if err != nil {
		return fmt.Errorf("hooks: goal-PM cascade: %w", err)
	}

	if result.CascadeState == entities.CascadeStateTasksCreated && mode == entities.CascadeModeFull {
		if err := h.store.UpdateGoal(goalID, func(g *entities.Goal) error {
			g.AutonomyMode = entities.AutonomyModeFull
			return nil
		}); err != nil {
			h.logger.Warn("agent_end: set full autonomy failed", "goalId", goalID, "error", err)
		}
		if _, err := h.scheduler.InternalKickoff(goalID); err != nil {
			h.logger.Warn("agent_end: post-cascade kickoff failed", "goalId", goalID, "error", err)
		}
	}

	switch result.CascadeState {
	case entities.CascadeStateTasksCreated:
		h.publish("goal.cascade_tasks_created", map[string]any{"goalId": goalID, "strandId": goal.StrandID, "tasksCreated": len(result.CreatedTasks)})
	case entities.CascadeStatePlanReady:
		h.publish("goal.cascade_plan_ready", map[string]any{"goalId": goalID, "strandId": goal.StrandID, "hasPlan": true, "cascadeState": string(result.CascadeState)})
	}

	h.removeFromCascadePending(goal.StrandID, goalID)
	return nil
}

func (h *Hooks) removeFromCascadePending(strandID, goalID string) {
	if strandID == "" {
		return
	}
	var nowEmpty bool
	err := h.store.UpdateStrand(strandID, func(s *entities.Strand) error {
		var remaining []string
		for _, id := range s.CascadePendingGoals {
			if id != goalID {
				remaining = append(remaining, id)
			}
		}
		s.CascadePendingGoals = remaining
		nowEmpty = len(remaining) == 0
		return nil
	})
	if err != nil {
		h.logger.Warn("hooks: remove from cascadePendingGoals failed", "strandId", strandID, "goalId", goalID, "error", err)
		return
	}
	if nowEmpty {
		h.publish("strand.cascade_complete", map[string]any{"strandId": strandID})
	}
}

// agentEndWorkerTask handles a worker session ending: success
// auto-completes the task if the agent never called goal_update;
// failure retries up to maxRetries then marks the task permanently
// failed.
func (h *Hooks) agentEndWorkerTask(ctx context.Context, goalID, taskID string, success bool) error {
	goal, err := h.store.GetGoal(goalID)
	if err != nil {
		return err
	}
	task := goal.FindTask(taskID)
	if task == nil || task.Status != entities.TaskStatusInProgress {
		return nil
	}

	if success {
		if err := h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
			t.Status = entities.TaskStatusDone
			t.Done = true
			if t.Summary == "" {
				t.Summary = "(auto-marked on session end)"
			}
			return nil
		}); err != nil {
			return err
		}
		refreshed, err := h.store.GetGoal(goalID)
		if err != nil {
			return err
		}
		allDone := refreshed.AllTasksTerminal()
		h.publish("goal.task_completed", map[string]any{"goalId": goalID, "taskId": taskID, "allTasksDone": allDone, "autoCompleted": true})

		if allDone {
			return h.autoMerge(ctx, refreshed)
		}
		if _, err := h.scheduler.InternalKickoff(goalID); err != nil {
			h.logger.Warn("agent_end: post-completion kickoff failed", "goalId", goalID, "error", err)
		}
		return nil
	}

	maxRetries := task.MaxRetries
	if maxRetries == 0 {
		maxRetries = entities.DefaultMaxRetries
	}
	if task.RetryCount < maxRetries {
		var newRetryCount int
		if err := h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
			t.RetryCount++
			newRetryCount = t.RetryCount
			t.Status = entities.TaskStatusPending
			return nil
		}); err != nil {
			return err
		}
		if err := h.store.ClearTaskSession(goalID, taskID); err != nil {
			h.logger.Warn("agent_end: clear session on retry failed", "taskId", taskID, "error", err)
		}
		h.publish("goal.task_retry", map[string]any{"goalId": goalID, "taskId": taskID, "retryCount": newRetryCount, "maxRetries": maxRetries})
		if h.Metrics != nil {
			h.Metrics.TaskRetries.Add(ctx, 1)
		}
		if _, err := h.scheduler.InternalKickoff(goalID); err != nil {
			h.logger.Warn("agent_end: retry kickoff failed", "goalId", goalID, "error", err)
		}
		return nil
	}

	if err := h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
		t.Status = entities.TaskStatusFailed
		return nil
	}); err != nil {
		return err
	}
	h.publish("goal.task_failed", map[string]any{"goalId": goalID, "taskId": taskID, "retryCount": task.RetryCount})
	if h.Metrics != nil {
		h.Metrics.TaskFailures.Add(ctx, 1)
	}
	return nil
}
