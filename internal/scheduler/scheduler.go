// Package scheduler is the dependency-driven kickoff engine: it decides
// which tasks are runnable, mints their sessions, and
// cascades a goal's completion into its dependents. Its wave logic is
// grounded on internal/coordinator/executor.go's topoSort-into-waves
// Kahn's-algorithm executor, generalized from "run a DAG of steps once"
// to "repeatedly recompute the frontier of a mutable Strand/Goal/Task
// graph as tasks complete."
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/entities"
	orchotel "github.com/basket/go-strand/internal/otel"
	"github.com/basket/go-strand/internal/store"
)

// EventPublisher is the minimal broadcast surface the scheduler needs;
// internal/eventbus.Bus satisfies it. Kept as a narrow interface here so
// scheduler does not import eventbus's disk-log and topic-matching
// machinery just to publish a handful of event types.
type EventPublisher interface {
	Publish(event string, payload map[string]any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, map[string]any) {}

// SpawnedSession is one task a kickoff started.
type SpawnedSession struct {
	TaskID      string `json:"taskId"`
	SessionKey  string `json:"sessionKey"`
	TaskContext string `json:"taskContext"`
}

// KickoffResult is internalKickoff's return shape.
type KickoffResult struct {
	SpawnedSessions []SpawnedSession `json:"spawnedSessions"`
	Errors          []string         `json:"errors,omitempty"`
	Message         string           `json:"message,omitempty"`
}

// Scheduler implements internalKickoff and kickoffUnblockedGoals.
type Scheduler struct {
	store  *store.Store
	roles  *agentrole.Resolver
	events EventPublisher
	logger *slog.Logger

	// RoleOverrides mirrors config.Config.AgentRoles: a role->agentId
	// map consulted before roles' env-var defaults. Set directly by the
	// daemon after construction; nil (the zero value) falls back to
	// env-var/passthrough resolution only.
	RoleOverrides map[string]string

	// Tracer and Metrics are optional OpenTelemetry instruments; nil
	// skips span/counter emission entirely.
	Tracer  trace.Tracer
	Metrics *orchotel.Metrics
}

func New(st *store.Store, roles *agentrole.Resolver, events EventPublisher, logger *slog.Logger) *Scheduler {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, roles: roles, events: events, logger: logger}
}

// shortID trims a "task_" / "goal_" prefixed id down to its numeric/opaque
// suffix for use in a session key subId, matching the
// "task-<short>" worker subId grammar.
func shortID(id string) string {
	if idx := strings.LastIndexByte(id, '_'); idx >= 0 && idx+1 < len(id) {
		return id[idx+1:]
	}
	return id
}

// InternalKickoff decides which of a goal's tasks are now runnable,
// mints sessions for them, and activates the goal if any were spawned.
func (s *Scheduler) InternalKickoff(goalID string) (KickoffResult, error) {
	ctx := context.Background()
	if s.Tracer != nil {
		var span trace.Span
		ctx, span = orchotel.StartKickoffSpan(ctx, s.Tracer, goalID)
		defer span.End()
	}
	if s.Metrics != nil {
		start := time.Now()
		defer func() { s.Metrics.KickoffDuration.Record(ctx, time.Since(start).Seconds()) }()
	}

	goal, err := s.store.GetGoal(goalID)
	if err != nil {
		return KickoffResult{}, err
	}

	if len(goal.DependsOn) > 0 {
		satisfied, err := s.dependenciesSatisfied(goal.DependsOn)
		if err != nil {
			return KickoffResult{}, err
		}
		if !satisfied {
			return KickoffResult{Message: "blocked by dependencies"}, nil
		}
	}

	terminalTasks := goal.TerminalTaskIDs()

	var spawnable []entities.Task
	for _, t := range goal.Tasks {
		if t.SessionKey != "" || t.Status == entities.TaskStatusDone {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if _, ok := terminalTasks[dep]; !ok {
				ready = false
				break
			}
		}
		if ready {
			spawnable = append(spawnable, t)
		}
	}

	if len(spawnable) == 0 {
		return KickoffResult{Message: "no spawnable tasks"}, nil
	}

	strand, _ := s.store.GetStrand(goal.StrandID)
	allGoals, _ := s.store.ListGoalsByStrand(goal.StrandID)

	var result KickoffResult

	for _, pending := range spawnable {
		agentID := s.roles.ResolveAgent(s.RoleOverrides, pending.AssignedAgent)
		sessionKey := agentrole.WorkerSessionKey(agentID, shortID(pending.ID))
		taskCtx := buildTaskContext(strand, allGoals, goal, pending)

		if err := s.store.UpdateTask(goalID, pending.ID, func(t *entities.Task) error {
			t.Status = entities.TaskStatusInProgress
			if t.AutonomyMode == "" {
				t.AutonomyMode = goal.AutonomyMode
			}
			t.Plan.ExpectedFilePath = planFilePath(goal, pending)
			return nil
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: %v", pending.ID, err))
			continue
		}

		if err := s.store.AssignSession(goalID, pending.ID, sessionKey); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: assign session: %v", pending.ID, err))
			continue
		}

		result.SpawnedSessions = append(result.SpawnedSessions, SpawnedSession{
			TaskID:      pending.ID,
			SessionKey:  sessionKey,
			TaskContext: taskCtx,
		})
	}

	if s.Metrics != nil && len(result.SpawnedSessions) > 0 {
		s.Metrics.SessionsSpawned.Add(ctx, int64(len(result.SpawnedSessions)))
	}

	if len(result.SpawnedSessions) > 0 {
		if err := s.store.UpdateGoal(goalID, func(g *entities.Goal) error {
			if g.Status != entities.GoalStatusDone {
				g.Status = entities.GoalStatusActive
			}
			return nil
		}); err != nil {
			return result, fmt.Errorf("scheduler: activate goal: %w", err)
		}
	}

	s.events.Publish("goal.kickoff", map[string]any{
		"goalId":          goalID,
		"spawnedCount":    len(result.SpawnedSessions),
		"spawnedSessions": result.SpawnedSessions,
	})

	return result, nil
}

func (s *Scheduler) dependenciesSatisfied(dependsOn []string) (bool, error) {
	for _, depID := range dependsOn {
		dep, err := s.store.GetGoal(depID)
		if err != nil {
			return false, err
		}
		if dep.Status != entities.GoalStatusDone {
			return false, nil
		}
	}
	return true, nil
}

// KickoffUnblockedGoals implements kickoffUnblockedGoals(strandId): scans
// for not-done goals with tasks, no sessions yet, and dependsOn entries,
// kicking each off. This is how a strand advances from one phase to the
// next.
func (s *Scheduler) KickoffUnblockedGoals(strandID string) ([]KickoffResult, error) {
	goals, err := s.store.ListGoalsByStrand(strandID)
	if err != nil {
		return nil, err
	}

	var results []KickoffResult
	for _, g := range goals {
		if g.Status == entities.GoalStatusDone {
			continue
		}
		if len(g.Tasks) == 0 {
			continue
		}
		if len(g.Sessions) != 0 {
			continue
		}
		if len(g.DependsOn) == 0 {
			continue
		}
		res, err := s.InternalKickoff(g.ID)
		if err != nil {
			s.logger.Warn("kickoffUnblockedGoals: internalKickoff failed", "goalId", g.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func planFilePath(g *entities.Goal, t entities.Task) string {
	base := "task"
	if g.Worktree != nil && g.Worktree.Path != "" {
		base = g.Worktree.Path
	}
	return base + "/.strand-plan-" + shortID(t.ID) + ".md"
}

// buildTaskContext assembles the prompt-prefix a spawned worker receives:
// project summary (siblings with a "this goal" marker), goal context
// (sibling tasks with a "you" marker on the spawning task), the PM plan
// if present, and the working-directory instruction.
func buildTaskContext(strand *entities.Strand, allGoals []*entities.Goal, goal *entities.Goal, task entities.Task) string {
	var b strings.Builder

	if strand != nil {
		fmt.Fprintf(&b, "# Project: %s\n", strand.Name)
		if strand.Description != "" {
			fmt.Fprintf(&b, "%s\n", strand.Description)
		}
		b.WriteString("\n## Goals in this project\n")
		sorted := append([]*entities.Goal(nil), allGoals...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAtMs < sorted[j].CreatedAtMs })
		for _, g := range sorted {
			marker := ""
			if g.ID == goal.ID {
				marker = "  <- this goal"
			}
			fmt.Fprintf(&b, "- [%s] %s%s\n", g.Status, g.Title, marker)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Goal: %s\n", goal.Title)
	if goal.Description != "" {
		fmt.Fprintf(&b, "%s\n", goal.Description)
	}
	b.WriteString("\nTasks:\n")
	for _, t := range goal.Tasks {
		marker := ""
		if t.ID == task.ID {
			marker = "  <- you"
		}
		fmt.Fprintf(&b, "- [%s] %s%s\n", t.Status, t.Text, marker)
	}

	if strand != nil && strand.PMPlanContent != "" {
		fmt.Fprintf(&b, "\n## Project plan\n%s\n", strand.PMPlanContent)
	}

	b.WriteString("\n## Assignment\n")
	fmt.Fprintf(&b, "%s\n", task.Text)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n", task.Description)
	}

	workDir := ""
	if goal.Worktree != nil && goal.Worktree.Path != "" {
		workDir = goal.Worktree.Path
	} else if strand != nil && strand.Workspace != nil {
		workDir = strand.Workspace.Path
	}
	if workDir != "" {
		fmt.Fprintf(&b, "\nWork from: cd %s\n", workDir)
	}

	autonomy := task.AutonomyMode
	if autonomy == "" {
		autonomy = goal.AutonomyMode
	}
	if autonomy != "" {
		fmt.Fprintf(&b, "\nAutonomy mode: %s\n", autonomy)
	}

	fmt.Fprintf(&b, "\nReport progress and completion via the goal_update tool (goalId=%s, taskId=%s).\n", goal.ID, task.ID)

	return b.String()
}
