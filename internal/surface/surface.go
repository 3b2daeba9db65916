// Package surface is the request surface: a thin operation-name
// dispatch table where each handler validates its params, calls one or
// two of the core components (store, workspace, cascade, scheduler,
// lifecycle), and responds in a uniform {ok, payload?, error?} shape.
// Its switch-on-method-name dispatch and capability-checked-before-handler
// shape are grounded on internal/gateway/gateway.go's handleRPC.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/go-strand/internal/cascade"
	"github.com/basket/go-strand/internal/hooks"
	"github.com/basket/go-strand/internal/lifecycle"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/shared"
	"github.com/basket/go-strand/internal/store"
	"github.com/basket/go-strand/internal/workspace"
)

// nowFunc is a var, not a direct time.Now call, so tests can override it
// the same way eventbus's clock is injected.
var nowFunc = time.Now

// Result is the uniform {ok, payload?, error?} contract 
// requires from every operation.
type Result struct {
	Ok      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(payload any) Result { return Result{Ok: true, Payload: payload} }
func fail(format string, a ...any) Result {
	return Result{Ok: false, Error: fmt.Sprintf(format, a...)}
}

// Surface wires every C1-C9 collaborator an operation might need.
type Surface struct {
	Store     *store.Store
	Workspace *workspace.Manager
	Cascade   *cascade.Processor
	Scheduler *scheduler.Scheduler
	Lifecycle *lifecycle.Manager
	Hooks     *hooks.Hooks
	Events    scheduler.EventPublisher
	Logger    *slog.Logger
}

func (s *Surface) publish(event string, payload map[string]any) {
	if s.Events != nil {
		s.Events.Publish(event, payload)
	}
}

// New builds a Surface from its collaborators; Workspace may be nil
// (workspace features are unavailable for a strand with no repo).
func New(st *store.Store, ws *workspace.Manager, casc *cascade.Processor, sched *scheduler.Scheduler, lc *lifecycle.Manager, hk *hooks.Hooks, events scheduler.EventPublisher, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{Store: st, Workspace: ws, Cascade: casc, Scheduler: sched, Lifecycle: lc, Hooks: hk, Events: events, Logger: logger}
}

// Dispatch routes one operation by name to its handler (grouping:
// strand CRUD, goal/task CRUD + kickoff/close/git, PM cascade,
// sessions.*). Unknown operations return a non-ok Result rather than an
// error so the transport layer always has a uniform envelope to send.
// Every call is stamped with a trace_id (minted here if the transport
// didn't already attach one to ctx) so its log line, and any warning
// logged deeper in cascade/scheduler/hooks along the same ctx, can be
// correlated back to one request.
func (s *Surface) Dispatch(ctx context.Context, op string, params json.RawMessage) Result {
	if shared.TraceID(ctx) == "-" {
		ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	}
	traceID := shared.TraceID(ctx)

	result := s.dispatch(ctx, op, params)
	if !result.Ok {
		s.Logger.Warn("surface: operation failed", "op", op, "trace_id", traceID, "error", result.Error)
	} else {
		s.Logger.Debug("surface: operation ok", "op", op, "trace_id", traceID)
	}
	return result
}

func (s *Surface) dispatch(ctx context.Context, op string, params json.RawMessage) Result {
	switch op {
	case "strands.create":
		return s.strandsCreate(params)
	case "strands.list":
		return s.strandsList()
	case "strands.get":
		return s.strandsGet(params)
	case "strands.update":
		return s.strandsUpdate(params)
	case "strands.delete":
		return s.strandsDelete(ctx, params)

	case "goals.create":
		return s.goalsCreate(params)
	case "goals.get":
		return s.goalsGet(params)
	case "goals.list":
		return s.goalsList(params)
	case "goals.update":
		return s.goalsUpdate(params)
	case "goals.delete":
		return s.goalsDelete(ctx, params)
	case "goals.kickoff":
		return s.goalsKickoff(params)
	case "goals.close":
		return s.goalsClose(ctx, params)
	case "goals.branchStatus":
		return s.goalsBranchStatus(params)
	case "goals.createPR":
		return s.goalsCreatePR(params)
	case "goals.retryPush":
		return s.goalsRetryPush(params)
	case "goals.retryMerge":
		return s.goalsRetryMerge(params)
	case "goals.pushMain":
		return s.goalsPushMain(params)

	case "tasks.add":
		return s.tasksAdd(params)
	case "tasks.update":
		return s.tasksUpdate(params)

	case "pm.chat", "pm.strandChat":
		return s.pmStrandChat(params)
	case "pm.goalCascade":
		return s.pmGoalCascade(ctx, params)
	case "pm.strandCascade":
		return s.pmStrandCascade(ctx, params)
	case "pm.saveResponse":
		return s.pmSaveResponse(params)
	case "pm.createTasksFromPlan":
		return s.pmCreateTasksFromPlan(ctx, params)
	case "pm.strandCreateGoals":
		return s.pmStrandCreateGoals(ctx, params)

	case "sessions.killForGoal":
		return s.sessionsKillForGoal(ctx, params)
	case "sessions.killForStrand":
		return s.sessionsKillForStrand(ctx, params)
	case "sessions.cleanupStale":
		return s.sessionsCleanupStale(ctx, params)
	case "sessions.listForStrand":
		return s.sessionsListForStrand(params)

	default:
		return fail("unknown operation %q", op)
	}
}
