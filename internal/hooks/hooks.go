// Package hooks composes the orchestration core with the external LLM
// gateway: before_agent_start injects context, agent_end
// drives cascade/retry/auto-merge, agent_stream extracts the plan log.
// Its dispatch-by-session-kind shape and "never let a gateway error
// abort local bookkeeping" posture are grounded on
// internal/gateway/gateway.go's handleRPC switch and the tolerate-failure
// idiom shared with internal/agent/registry.go.
package hooks

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/cascade"
	orchotel "github.com/basket/go-strand/internal/otel"
	"github.com/basket/go-strand/internal/safety"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/store"
	"github.com/basket/go-strand/internal/workspace"
)

// ChatTurn is one turn of gateway-held chat history.
type ChatTurn struct {
	Role    string
	Content string
}

// Gateway is the subset of the external gateway's surface hooks needs
// beyond what lifecycle.Gateway already covers.
type Gateway interface {
	ChatHistory(ctx context.Context, sessionKey string, limit int) ([]ChatTurn, error)
}

// Hooks wires the Store, Scheduler, Cascade Processor, and Workspace
// Manager into the three gateway lifecycle callbacks.
type Hooks struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	cascade   *cascade.Processor
	workspace *workspace.Manager
	gateway   Gateway
	events    scheduler.EventPublisher
	logger    *slog.Logger

	planLogsMu sync.Mutex
	planLogs   map[string][]string // sessionKey -> ring buffer of recent plan-log lines

	// Tracer and Metrics are optional OpenTelemetry instruments (nil by
	// default, so Hooks works untouched in tests). Set both after
	// construction to enable spans/counters around agent_end and merge.
	Tracer  trace.Tracer
	Metrics *orchotel.Metrics

	// Sandbox, when set, runs SandboxCommand against a goal's base
	// branch after a clean merge. Nil skips post-merge verification
	// entirely.
	Sandbox        *workspace.Sandbox
	SandboxCommand string

	// Sanitizer, when set, screens goal/task text for prompt-injection
	// markers before it is rendered into a worker's before_agent_start
	// context. Nil skips screening and injects text as-is.
	Sanitizer *safety.Sanitizer

	// LeakDetector, when set, scans streamed tool output for leaked
	// secrets. Nil skips scanning.
	LeakDetector *safety.LeakDetector
}

func New(st *store.Store, sched *scheduler.Scheduler, casc *cascade.Processor, ws *workspace.Manager, gw Gateway, events scheduler.EventPublisher, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		store:     st,
		scheduler: sched,
		cascade:   casc,
		workspace: ws,
		gateway:   gw,
		events:    events,
		logger:    logger,
		planLogs:  make(map[string][]string),
	}
}

func (h *Hooks) publish(event string, payload map[string]any) {
	if h.events != nil {
		h.events.Publish(event, payload)
	}
}

// sessionKind classifies a sessionKey for dispatch. Goal-PM and
// strand-PM are decoded straight out of the deterministic session-key
// grammar; worker-task and generic strand-bound sessions
// fall back to the Store's indices.
type sessionKind int

const (
	kindUnknown sessionKind = iota
	kindStrandPM
	kindGoalPM
	kindWorkerTask
	kindStrandBound
)

type classifiedSession struct {
	kind     sessionKind
	strandID string
	goalID   string
	taskID   string
}

func (h *Hooks) classify(sessionKey string) classifiedSession {
	if parsed, err := agentrole.ParseSessionKey(sessionKey); err == nil && parsed.SessionType == agentrole.SessionTypeWebchat {
		switch {
		case strings.HasPrefix(parsed.SubID, "pm-strand-"):
			return classifiedSession{kind: kindStrandPM, strandID: strings.TrimPrefix(parsed.SubID, "pm-strand-")}
		case strings.HasPrefix(parsed.SubID, "pm-"):
			return classifiedSession{kind: kindGoalPM, goalID: strings.TrimPrefix(parsed.SubID, "pm-")}
		}
	}

	kind, ownerID := h.store.LookupSession(sessionKey)
	switch kind {
	case store.SessionKindGoal:
		goal, err := h.store.GetGoal(ownerID)
		if err != nil {
			return classifiedSession{kind: kindUnknown}
		}
		for _, t := range goal.Tasks {
			if t.SessionKey == sessionKey {
				return classifiedSession{kind: kindWorkerTask, goalID: ownerID, taskID: t.ID}
			}
		}
		return classifiedSession{kind: kindStrandBound, strandID: ownerID}
	case store.SessionKindStrand:
		return classifiedSession{kind: kindStrandBound, strandID: ownerID}
	default:
		return classifiedSession{kind: kindUnknown}
	}
}
