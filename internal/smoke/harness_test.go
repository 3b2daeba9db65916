// Package smoke drives the Strand/Goal/Task core end to end, in
// process, against the literal acceptance scenarios the orchestration
// design was reviewed against. Unlike a CLI-spawning black-box suite,
// every collaborator here (Store, cascade.Processor, scheduler.Scheduler,
// hooks.Hooks, lifecycle.Manager, surface.Surface) is wired directly, so
// a failing assertion points straight at the component responsible.
package smoke

import (
	"context"
	"os/exec"
	"testing"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/cascade"
	"github.com/basket/go-strand/internal/hooks"
	"github.com/basket/go-strand/internal/lifecycle"
	"github.com/basket/go-strand/internal/planparser"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/store"
	"github.com/basket/go-strand/internal/surface"
	"github.com/basket/go-strand/internal/workspace"
)

// recordedEvent captures one Publish call for assertion; recordingBus
// doubles as scheduler.EventPublisher and surface's Events collaborator.
type recordedEvent struct {
	Name    string
	Payload map[string]any
}

type recordingBus struct {
	events []recordedEvent
}

func (r *recordingBus) Publish(event string, payload map[string]any) {
	r.events = append(r.events, recordedEvent{Name: event, Payload: payload})
}

func (r *recordingBus) has(name string) bool {
	for _, e := range r.events {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (r *recordingBus) last(name string) (recordedEvent, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

// fakeGateway satisfies both hooks.Gateway and lifecycle.Gateway; none
// of the scenarios below depend on live gateway behavior, only on the
// core tolerating its absence/failure the way production does.
type fakeGateway struct {
	aborted, deleted []string
	history          map[string][]hooks.ChatTurn
}

func (g *fakeGateway) ChatHistory(_ context.Context, sessionKey string, _ int) ([]hooks.ChatTurn, error) {
	return g.history[sessionKey], nil
}

func (g *fakeGateway) ChatAbort(_ context.Context, sessionKey string) error {
	g.aborted = append(g.aborted, sessionKey)
	return nil
}

func (g *fakeGateway) SessionsDelete(_ context.Context, sessionKey string) error {
	g.deleted = append(g.deleted, sessionKey)
	return nil
}

// harness wires one full core stack per test, mirroring cmd/strandd's
// construction order without the daemon's transport/config layers.
type harness struct {
	t         *testing.T
	store     *store.Store
	workspace *workspace.Manager
	cascade   *cascade.Processor
	scheduler *scheduler.Scheduler
	lifecycle *lifecycle.Manager
	hooks     *hooks.Hooks
	surface   *surface.Surface
	events    *recordingBus
	gw        *fakeGateway
}

func newHarness(t *testing.T, withWorkspace bool) *harness {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	events := &recordingBus{}
	gw := &fakeGateway{history: make(map[string][]hooks.ChatTurn)}
	roles := agentrole.NewResolver("")
	sched := scheduler.New(st, roles, events, nil)
	casc := cascade.NewProcessor(st, planparser.NewHeuristicParser())

	var ws *workspace.Manager
	if withWorkspace {
		ws = workspace.NewManager(t.TempDir(), nil)
	}

	hk := hooks.New(st, sched, casc, ws, gw, events, nil)
	lc := lifecycle.New(st, gw, nil)
	sf := surface.New(st, ws, casc, sched, lc, hk, events, nil)

	return &harness{
		t: t, store: st, workspace: ws, cascade: casc, scheduler: sched,
		lifecycle: lc, hooks: hk, surface: sf, events: events, gw: gw,
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

// seedMainBranch turns a freshly git-init'd strand workspace into a
// one-commit repo on "main", matching every other goal-worktree test's
// fixture setup in this tree.
func seedMainBranch(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "config", "user.email", "smoke@example.com")
	runGit(t, dir, "config", "user.name", "Smoke")
	runGit(t, dir, "commit", "--allow-empty", "-m", "init")
	runGit(t, dir, "branch", "-m", "main")
}
