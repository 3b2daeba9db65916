package surface

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/cascade"
	"github.com/basket/go-strand/internal/lifecycle"
	"github.com/basket/go-strand/internal/planparser"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/store"
)

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(event string, _ map[string]any) {
	r.events = append(r.events, event)
}

type fakeLifecycleGateway struct {
	aborted []string
	deleted []string
}

func (g *fakeLifecycleGateway) ChatAbort(_ context.Context, sessionKey string) error {
	g.aborted = append(g.aborted, sessionKey)
	return nil
}

func (g *fakeLifecycleGateway) SessionsDelete(_ context.Context, sessionKey string) error {
	g.deleted = append(g.deleted, sessionKey)
	return nil
}

func newTestSurface(t *testing.T) (*Surface, *store.Store, *recordingPublisher) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	pub := &recordingPublisher{}
	roles := agentrole.NewResolver("")
	sched := scheduler.New(st, roles, pub, nil)
	casc := cascade.NewProcessor(st, planparser.NewHeuristicParser())
	lc := lifecycle.New(st, &fakeLifecycleGateway{}, nil)

	s := New(st, nil, casc, sched, lc, nil, pub, nil)
	return s, st, pub
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
