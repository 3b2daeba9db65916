package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/go-strand/internal/config"
	"github.com/basket/go-strand/internal/eventbus"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestNotifier(t *testing.T, f *fakeSender, allowedIDs []int64) (*Notifier, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(nil, nil)
	n := &Notifier{
		bot:        f,
		chatID:     42,
		allowedIDs: allowedIDs,
		bus:        bus,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return n, bus
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	n, err := New(config.TelegramConfig{Enabled: false}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n != nil {
		t.Fatal("expected nil notifier when disabled")
	}
	// Must tolerate calls on a nil receiver.
	n.Start(context.Background())
	n.Stop()
}

func TestNewReturnsNilWhenTokenMissing(t *testing.T) {
	n, err := New(config.TelegramConfig{Enabled: true}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n != nil {
		t.Fatal("expected nil notifier when token is empty")
	}
}

func TestGoalCompletedEventSendsMessage(t *testing.T) {
	f := &fakeSender{}
	n, bus := newTestNotifier(t, f, []int64{1, 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	bus.Publish("goal.completed", map[string]any{"goalId": "goal_1", "strandId": "strand_1", "phase": "merged"})

	waitForCount(t, f, 2)
}

func TestTaskFailedEventSendsMessage(t *testing.T) {
	f := &fakeSender{}
	n, bus := newTestNotifier(t, f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	bus.Publish("goal.task_failed", map[string]any{"goalId": "goal_1", "taskId": "t1", "retryCount": 3})

	waitForCount(t, f, 1)
}

func TestUnrelatedEventIsIgnored(t *testing.T) {
	f := &fakeSender{}
	n, bus := newTestNotifier(t, f, []int64{1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)
	defer n.Stop()

	bus.Publish("goal.created", map[string]any{"goalId": "goal_1"})

	time.Sleep(50 * time.Millisecond)
	if got := f.count(); got != 0 {
		t.Fatalf("expected no messages sent for an unsubscribed topic, got %d", got)
	}
}

func TestEscapeMarkdownV2EscapesSpecialCharacters(t *testing.T) {
	got := escapeMarkdownV2("goal-1.done!")
	want := `goal\-1\.done\!`
	if got != want {
		t.Fatalf("escapeMarkdownV2 = %q, want %q", got, want)
	}
}

func waitForCount(t *testing.T, f *fakeSender, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, got %d", want, f.count())
}
