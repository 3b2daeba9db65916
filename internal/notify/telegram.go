// Package notify pushes orchestrator lifecycle events to a configured
// Telegram chat. Unlike a chat channel it never polls for updates or
// routes commands back into the store — it only subscribes to the
// event bus and forwards a formatted message. Adapted from
// internal/channels/telegram.go's SubscribeToEvents/handleEvent
// dispatch shape, trimmed to the push-only half.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/go-strand/internal/config"
	"github.com/basket/go-strand/internal/eventbus"
)

// sender is the subset of tgbotapi.BotAPI this package depends on, so
// tests can substitute a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts goal lifecycle events to a Telegram chat.
type Notifier struct {
	bot        sender
	chatID     int64
	allowedIDs []int64
	bus        *eventbus.Bus
	logger     *slog.Logger

	subs []*eventbus.Subscription
}

// New builds a Notifier from Telegram config. It returns (nil, nil)
// when notifications are disabled or no token is configured, so
// callers can unconditionally defer Stop() without a nil check.
func New(cfg config.TelegramConfig, bus *eventbus.Bus, logger *slog.Logger) (*Notifier, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram init failed: %w", err)
	}
	return &Notifier{
		bot:        bot,
		chatID:     cfg.ChatID,
		allowedIDs: cfg.AllowedIDs,
		bus:        bus,
		logger:     logger,
	}, nil
}

// Start subscribes to the goal event topics this notifier forwards.
// Safe to call on a nil *Notifier (no-op), so callers don't need to
// guard every call site when Telegram is disabled.
func (n *Notifier) Start(ctx context.Context) {
	if n == nil || n.bus == nil {
		return
	}
	subs := []*eventbus.Subscription{
		n.bus.Subscribe("goal.completed"),
		n.bus.Subscribe("goal.task_failed"),
		n.bus.Subscribe("goal.push_failed"),
	}
	n.subs = subs
	for _, sub := range subs {
		go n.consume(ctx, sub)
	}
}

// Stop releases the event subscriptions. Safe to call on nil.
func (n *Notifier) Stop() {
	if n == nil || n.bus == nil {
		return
	}
	for _, sub := range n.subs {
		n.bus.Unsubscribe(sub)
	}
}

func (n *Notifier) consume(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			n.handleEvent(ev)
		}
	}
}

func (n *Notifier) handleEvent(ev eventbus.Event) {
	var msg string
	switch ev.Name {
	case "goal.completed":
		msg = formatGoalCompleted(ev.Payload)
	case "goal.task_failed":
		msg = formatTaskFailed(ev.Payload)
	case "goal.push_failed":
		msg = formatPushFailed(ev.Payload)
	default:
		return
	}
	n.send(msg)
}

func (n *Notifier) send(text string) {
	chatIDs := n.allowedIDs
	if len(chatIDs) == 0 && n.chatID != 0 {
		chatIDs = []int64{n.chatID}
	}
	for _, chatID := range chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "MarkdownV2"
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error("notify: failed to send telegram message", "error", err, "chat_id", chatID)
		}
	}
}

func formatGoalCompleted(payload map[string]any) string {
	goalID, _ := payload["goalId"].(string)
	phase, _ := payload["phase"].(string)
	return fmt.Sprintf("✅ Goal `%s` completed \\(phase: `%s`\\)", escapeMarkdownV2(goalID), escapeMarkdownV2(phase))
}

func formatTaskFailed(payload map[string]any) string {
	goalID, _ := payload["goalId"].(string)
	taskID, _ := payload["taskId"].(string)
	return fmt.Sprintf("❌ Task `%s` in goal `%s` exhausted its retry budget", escapeMarkdownV2(taskID), escapeMarkdownV2(goalID))
}

func formatPushFailed(payload map[string]any) string {
	goalID, _ := payload["goalId"].(string)
	errText, _ := payload["error"].(string)
	return fmt.Sprintf("⚠️ Push failed for goal `%s`: %s", escapeMarkdownV2(goalID), escapeMarkdownV2(errText))
}

// escapeMarkdownV2 escapes Telegram MarkdownV2 special characters.
func escapeMarkdownV2(s string) string {
	const specialChars = "_*[]()~>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(specialChars, c) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
