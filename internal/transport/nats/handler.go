package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"fable/internal/model"
	"fable/internal/service"
)

// Handler subscribes to student event topics and delegates to the quest
// tracker. Event producers that cannot call HTTP publish here instead.
type Handler struct {
	quests service.QuestTracker
	nc     *nats.Conn
	subs   []*nats.Subscription
}

func NewHandler(quests service.QuestTracker, nc *nats.Conn) *Handler {
	return &Handler{quests: quests, nc: nc}
}

// Start queue-subscribes to "events.student" and blocks until ctx is
// cancelled. The queue group means each event is applied by exactly one
// instance, which matters because quest increments are not idempotent.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe("events.student", "quest_group", func(m *nats.Msg) {
		var req model.QuestEventRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal student event", "error", err)
			return
		}
		if !model.KnownEventType(req.EventType) {
			slog.Error("nats: unknown student event type dropped",
				"event_type", req.EventType,
				"account_id", req.AccountID,
			)
			return
		}
		res, err := h.quests.ApplyEvent(ctx, req.AccountID, req.EventType)
		if err != nil {
			slog.Error("nats: quest event failed",
				"account_id", req.AccountID,
				"event_type", req.EventType,
				"error", err,
			)
			return
		}
		if res.CoinsEarned > 0 {
			slog.Info("nats: quest rewards credited",
				"account_id", req.AccountID,
				"coins_earned", res.CoinsEarned,
			)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS student event handler is running")

	<-ctx.Done()
	slog.Info("NATS student event handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
