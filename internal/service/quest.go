package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"fable/internal/model"
)

// QuestTracker advances quest progress in response to student events.
type QuestTracker interface {
	ApplyEvent(ctx context.Context, accountID, eventType string) (*model.QuestEventResult, error)
}

// QuestService applies student events to quest progress and credits rewards,
// all inside one store transaction scoped to the account plus the quest
// catalog.
type QuestService struct {
	store Store
	bus   MessageBus
}

func NewQuestService(store Store, bus MessageBus) *QuestService {
	return &QuestService{store: store, bus: bus}
}

// ApplyEvent increments every uncompleted progress entry whose quest trigger
// matches eventType, completing entries that reach their target and crediting
// the summed rewards. A completed quest never re-triggers.
//
// Events for accounts that do not exist yet are a silent no-op: upstream
// producers may race account provisioning, and losing one login event is
// preferable to failing the producer.
func (s *QuestService) ApplyEvent(ctx context.Context, accountID, eventType string) (*model.QuestEventResult, error) {
	var completed []model.QuestCompletedEvent
	result := &model.QuestEventResult{}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// Retries rerun this closure from scratch.
		completed = completed[:0]
		result.CoinsEarned = 0

		account, err := tx.AccountByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load account %q: %w", accountID, err)
		}
		if account == nil {
			return ErrAccountNotFound
		}

		quests, err := tx.Quests(ctx)
		if err != nil {
			return fmt.Errorf("load quest catalog: %w", err)
		}

		entries := account.QuestProgress
		if len(entries) == 0 {
			entries = make([]model.QuestProgressEntry, 0, len(quests))
			for _, q := range quests {
				entries = append(entries, model.QuestProgressEntry{QuestID: q.ID})
			}
		}

		byID := make(map[string]model.Quest, len(quests))
		for _, q := range quests {
			byID[q.ID] = q
		}

		for i := range entries {
			entry := &entries[i]
			quest, ok := byID[entry.QuestID]
			if !ok || entry.Completed || quest.TriggerEvent != eventType {
				continue
			}
			entry.Progress++
			if entry.Progress >= quest.Target {
				entry.Completed = true
				result.CoinsEarned += quest.Reward
				completed = append(completed, model.QuestCompletedEvent{
					AccountID: account.ID,
					QuestID:   quest.ID,
					Reward:    quest.Reward,
				})
			}
		}

		return tx.SaveQuestProgress(ctx, account.ID, entries, result.CoinsEarned)
	})

	if errors.Is(err, ErrAccountNotFound) {
		slog.Info("quest: event for unknown account ignored",
			"account_id", accountID,
			"event_type", eventType,
		)
		return &model.QuestEventResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	s.publishCompleted(completed)
	return result, nil
}

func (s *QuestService) publishCompleted(events []model.QuestCompletedEvent) {
	if s.bus == nil {
		return
	}
	for _, ev := range events {
		data, _ := json.Marshal(ev)
		if err := s.bus.Publish("quests.completed", data); err != nil {
			slog.Error("quest: failed to publish completion event",
				"account_id", ev.AccountID,
				"quest_id", ev.QuestID,
				"error", err,
			)
		}
	}
}
