package service

import (
	"context"
	"time"

	"fable/internal/model"
)

// Store is the persistence surface used by the ledger and quest services.
// Implemented by the Postgres repository; tests supply in-memory fakes.
type Store interface {
	// InTx runs fn inside one atomic transaction. The implementation is
	// expected to retry automatically on serialization conflicts, so fn
	// must be safe to run more than once.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// RecordFailedAttempt appends a failed ledger row outside any
	// transaction so it survives the rollback of the attempt it audits.
	RecordFailedAttempt(ctx context.Context, rec *model.LedgerTransaction) error
}

// Tx is the set of store operations available inside one atomic transaction.
// Lookup methods return (nil, nil) when no row matches.
type Tx interface {
	AccountByID(ctx context.Context, id string) (*model.Account, error)
	AccountByExternalUID(ctx context.Context, uid string) (*model.Account, error)
	AccountByEmail(ctx context.Context, email string) (*model.Account, error)
	AccountByUserID(ctx context.Context, userID string) (*model.Account, error)

	ItemByID(ctx context.Context, id string) (*model.Item, error)

	// ApplyRedemption decrements the account balance by cost and appends
	// itemID to its inventory in one statement.
	ApplyRedemption(ctx context.Context, accountID, itemID string, cost int64) error

	InsertTransaction(ctx context.Context, rec *model.LedgerTransaction) error

	Quests(ctx context.Context) ([]model.Quest, error)

	// SaveQuestProgress replaces the account's full progress entry set and
	// credits earned coins to both the balance and the lifetime counter.
	SaveQuestProgress(ctx context.Context, accountID string, entries []model.QuestProgressEntry, coinsEarned int64) error
}

// SubscriptionStore is the persistence surface for webhook-driven
// subscription updates and the expiry sweeper. Lookups return (nil, nil)
// when no row matches.
type SubscriptionStore interface {
	SubscriptionByExternalID(ctx context.Context, externalSubID string) (*model.Subscription, error)
	SubscriptionByInvoiceID(ctx context.Context, invoiceID string) (*model.Subscription, error)

	// UpdateSubscription merge-writes the given fields onto the stored row.
	UpdateSubscription(ctx context.Context, sub *model.Subscription) error

	// ExpireLapsed moves every subscription with end date at or before now
	// and status != expired onto the free plan; returns rows affected.
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// Deduper short-circuits duplicate webhook deliveries by external event id.
type Deduper interface {
	// Seen records eventID and reports whether it was already recorded.
	Seen(ctx context.Context, eventID string) (bool, error)
}

// MessageBus publishes domain events to downstream consumers.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
