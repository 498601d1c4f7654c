package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fable/internal/model"
)

// Ledger is the redemption contract the transports depend on.
type Ledger interface {
	Redeem(ctx context.Context, accountKey, itemID string) (*model.LedgerTransaction, error)
}

// LedgerService performs atomic shop redemptions: debit coins, grow the
// inventory, append an audit row, all in one store transaction.
type LedgerService struct {
	store Store
	bus   MessageBus
	now   func() time.Time
}

func NewLedgerService(store Store, bus MessageBus) *LedgerService {
	return &LedgerService{store: store, bus: bus, now: time.Now}
}

// resolverStrategy is one way of finding an account from a caller-supplied
// key. Strategies are tried in order; the first match wins. New identifying
// fields are added here, not in the transaction logic.
type resolverStrategy func(ctx context.Context, tx Tx, key string) (*model.Account, error)

var accountResolvers = []resolverStrategy{
	func(ctx context.Context, tx Tx, key string) (*model.Account, error) {
		return tx.AccountByID(ctx, key)
	},
	func(ctx context.Context, tx Tx, key string) (*model.Account, error) {
		return tx.AccountByExternalUID(ctx, key)
	},
	func(ctx context.Context, tx Tx, key string) (*model.Account, error) {
		return tx.AccountByEmail(ctx, key)
	},
	func(ctx context.Context, tx Tx, key string) (*model.Account, error) {
		return tx.AccountByUserID(ctx, key)
	},
}

// resolveAccount tries each resolver strategy in order. Callers often hold an
// external uid or email rather than the canonical account key, so an exact id
// miss is not yet a failure.
func resolveAccount(ctx context.Context, tx Tx, key string) (*model.Account, error) {
	for _, resolve := range accountResolvers {
		acc, err := resolve(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if acc != nil {
			return acc, nil
		}
	}
	return nil, nil
}

// Redeem charges the account for the item and hands it over, writing one
// completed ledger row in the same transaction. Every failure writes one
// failed ledger row outside the transaction, so the audit trail keeps
// attempts that never changed a balance.
//
// Redeem is deliberately not idempotent by request: a retry after success
// fails with ErrAlreadyOwned, which is the duplicate guard.
func (s *LedgerService) Redeem(ctx context.Context, accountKey, itemID string) (*model.LedgerTransaction, error) {
	var rec *model.LedgerTransaction

	// Resolved inside the tx but needed for the failure audit row after it.
	resolvedID := accountKey

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := resolveAccount(ctx, tx, accountKey)
		if err != nil {
			return fmt.Errorf("resolve account %q: %w", accountKey, err)
		}
		if account == nil {
			return fmt.Errorf("account %q: %w", accountKey, ErrNotFound)
		}
		resolvedID = account.ID

		item, err := tx.ItemByID(ctx, itemID)
		if err != nil {
			return fmt.Errorf("load item %q: %w", itemID, err)
		}
		if item == nil {
			return fmt.Errorf("item %q: %w", itemID, ErrNotFound)
		}

		if account.Owns(itemID) {
			return fmt.Errorf("item %q: %w", itemID, ErrAlreadyOwned)
		}
		if account.Coins < item.Cost {
			return fmt.Errorf("need %d coins, have %d: %w", item.Cost, account.Coins, ErrInsufficient)
		}

		if err := tx.ApplyRedemption(ctx, account.ID, itemID, item.Cost); err != nil {
			return fmt.Errorf("apply redemption: %w", err)
		}

		rec = &model.LedgerTransaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			ItemID:       itemID,
			Cost:         item.Cost,
			Status:       model.TxCompleted,
			ItemSnapshot: item,
			CreatedAt:    s.now(),
		}
		return tx.InsertTransaction(ctx, rec)
	})

	if err != nil {
		s.auditFailure(ctx, resolvedID, itemID, err)
		return nil, err
	}

	s.publishEvent(rec)
	return rec, nil
}

// auditFailure writes the failed ledger row outside the transaction that just
// rolled back. A failure here is logged and swallowed: it must never mask the
// outcome of the attempt itself.
func (s *LedgerService) auditFailure(ctx context.Context, accountID, itemID string, cause error) {
	rec := &model.LedgerTransaction{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		ItemID:        itemID,
		Status:        model.TxFailed,
		FailureReason: cause.Error(),
		CreatedAt:     s.now(),
	}
	if err := s.store.RecordFailedAttempt(ctx, rec); err != nil {
		slog.Error("ledger: failed to record failed redemption attempt",
			"account_id", accountID,
			"item_id", itemID,
			"error", err,
		)
		return
	}
	s.publishEvent(rec)
}

func (s *LedgerService) publishEvent(rec *model.LedgerTransaction) {
	if s.bus == nil {
		return
	}
	event := model.LedgerEvent{
		TransactionID: rec.ID,
		AccountID:     rec.AccountID,
		ItemID:        rec.ItemID,
		Cost:          rec.Cost,
		Status:        rec.Status,
		CreatedAt:     rec.CreatedAt,
	}
	data, _ := json.Marshal(event)
	if err := s.bus.Publish("ledger.transactions", data); err != nil {
		slog.Error("ledger: failed to publish transaction event",
			"transaction_id", rec.ID,
			"error", err,
		)
	}
}
