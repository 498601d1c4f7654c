package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"fable/internal/model"
	"fable/internal/service"
)

// Store is the Postgres-backed persistence layer. One instance implements
// both service.Store and service.SubscriptionStore.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ service.Store             = (*Store)(nil)
	_ service.SubscriptionStore = (*Store)(nil)
)

// InTx runs fn inside a repeatable-read transaction, retrying on
// serialization conflicts so callers get the optimistic guarantee without
// manual locking. fn must therefore be safe to run more than once.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(10*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if isSerializationFailure(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// 40001 serialization_failure, 40P01 deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// RecordFailedAttempt appends a failed ledger row on the pool, outside any
// transaction, so it survives the rollback of the attempt it audits.
func (s *Store) RecordFailedAttempt(ctx context.Context, rec *model.LedgerTransaction) error {
	return insertTransaction(ctx, s.pool, rec)
}

// pgTx adapts one pgx transaction to the service.Tx operation set.
type pgTx struct {
	tx pgx.Tx
}

const accountColumns = `id, user_id, external_uid, email, coins, lifetime_coins, inventory, quest_progress, created_at, updated_at`

func (t *pgTx) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	return t.accountWhere(ctx, "id = $1", id)
}

func (t *pgTx) AccountByExternalUID(ctx context.Context, uid string) (*model.Account, error) {
	return t.accountWhere(ctx, "external_uid = $1", uid)
}

func (t *pgTx) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return t.accountWhere(ctx, "email = $1", email)
}

func (t *pgTx) AccountByUserID(ctx context.Context, userID string) (*model.Account, error) {
	return t.accountWhere(ctx, "user_id = $1", userID)
}

func (t *pgTx) accountWhere(ctx context.Context, cond string, arg string) (*model.Account, error) {
	if arg == "" {
		return nil, nil
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + cond
	row := t.tx.QueryRow(ctx, query, arg)

	var acc model.Account
	var progress []byte
	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.ExternalUID, &acc.Email,
		&acc.Coins, &acc.LifetimeCoins, &acc.Inventory, &progress,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &acc.QuestProgress); err != nil {
			return nil, fmt.Errorf("decode quest progress for %q: %w", acc.ID, err)
		}
	}
	return &acc, nil
}

func (t *pgTx) ItemByID(ctx context.Context, id string) (*model.Item, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, description, cost, metadata FROM items WHERE id = $1`, id)

	var item model.Item
	var meta []byte
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Cost, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode item metadata for %q: %w", item.ID, err)
		}
	}
	return &item, nil
}

// ApplyRedemption debits the balance and appends to the inventory in one
// statement. The coins >= cost guard repeats the service-level check so the
// CHECK constraint is never the first line of defense.
func (t *pgTx) ApplyRedemption(ctx context.Context, accountID, itemID string, cost int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts
		 SET coins = coins - $2,
		     inventory = array_append(inventory, $3),
		     updated_at = NOW()
		 WHERE id = $1 AND coins >= $2 AND NOT ($3 = ANY(inventory))`,
		accountID, cost, itemID,
	)
	if err != nil {
		return fmt.Errorf("apply redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %q changed underneath redemption", accountID)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, rec *model.LedgerTransaction) error {
	return insertTransaction(ctx, t.tx, rec)
}

// querier covers both the pool and a transaction: completed audit rows go
// through the tx, failed ones through the pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTransaction(ctx context.Context, q querier, rec *model.LedgerTransaction) error {
	var snapshot []byte
	if rec.ItemSnapshot != nil {
		var err error
		snapshot, err = json.Marshal(rec.ItemSnapshot)
		if err != nil {
			return fmt.Errorf("encode item snapshot: %w", err)
		}
	}

	_, err := q.Exec(ctx,
		`INSERT INTO ledger_transactions
		   (id, account_id, item_id, cost, status, failure_reason, item_snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		rec.ID, rec.AccountID, rec.ItemID, rec.Cost,
		rec.Status, rec.FailureReason, snapshot, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Quests(ctx context.Context) ([]model.Quest, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, title, trigger_event, target, reward FROM quests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		var q model.Quest
		if err := rows.Scan(&q.ID, &q.Title, &q.TriggerEvent, &q.Target, &q.Reward); err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func (t *pgTx) SaveQuestProgress(ctx context.Context, accountID string, entries []model.QuestProgressEntry, coinsEarned int64) error {
	progress, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode quest progress: %w", err)
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts
		 SET quest_progress = $2,
		     coins = coins + $3,
		     lifetime_coins = lifetime_coins + $3,
		     updated_at = NOW()
		 WHERE id = $1`,
		accountID, progress, coinsEarned,
	)
	if err != nil {
		return fmt.Errorf("save quest progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %q disappeared during quest update", accountID)
	}
	return nil
}
