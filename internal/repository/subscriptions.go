package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fable/internal/model"
)

const subscriptionColumns = `id, account_id, plan, status, start_date, end_date,
	external_subscription_id, external_invoice_id, updated_at`

func (s *Store) SubscriptionByExternalID(ctx context.Context, externalSubID string) (*model.Subscription, error) {
	return s.subscriptionWhere(ctx, "external_subscription_id = $1", externalSubID)
}

func (s *Store) SubscriptionByInvoiceID(ctx context.Context, invoiceID string) (*model.Subscription, error) {
	return s.subscriptionWhere(ctx, "external_invoice_id = $1", invoiceID)
}

func (s *Store) subscriptionWhere(ctx context.Context, cond string, arg string) (*model.Subscription, error) {
	if arg == "" {
		return nil, nil
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + cond
	row := s.pool.QueryRow(ctx, query, arg)

	var sub model.Subscription
	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.Plan, &sub.Status,
		&sub.StartDate, &sub.EndDate,
		&sub.ExternalSubscriptionID, &sub.ExternalInvoiceID,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &sub, nil
}

// UpdateSubscription merge-writes the state-machine-owned fields. Columns
// not listed here are preserved.
func (s *Store) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET plan = $2,
		     status = $3,
		     start_date = $4,
		     end_date = $5,
		     external_subscription_id = $6,
		     external_invoice_id = $7,
		     updated_at = $8
		 WHERE id = $1`,
		sub.ID, sub.Plan, sub.Status, sub.StartDate, sub.EndDate,
		sub.ExternalSubscriptionID, sub.ExternalInvoiceID, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %q not found", sub.ID)
	}
	return nil
}

// ExpireLapsed is the sweeper's batch pass: every subscription whose period
// ended at or before now drops to the free plan. A row reactivated between
// selection and write inside one pass is picked up again next pass.
func (s *Store) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET plan = $1,
		     status = $2,
		     updated_at = NOW()
		 WHERE end_date <= $3 AND status <> $2`,
		model.PlanFree, model.SubExpired, now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
