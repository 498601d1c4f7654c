package service

import (
	"context"
	"time"

	"fable/internal/model"
)

// fakeTx is an in-memory stand-in for one store transaction.
type fakeTx struct {
	accounts map[string]*model.Account
	items    map[string]*model.Item
	quests   []model.Quest

	inserted []*model.LedgerTransaction
	saveErr  error
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		accounts: map[string]*model.Account{},
		items:    map[string]*model.Item{},
	}
}

func (t *fakeTx) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	return t.accounts[id], nil
}

func (t *fakeTx) AccountByExternalUID(ctx context.Context, uid string) (*model.Account, error) {
	return t.accountBy(func(a *model.Account) bool { return a.ExternalUID == uid && uid != "" })
}

func (t *fakeTx) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return t.accountBy(func(a *model.Account) bool { return a.Email == email && email != "" })
}

func (t *fakeTx) AccountByUserID(ctx context.Context, userID string) (*model.Account, error) {
	return t.accountBy(func(a *model.Account) bool { return a.UserID == userID && userID != "" })
}

func (t *fakeTx) accountBy(match func(*model.Account) bool) (*model.Account, error) {
	for _, a := range t.accounts {
		if match(a) {
			return a, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) ItemByID(ctx context.Context, id string) (*model.Item, error) {
	return t.items[id], nil
}

func (t *fakeTx) ApplyRedemption(ctx context.Context, accountID, itemID string, cost int64) error {
	acc := t.accounts[accountID]
	acc.Coins -= cost
	acc.Inventory = append(acc.Inventory, itemID)
	return nil
}

func (t *fakeTx) InsertTransaction(ctx context.Context, rec *model.LedgerTransaction) error {
	t.inserted = append(t.inserted, rec)
	return nil
}

func (t *fakeTx) Quests(ctx context.Context) ([]model.Quest, error) {
	return t.quests, nil
}

func (t *fakeTx) SaveQuestProgress(ctx context.Context, accountID string, entries []model.QuestProgressEntry, coinsEarned int64) error {
	if t.saveErr != nil {
		return t.saveErr
	}
	acc := t.accounts[accountID]
	acc.QuestProgress = entries
	acc.Coins += coinsEarned
	acc.LifetimeCoins += coinsEarned
	return nil
}

type fakeStore struct {
	tx *fakeTx

	failed  []*model.LedgerTransaction
	failErr error
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, s.tx)
}

func (s *fakeStore) RecordFailedAttempt(ctx context.Context, rec *model.LedgerTransaction) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.failed = append(s.failed, rec)
	return nil
}

type fakeSubStore struct {
	subs      []*model.Subscription
	updated   []*model.Subscription
	expiredAt []time.Time
	expireN   int64
	expireErr error
	lookupErr error
}

func (s *fakeSubStore) SubscriptionByExternalID(ctx context.Context, externalSubID string) (*model.Subscription, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, sub := range s.subs {
		if sub.ExternalSubscriptionID == externalSubID {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *fakeSubStore) SubscriptionByInvoiceID(ctx context.Context, invoiceID string) (*model.Subscription, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, sub := range s.subs {
		if sub.ExternalInvoiceID == invoiceID {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *fakeSubStore) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	cp := *sub
	s.updated = append(s.updated, &cp)
	return nil
}

func (s *fakeSubStore) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	s.expiredAt = append(s.expiredAt, now)
	return s.expireN, s.expireErr
}

type fakeDeduper struct {
	seen map[string]bool
	err  error
}

func (d *fakeDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	was := d.seen[eventID]
	d.seen[eventID] = true
	return was, nil
}

type mockBus struct {
	topics   []string
	payloads [][]byte
}

func (m *mockBus) Publish(topic string, data []byte) error {
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, data)
	return nil
}
