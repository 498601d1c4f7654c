package model

import "time"

// Account holds the spendable coin balance and owned-item inventory for one
// student. Balance and inventory are mutated only inside a store transaction,
// never directly by transport code.
type Account struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	ExternalUID   string               `json:"external_uid"`
	Email         string               `json:"email"`
	Coins         int64                `json:"coins"`
	LifetimeCoins int64                `json:"lifetime_coins"`
	Inventory     []string             `json:"inventory"`
	QuestProgress []QuestProgressEntry `json:"quest_progress"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Owns reports whether the account inventory already contains itemID.
func (a *Account) Owns(itemID string) bool {
	for _, id := range a.Inventory {
		if id == itemID {
			return true
		}
	}
	return false
}

// Item is a read-only shop catalog entry.
type Item struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Cost        int64             `json:"cost"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
