package model

import "time"

const (
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// LedgerTransaction is one append-only audit record per redemption attempt.
// Exactly one row is written per attempt: a completed row inside the
// redemption transaction, or a failed row outside it.
type LedgerTransaction struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	ItemID        string    `json:"item_id"`
	Cost          int64     `json:"cost"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ItemSnapshot  *Item     `json:"item_snapshot,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type RedeemRequest struct {
	AccountID string `json:"account_id"`
	ItemID    string `json:"item_id"`
}

// LedgerEvent is published to the bus after every redemption attempt so
// downstream consumers can tail the audit trail.
type LedgerEvent struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	ItemID        string    `json:"item_id"`
	Cost          int64     `json:"cost"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
