package model

import "time"

const (
	SubActive   = "active"
	SubPastDue  = "past_due"
	SubCanceled = "cancelled"
	SubExpired  = "expired"

	PlanFree = "free"
)

// Subscription is the local mirror of one billing-provider subscription.
// Only the webhook state machine and the expiry sweeper write these rows.
type Subscription struct {
	ID                     string    `json:"id"`
	AccountID              string    `json:"account_id"`
	Plan                   string    `json:"plan"`
	Status                 string    `json:"status"`
	StartDate              time.Time `json:"start_date"`
	EndDate                time.Time `json:"end_date"`
	ExternalSubscriptionID string    `json:"external_subscription_id"`
	ExternalInvoiceID      string    `json:"external_invoice_id"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Billing-provider webhook event types. Providers deliver these at-least-once
// and possibly out of order; the state machine must converge regardless.
const (
	WebhookPaymentSucceeded = "payment.succeeded"
	WebhookSubActivated     = "subscription.activated"
	WebhookPaymentFailed    = "payment.failed"
	WebhookSubPastDue       = "subscription.past_due"
	WebhookSubCancelled     = "subscription.cancelled"
)

// WebhookEvent is the parsed billing-provider payload. PeriodStart/PeriodEnd
// are unix seconds, zero when the provider omits them.
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	SubscriptionID string `json:"subscription_id"`
	InvoiceID      string `json:"invoice_id"`
	Plan           string `json:"plan"`
	PeriodStart    int64  `json:"period_start"`
	PeriodEnd      int64  `json:"period_end"`
}
