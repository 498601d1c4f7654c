package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fable/internal/model"
)

// WebhookProcessor is the billing-webhook contract the HTTP transport
// depends on.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error
}

// defaultPeriod extends an activated subscription when the provider omits a
// period end.
const defaultPeriod = 30 * 24 * time.Hour

// SubscriptionService verifies billing-provider webhooks and drives the
// subscription state machine. Transitions are a pure function of event
// content, so redelivered events converge to the same record.
type SubscriptionService struct {
	subs   SubscriptionStore
	dedup  Deduper
	secret []byte
	now    func() time.Time
}

func NewSubscriptionService(subs SubscriptionStore, dedup Deduper, secret []byte) *SubscriptionService {
	return &SubscriptionService{
		subs:   subs,
		dedup:  dedup,
		secret: secret,
		now:    time.Now,
	}
}

// HandleWebhook runs the full inbound pipeline: signature verification,
// event-id dedup, then the state transition.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	event, err := VerifyWebhook(rawBody, signatureHeader, s.secret)
	if err != nil {
		return err
	}

	if event.ID != "" && s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, event.ID)
		if err != nil {
			// Dedup is an optimization: transitions are idempotent, so a
			// dedup outage degrades to reprocessing, not to wrong state.
			slog.Error("webhook: dedup check failed, processing anyway",
				"event_id", event.ID,
				"error", err,
			)
		} else if seen {
			slog.Info("webhook: duplicate delivery ignored", "event_id", event.ID)
			return nil
		}
	}

	return s.Apply(ctx, event)
}

// Apply resolves the target subscription and applies the transition table.
// Events for subscriptions not provisioned locally are a logged no-op:
// provisioning order between the provider and this store is not guaranteed.
func (s *SubscriptionService) Apply(ctx context.Context, event *model.WebhookEvent) error {
	sub, err := s.resolve(ctx, event.Data)
	if err != nil {
		return fmt.Errorf("resolve subscription: %w", err)
	}
	if sub == nil {
		slog.Info("webhook: no local subscription for event, ignoring",
			"event_id", event.ID,
			"event_type", event.Type,
			"external_subscription_id", event.Data.SubscriptionID,
			"external_invoice_id", event.Data.InvoiceID,
		)
		return nil
	}

	switch event.Type {
	case model.WebhookPaymentSucceeded, model.WebhookSubActivated:
		sub.Status = model.SubActive
		if event.Data.Plan != "" {
			sub.Plan = event.Data.Plan
		}
		if event.Data.PeriodStart > 0 {
			sub.StartDate = time.Unix(event.Data.PeriodStart, 0).UTC()
		}
		if event.Data.PeriodEnd > 0 {
			sub.EndDate = time.Unix(event.Data.PeriodEnd, 0).UTC()
		} else {
			sub.EndDate = s.now().Add(defaultPeriod)
		}
		if event.Data.SubscriptionID != "" {
			sub.ExternalSubscriptionID = event.Data.SubscriptionID
		}
		if event.Data.InvoiceID != "" {
			sub.ExternalInvoiceID = event.Data.InvoiceID
		}

	case model.WebhookPaymentFailed, model.WebhookSubPastDue:
		sub.Status = model.SubPastDue

	case model.WebhookSubCancelled:
		sub.Status = model.SubCanceled
		sub.EndDate = s.now()

	default:
		slog.Info("webhook: unhandled event type ignored",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}

	sub.UpdatedAt = s.now()
	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription %q: %w", sub.ID, err)
	}

	slog.Info("webhook: subscription transition applied",
		"subscription_id", sub.ID,
		"event_type", event.Type,
		"status", sub.Status,
	)
	return nil
}

// resolve finds the local subscription for an event: external subscription id
// first, invoice id as the fallback, first match wins.
func (s *SubscriptionService) resolve(ctx context.Context, data model.WebhookEventData) (*model.Subscription, error) {
	if data.SubscriptionID != "" {
		sub, err := s.subs.SubscriptionByExternalID(ctx, data.SubscriptionID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if data.InvoiceID != "" {
		return s.subs.SubscriptionByInvoiceID(ctx, data.InvoiceID)
	}
	return nil, nil
}
