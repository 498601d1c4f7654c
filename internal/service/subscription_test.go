package service

import (
	"context"
	"testing"
	"time"

	"fable/internal/model"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newSubFixture() (*SubscriptionService, *fakeSubStore) {
	store := &fakeSubStore{
		subs: []*model.Subscription{{
			ID:                     "local_1",
			AccountID:              "acc1",
			Plan:                   "free",
			Status:                 model.SubActive,
			ExternalSubscriptionID: "sub_ext",
			ExternalInvoiceID:      "in_ext",
		}},
	}
	svc := NewSubscriptionService(store, &fakeDeduper{}, webhookSecret)
	svc.now = func() time.Time { return testNow }
	return svc, store
}

func activatedEvent(periodEnd int64) *model.WebhookEvent {
	return &model.WebhookEvent{
		ID:   "evt_act",
		Type: model.WebhookSubActivated,
		Data: model.WebhookEventData{
			SubscriptionID: "sub_ext",
			Plan:           "premium",
			PeriodStart:    testNow.Add(-time.Hour).Unix(),
			PeriodEnd:      periodEnd,
		},
	}
}

func TestApply_Activated(t *testing.T) {
	svc, store := newSubFixture()
	end := testNow.Add(14 * 24 * time.Hour).Unix()

	if err := svc.Apply(context.Background(), activatedEvent(end)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected one write, got %d", len(store.updated))
	}

	got := store.updated[0]
	if got.Status != model.SubActive || got.Plan != "premium" {
		t.Errorf("got status=%q plan=%q", got.Status, got.Plan)
	}
	if !got.EndDate.Equal(time.Unix(end, 0).UTC()) {
		t.Errorf("end date = %v, want event period end", got.EndDate)
	}
}

func TestApply_ActivatedDefaultsPeriodEnd(t *testing.T) {
	svc, store := newSubFixture()

	if err := svc.Apply(context.Background(), activatedEvent(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := testNow.Add(30 * 24 * time.Hour)
	if !store.updated[0].EndDate.Equal(want) {
		t.Errorf("end date = %v, want now+30d", store.updated[0].EndDate)
	}
}

func TestApply_Idempotent(t *testing.T) {
	svc, store := newSubFixture()
	ctx := context.Background()
	end := testNow.Add(14 * 24 * time.Hour).Unix()

	if err := svc.Apply(ctx, activatedEvent(end)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := svc.Apply(ctx, activatedEvent(end)); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	first, second := store.updated[0], store.updated[1]
	if *first != *second {
		t.Errorf("re-applied event diverged:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestApply_PaymentFailed(t *testing.T) {
	svc, store := newSubFixture()

	err := svc.Apply(context.Background(), &model.WebhookEvent{
		Type: model.WebhookPaymentFailed,
		Data: model.WebhookEventData{SubscriptionID: "sub_ext"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := store.updated[0]
	if got.Status != model.SubPastDue {
		t.Errorf("status = %q, want past_due", got.Status)
	}
	// Fields not named by the transition are preserved.
	if got.Plan != "free" || got.AccountID != "acc1" {
		t.Errorf("unrelated fields changed: %+v", got)
	}
}

func TestApply_Cancelled(t *testing.T) {
	svc, store := newSubFixture()

	err := svc.Apply(context.Background(), &model.WebhookEvent{
		Type: model.WebhookSubCancelled,
		Data: model.WebhookEventData{SubscriptionID: "sub_ext"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := store.updated[0]
	if got.Status != model.SubCanceled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if !got.EndDate.Equal(testNow) {
		t.Errorf("end date = %v, want now", got.EndDate)
	}
}

func TestApply_InvoiceIDFallback(t *testing.T) {
	svc, store := newSubFixture()

	err := svc.Apply(context.Background(), &model.WebhookEvent{
		Type: model.WebhookPaymentSucceeded,
		Data: model.WebhookEventData{SubscriptionID: "sub_unknown", InvoiceID: "in_ext"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.updated) != 1 || store.updated[0].ID != "local_1" {
		t.Errorf("expected invoice-id fallback to hit local_1, got %+v", store.updated)
	}
}

func TestApply_UnmatchedSubscriptionIsNoop(t *testing.T) {
	svc, store := newSubFixture()

	err := svc.Apply(context.Background(), &model.WebhookEvent{
		Type: model.WebhookPaymentSucceeded,
		Data: model.WebhookEventData{SubscriptionID: "sub_unknown", InvoiceID: "in_unknown"},
	})
	if err != nil {
		t.Fatalf("unmatched subscription must not error, got %v", err)
	}
	if len(store.updated) != 0 {
		t.Errorf("no write expected, got %d", len(store.updated))
	}
}

func TestHandleWebhook_DuplicateDeliverySkipped(t *testing.T) {
	svc, store := newSubFixture()
	ctx := context.Background()

	body := []byte(`{"id":"evt_dup","type":"payment.failed","data":{"subscription_id":"sub_ext"}}`)
	sig := sign(body, webhookSecret)

	if err := svc.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(store.updated) != 1 {
		t.Errorf("duplicate delivery applied, writes = %d", len(store.updated))
	}
}

func TestHandleWebhook_DedupOutageStillProcesses(t *testing.T) {
	svc, store := newSubFixture()
	svc.dedup = &fakeDeduper{err: context.DeadlineExceeded}

	body := []byte(`{"id":"evt_x","type":"payment.failed","data":{"subscription_id":"sub_ext"}}`)
	if err := svc.HandleWebhook(context.Background(), body, sign(body, webhookSecret)); err != nil {
		t.Fatalf("dedup outage must not fail the delivery: %v", err)
	}
	if len(store.updated) != 1 {
		t.Errorf("event not applied during dedup outage")
	}
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	svc, store := newSubFixture()

	body := []byte(`{"id":"evt_y","type":"payment.failed","data":{"subscription_id":"sub_ext"}}`)
	err := svc.HandleWebhook(context.Background(), body, sign([]byte("other body"), webhookSecret))
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if len(store.updated) != 0 {
		t.Error("unverified event must not reach the state machine")
	}
}
