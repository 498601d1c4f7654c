package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

var webhookSecret = []byte("whsec_test")

func sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment.succeeded","data":{"subscription_id":"sub_1"}}`)

	event, err := VerifyWebhook(body, sign(body, webhookSecret), webhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_1" || event.Data.SubscriptionID != "sub_1" {
		t.Errorf("parsed event = %+v", event)
	}
}

func TestVerifyWebhook_AlgorithmPrefix(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	if _, err := VerifyWebhook(body, "sha256="+sign(body, webhookSecret), webhookSecret); err != nil {
		t.Fatalf("prefixed signature rejected: %v", err)
	}
}

func TestVerifyWebhook_TamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","amount":100}`)
	sig := sign(body, webhookSecret)

	// Flip a single byte after signing.
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = '1'

	_, err := VerifyWebhook(tampered, sig, webhookSecret)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyWebhook_WrongSecret(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	_, err := VerifyWebhook(body, sign(body, []byte("other")), webhookSecret)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyWebhook_MissingHeader(t *testing.T) {
	_, err := VerifyWebhook([]byte(`{}`), "", webhookSecret)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyWebhook_MalformedPayload(t *testing.T) {
	body := []byte(`{"id":"evt_1",`)

	_, err := VerifyWebhook(body, sign(body, webhookSecret), webhookSecret)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestVerifyWebhook_NoSecretConfigured(t *testing.T) {
	body := []byte(`{}`)

	_, err := VerifyWebhook(body, sign(body, webhookSecret), nil)
	if !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
