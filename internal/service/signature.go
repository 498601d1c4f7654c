package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"fable/internal/model"
)

// VerifyWebhook authenticates a billing-provider delivery and parses it.
//
// The digest is computed over the exact raw body bytes. Parsing first and
// re-serializing would break matching for providers that canonicalize
// whitespace or key order differently than encoding/json.
func VerifyWebhook(rawBody []byte, signatureHeader string, secret []byte) (*model.WebhookEvent, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if signatureHeader == "" {
		return nil, ErrUnauthenticated
	}

	// Providers commonly prefix the hex digest with the algorithm name.
	provided := strings.TrimPrefix(signatureHeader, "sha256=")

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return nil, ErrBadSignature
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		// Authenticated but unparseable is still the sender's fault.
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &event, nil
}
