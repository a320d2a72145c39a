package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// WebhookEvent is the gateway's asynchronous verdict on a charge, matched to
// the payment by GatewayRef.
type WebhookEvent struct {
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"` // "success" or "failed"
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// SignPayload computes the hex HMAC-SHA256 signature the gateway sends in
// X-Gateway-Signature. Exposed so tests and the fake gateway can sign.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook body against its signature header in
// constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
