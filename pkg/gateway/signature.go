package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ClientSignaturePayload is the exact byte sequence the gateway signs when
// the browser completes a payment: gateway order ID and payment ID joined by
// a pipe.
func ClientSignaturePayload(gatewayOrderID, gatewayPaymentID string) string {
	return gatewayOrderID + "|" + gatewayPaymentID
}

// VerifyClientSignature checks the HMAC the browser relays after payment.
// The comparison is constant time.
func VerifyClientSignature(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := signHex(secret, []byte(ClientSignaturePayload(gatewayOrderID, gatewayPaymentID)))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the HMAC over the raw webhook body. The
// webhook secret is distinct from the client secret.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := signHex(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignPayload produces the hex HMAC for a payload. Exposed for tests and
// local tooling that simulate gateway callbacks.
func SignPayload(secret string, payload []byte) string {
	return signHex(secret, payload)
}

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
