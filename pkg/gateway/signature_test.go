package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyClientSignature(t *testing.T) {
	secret := "client-secret"
	sig := SignPayload(secret, []byte(ClientSignaturePayload("order_abc", "pay_xyz")))

	assert.True(t, VerifyClientSignature(secret, "order_abc", "pay_xyz", sig))
	assert.False(t, VerifyClientSignature(secret, "order_abc", "pay_other", sig))
	assert.False(t, VerifyClientSignature(secret, "order_other", "pay_xyz", sig))
	assert.False(t, VerifyClientSignature("wrong-secret", "order_abc", "pay_xyz", sig))
	assert.False(t, VerifyClientSignature(secret, "order_abc", "pay_xyz", ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := SignPayload(secret, body)

	assert.True(t, VerifyWebhookSignature(secret, body, sig))
	assert.False(t, VerifyWebhookSignature(secret, append(body, ' '), sig))
	assert.False(t, VerifyWebhookSignature("client-secret", body, sig))
	assert.False(t, VerifyWebhookSignature(secret, body, ""))
}

func TestClientAndWebhookSecretsAreNotInterchangeable(t *testing.T) {
	body := []byte(ClientSignaturePayload("order_abc", "pay_xyz"))
	clientSig := SignPayload("client-secret", body)

	assert.False(t, VerifyWebhookSignature("webhook-secret", body, clientSig))
}
