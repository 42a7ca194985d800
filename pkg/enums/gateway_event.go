package enums

// GatewayEvent names the webhook callback events the coordinator understands.
// Anything else is acknowledged and ignored.
type GatewayEvent string

const (
	GatewayEventPaymentCaptured GatewayEvent = "payment.captured"
	GatewayEventPaymentFailed   GatewayEvent = "payment.failed"
)
