package payments

import "github.com/atelierworks/atelier-backend/pkg/enums"

// Event is a gateway webhook delivery after signature verification. ID is
// the gateway's delivery identifier and drives replay protection upstream.
type Event struct {
	ID               string
	Type             enums.GatewayEvent
	GatewayOrderID   string
	GatewayPaymentID string
	Reason           string
}
