package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Payment tracks a single gateway intent for an order. GatewayOrderID is the
// correlation key for both client confirmations and webhooks, so it carries a
// unique index.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Status           enums.PaymentStatus `gorm:"column:status;not null;default:created"`
	GatewayOrderID   string              `gorm:"column:gateway_order_id;not null;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	AmountCents      int                 `gorm:"column:amount_cents;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
