package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
	"github.com/atelierworks/atelier-backend/pkg/types"
)

// Order is an immutable commercial record created at checkout. Line items
// and the shipping address are snapshots; later catalog or address edits
// never touch a placed order. Only Status and PaidAt change after insert.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus     `gorm:"column:status;not null;default:created"`
	SubtotalCents   int                   `gorm:"column:subtotal_cents;not null"`
	TotalCents      int                   `gorm:"column:total_cents;not null"`
	Currency        string                `gorm:"column:currency;not null"`
	ShippingAddress types.AddressSnapshot `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
