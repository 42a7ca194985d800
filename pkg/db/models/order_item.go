package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the product, material, and unit price as they stood at
// checkout. ProductID and MaterialID are kept for entitlement lookups but the
// displayed names and prices come from the snapshot columns.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	MaterialID     *uuid.UUID `gorm:"column:material_id;type:uuid"`
	ProductName    string     `gorm:"column:product_name;not null"`
	MaterialName   *string    `gorm:"column:material_name"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	LineTotalCents int        `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
