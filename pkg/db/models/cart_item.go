package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem references the catalog by ID only; no price is stored here, so a
// stale cart can never freeze a price before checkout.
type CartItem struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID     uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_line"`
	ProductID  uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_line"`
	MaterialID *uuid.UUID `gorm:"column:material_id;type:uuid;uniqueIndex:idx_cart_items_line"`
	Quantity   int        `gorm:"column:quantity;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
