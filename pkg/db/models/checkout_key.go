package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutKey maps an idempotency key to the order it produced. The unique
// index on (user_id, key) is the whole mechanism: the first insert wins and
// every retry reads the winner's order back.
type CheckoutKey struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_checkout_keys_user_key"`
	Key       string    `gorm:"column:key;not null;uniqueIndex:idx_checkout_keys_user_key"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
