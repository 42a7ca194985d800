package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is catalog truth owned by an external admin surface. The core only
// ever reads it.
type Product struct {
	ID             uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string        `gorm:"column:name;not null"`
	Description    *string       `gorm:"column:description"`
	BasePriceCents int           `gorm:"column:base_price_cents;not null"`
	IsActive       bool          `gorm:"column:is_active;not null;default:true"`
	Materials      []Material    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Files          []ProductFile `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
