package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductFile is a purchase-bound digital asset. ObjectKey identifies the
// blob in the object store and must never appear in an API response; access
// goes exclusively through short-lived signed URLs.
type ProductFile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	ContentType string    `gorm:"column:content_type;not null"`
	ObjectKey   string    `gorm:"column:object_key;not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
