package models

import (
	"time"

	"github.com/google/uuid"
)

// FileAccessLog records every signed URL issued. Written asynchronously; a
// failed write never blocks the download.
type FileAccessLog struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	FileID    uuid.UUID `gorm:"column:file_id;type:uuid;not null"`
	IP        string    `gorm:"column:ip"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
