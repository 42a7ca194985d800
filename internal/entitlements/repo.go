package entitlements

import (
	"context"

	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
)

// AuditLog records issued download grants.
type AuditLog interface {
	Record(ctx context.Context, entry *models.FileAccessLog) error
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditLog builds the audit writer bound to the provided DB.
func NewAuditLog(db *gorm.DB) AuditLog {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, entry *models.FileAccessLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
