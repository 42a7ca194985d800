package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
)

// AddressLoader resolves a saved address. Ownership is checked by the
// caller so a foreign address can be told apart from a missing one.
type AddressLoader interface {
	WithTx(tx *gorm.DB) AddressLoader
	FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

type addressRepository struct {
	db *gorm.DB
}

// NewAddressLoader builds an address reader bound to the provided DB.
func NewAddressLoader(db *gorm.DB) AddressLoader {
	return &addressRepository{db: db}
}

func (r *addressRepository) WithTx(tx *gorm.DB) AddressLoader {
	if tx == nil {
		return r
	}
	return &addressRepository{db: tx}
}

func (r *addressRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}
