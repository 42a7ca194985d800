package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
)

// Repository is the read-only catalog surface. Carts and checkouts consult
// it for live prices; entitlements consult it for file metadata.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindFileByID(ctx context.Context, id uuid.UUID) (*models.ProductFile, error)
	FindFilesByProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductFile, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Materials").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Materials").
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) FindFileByID(ctx context.Context, id uuid.UUID) (*models.ProductFile, error) {
	var file models.ProductFile
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *repository) FindFilesByProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductFile, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var files []models.ProductFile
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("created_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}
