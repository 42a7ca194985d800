package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Repository persists payment rows and their guarded transitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	TransitionToPaid(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string) (int64, error)
	TransitionToFailed(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID, reason *string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusCreated).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// TransitionToPaid flips a created payment to paid. The status guard in the
// WHERE clause is the race arbiter; the affected row count tells the caller
// whether it won.
func (r *repository) TransitionToPaid(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusCreated).
		Updates(map[string]any{
			"status":             enums.PaymentStatusPaid,
			"gateway_payment_id": gatewayPaymentID,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) TransitionToFailed(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID, reason *string) (int64, error) {
	updates := map[string]any{"status": enums.PaymentStatusFailed}
	if gatewayPaymentID != nil {
		updates["gateway_payment_id"] = *gatewayPaymentID
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusCreated).
		Updates(updates)
	return result.RowsAffected, result.Error
}
