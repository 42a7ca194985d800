package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/cart"
	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
	"github.com/atelierworks/atelier-backend/pkg/types"
)

const maxIdempotencyKeyLen = 255

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartSnapshotter interface {
	SnapshotForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*cart.View, error)
}

// Service converts a cart into an order exactly once per idempotency key.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input ExecuteInput) (*Result, error)
}

type service struct {
	ordersRepo orders.Repository
	cartRepo   cart.Repository
	cartSvc    cartSnapshotter
	addresses  AddressLoader
	tx         txRunner
	metrics    *metrics.OrderMetrics
	currency   string
}

// NewService builds a checkout service backed by the provided stack.
func NewService(
	ordersRepo orders.Repository,
	cartRepo cart.Repository,
	cartSvc cartSnapshotter,
	addresses AddressLoader,
	tx txRunner,
	orderMetrics *metrics.OrderMetrics,
	currency string,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if cartSvc == nil {
		return nil, fmt.Errorf("cart snapshotter required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address loader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &service{
		ordersRepo: ordersRepo,
		cartRepo:   cartRepo,
		cartSvc:    cartSvc,
		addresses:  addresses,
		tx:         tx,
		metrics:    orderMetrics,
		currency:   currency,
	}, nil
}

// ExecuteInput carries the checkout request.
type ExecuteInput struct {
	IdempotencyKey string
	AddressID      uuid.UUID
}

// Result is the placed (or replayed) order.
type Result struct {
	Order  *models.Order
	Reused bool
}

// errKeyRaced signals that another request with the same key committed first.
var errKeyRaced = errors.New("checkout key already claimed")

// Execute snapshots the cart into an immutable order inside one transaction.
// The unique insert on the checkout key is the idempotency gate: the first
// commit wins, every retry and every losing racer reads the winner's order
// back.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, input ExecuteInput) (*Result, error) {
	started := time.Now()

	key := strings.TrimSpace(input.IdempotencyKey)
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}

	if existing, err := s.findExisting(ctx, userID, key); err != nil {
		return nil, err
	} else if existing != nil {
		s.observe("reused", started)
		return &Result{Order: existing, Reused: true}, nil
	}

	address, err := s.addresses.FindByID(ctx, input.AddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	if address.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "address belongs to another user")
	}

	var placed *models.Order
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		snapshot, err := s.cartSvc.SnapshotForCheckout(ctx, tx, userID)
		if err != nil {
			return err
		}

		txOrders := s.ordersRepo.WithTx(tx)
		// No taxes or shipping are charged yet, so subtotal and total
		// coincide.
		order, err := txOrders.Create(ctx, &models.Order{
			UserID:          userID,
			SubtotalCents:   snapshot.TotalCents,
			TotalCents:      snapshot.TotalCents,
			Currency:        s.currency,
			ShippingAddress: snapshotAddress(address),
		})
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(snapshot.Items))
		for _, line := range snapshot.Items {
			items = append(items, models.OrderItem{
				OrderID:        order.ID,
				ProductID:      line.ProductID,
				MaterialID:     line.MaterialID,
				ProductName:    line.ProductName,
				MaterialName:   line.MaterialName,
				UnitPriceCents: line.UnitPriceCents,
				Quantity:       line.Quantity,
				LineTotalCents: line.LineTotalCents,
			})
		}
		if err := txOrders.CreateItems(ctx, items); err != nil {
			return err
		}

		if err := txOrders.CreateCheckoutKey(ctx, &models.CheckoutKey{
			UserID:  userID,
			Key:     key,
			OrderID: order.ID,
		}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || pkgerrors.IsUniqueViolation(err, "") {
				return errKeyRaced
			}
			return err
		}

		if err := s.cartRepo.WithTx(tx).DeleteItemsByCart(ctx, snapshot.CartID); err != nil {
			return err
		}

		placed, err = txOrders.FindByID(ctx, order.ID)
		return err
	})

	if txErr != nil {
		if errors.Is(txErr, errKeyRaced) {
			winner, err := s.findExisting(ctx, userID, key)
			if err != nil {
				return nil, err
			}
			if winner == nil {
				return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout key claimed but order missing")
			}
			s.observe("reused", started)
			return &Result{Order: winner, Reused: true}, nil
		}
		if pkgerrors.As(txErr) != nil {
			s.observe("rejected", started)
			return nil, txErr
		}
		s.observe("error", started)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "execute checkout")
	}

	s.observe("placed", started)
	return &Result{Order: placed}, nil
}

func (s *service) findExisting(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	record, err := s.ordersRepo.FindCheckoutKey(ctx, userID, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout key")
	}

	order, err := s.ordersRepo.FindByID(ctx, record.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load replayed order")
	}
	return order, nil
}

func (s *service) observe(outcome string, started time.Time) {
	s.metrics.ObserveCheckout(outcome, time.Since(started))
}

func snapshotAddress(address *models.Address) types.AddressSnapshot {
	snapshot := types.AddressSnapshot{
		Recipient:  address.Recipient,
		Line1:      address.Line1,
		City:       address.City,
		Region:     address.Region,
		PostalCode: address.PostalCode,
		Country:    address.Country,
	}
	if address.Phone != nil {
		phone := *address.Phone
		snapshot.Phone = &phone
	}
	if address.Line2 != nil {
		line2 := *address.Line2
		snapshot.Line2 = &line2
	}
	return snapshot
}
