package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/notifications"
	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/gateway"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
)

const (
	sourceClient  = "client"
	sourceWebhook = "webhook"

	notifyTimeout = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the payment lifecycle: intent creation, client
// confirmation, and webhook settlement.
type Service interface {
	CreateIntent(ctx context.Context, userID, orderID uuid.UUID) (*Intent, error)
	ConfirmClient(ctx context.Context, userID uuid.UUID, input ConfirmInput) (*models.Payment, error)
	HandleGatewayEvent(ctx context.Context, event Event) error
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	intents    gateway.Intents
	tx         txRunner
	cfg        config.GatewayConfig
	metrics    *metrics.OrderMetrics
	notifier   notifications.Notifier
	logg       *logger.Logger
}

// NewService builds a payments service backed by the provided stack.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	intents gateway.Intents,
	tx txRunner,
	cfg config.GatewayConfig,
	orderMetrics *metrics.OrderMetrics,
	notifier notifications.Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if intents == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		ordersRepo: ordersRepo,
		intents:    intents,
		tx:         tx,
		cfg:        cfg,
		metrics:    orderMetrics,
		notifier:   notifier,
		logg:       logg,
	}, nil
}

// Intent is what the client needs to open the gateway's payment sheet.
type Intent struct {
	Payment      *models.Payment `json:"payment"`
	GatewayKeyID string          `json:"gateway_key_id"`
}

// ConfirmInput is the browser-relayed confirmation after the gateway
// collects the payment.
type ConfirmInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// CreateIntent registers a gateway order for a pending checkout. Repeat
// calls return the open intent instead of creating another one.
func (s *service) CreateIntent(ctx context.Context, userID, orderID uuid.UUID) (*Intent, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}

	order, err := s.ordersRepo.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusCreated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}

	if existing, err := s.repo.FindOpenByOrder(ctx, orderID); err == nil {
		return &Intent{Payment: existing, GatewayKeyID: s.cfg.KeyID}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	gatewayOrder, err := s.intents.CreateOrder(ctx, gateway.CreateOrderParams{
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Receipt:     order.ID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
	}

	payment, err := s.repo.Create(ctx, &models.Payment{
		OrderID:        order.ID,
		GatewayOrderID: gatewayOrder.ID,
		AmountCents:    order.TotalCents,
		Currency:       order.Currency,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}

	return &Intent{Payment: payment, GatewayKeyID: s.cfg.KeyID}, nil
}

// ConfirmClient settles a payment from the browser's post-payment handshake.
// The HMAC check runs before any state is touched; a bad signature changes
// nothing.
func (s *service) ConfirmClient(ctx context.Context, userID uuid.UUID, input ConfirmInput) (*models.Payment, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.GatewayOrderID) == "" || strings.TrimSpace(input.GatewayPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id and payment id are required")
	}

	if !gateway.VerifyClientSignature(s.cfg.ClientSecret, input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if _, err := s.ordersRepo.FindByIDAndUser(ctx, payment.OrderID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if err := s.markPaid(ctx, payment, input.GatewayPaymentID, sourceClient); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, payment.ID)
}

// HandleGatewayEvent settles a payment from a verified webhook delivery.
// Unknown event types are acknowledged without effect.
func (s *service) HandleGatewayEvent(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.GatewayOrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, event.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	switch event.Type {
	case enums.GatewayEventPaymentCaptured:
		return s.markPaid(ctx, payment, event.GatewayPaymentID, sourceWebhook)
	case enums.GatewayEventPaymentFailed:
		return s.markFailed(ctx, payment, event, sourceWebhook)
	default:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "ignoring unhandled gateway event")
		return nil
	}
}

// markPaid flips payment and order to paid in one transaction. Whichever
// confirmation path lands first wins; the loser sees zero affected rows and
// resolves against the stored status.
func (s *service) markPaid(ctx context.Context, payment *models.Payment, gatewayPaymentID, source string) error {
	var settled *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).TransitionToPaid(ctx, payment.ID, gatewayPaymentID)
		if err != nil {
			return err
		}
		if rows == 0 {
			current, err := s.repo.WithTx(tx).FindByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			if current.Status == enums.PaymentStatusPaid {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed")
		}

		txOrders := s.ordersRepo.WithTx(tx)
		orderRows, err := txOrders.MarkPaid(ctx, payment.OrderID, time.Now().UTC())
		if err != nil {
			return err
		}
		if orderRows == 0 {
			order, err := txOrders.FindByID(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			if order.Status != enums.OrderStatusPaid {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not payable")
			}
			return nil
		}

		settled, err = txOrders.FindByID(ctx, payment.OrderID)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
	}

	s.metrics.IncPaymentTransition(string(enums.PaymentStatusPaid), source)

	if settled != nil {
		go func(order models.Order) {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			s.notifier.OrderPaid(nctx, &order)
		}(*settled)
	}
	return nil
}

// markFailed records a terminal failure. A failure arriving after a
// successful capture is logged and dropped so webhook retries stay cheap.
func (s *service) markFailed(ctx context.Context, payment *models.Payment, event Event, source string) error {
	var failed *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var gatewayPaymentID *string
		if event.GatewayPaymentID != "" {
			gatewayPaymentID = &event.GatewayPaymentID
		}
		var reason *string
		if event.Reason != "" {
			reason = &event.Reason
		}

		rows, err := s.repo.WithTx(tx).TransitionToFailed(ctx, payment.ID, gatewayPaymentID, reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			current, err := s.repo.WithTx(tx).FindByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			if current.Status == enums.PaymentStatusPaid {
				s.logg.Warn(s.logg.WithField(ctx, "payment_id", payment.ID.String()),
					"failure event for settled payment dropped")
			}
			return nil
		}

		txOrders := s.ordersRepo.WithTx(tx)
		if _, err := txOrders.MarkFailed(ctx, payment.OrderID); err != nil {
			return err
		}

		failed, err = txOrders.FindByID(ctx, payment.OrderID)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
	}

	s.metrics.IncPaymentTransition(string(enums.PaymentStatusFailed), source)

	if failed != nil {
		go func(order models.Order, reason string) {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			s.notifier.OrderFailed(nctx, &order, reason)
		}(*failed, event.Reason)
	}
	return nil
}
