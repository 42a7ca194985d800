package payments

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/gateway"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  shipping_address TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  material_id TEXT,
  product_name TEXT NOT NULL,
  material_name TEXT,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS checkout_keys (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  user_id TEXT NOT NULL,
  "key" TEXT NOT NULL,
  order_id TEXT NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  order_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  gateway_order_id TEXT NOT NULL UNIQUE,
  gateway_payment_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type paymentsTestTxRunner struct {
	db *gorm.DB
}

func (r paymentsTestTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

type stubIntents struct {
	mu     sync.Mutex
	orders []gateway.CreateOrderParams
	nextID string
	err    error
}

func (s *stubIntents) CreateOrder(ctx context.Context, params gateway.CreateOrderParams) (*gateway.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.orders = append(s.orders, params)
	id := s.nextID
	if id == "" {
		id = "order_" + uuid.NewString()
	}
	return &gateway.Order{
		ID:          id,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Receipt:     params.Receipt,
		Status:      "created",
	}, nil
}

type stubNotifier struct {
	mu     sync.Mutex
	paid   int
	failed int
}

func (s *stubNotifier) OrderPaid(ctx context.Context, order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid++
}

func (s *stubNotifier) OrderFailed(ctx context.Context, order *models.Order, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

const (
	testClientSecret  = "client-secret"
	testWebhookSecret = "webhook-secret"
)

type paymentsTestEnv struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	orders   orders.Repository
	intents  *stubIntents
	notifier *stubNotifier
}

func newPaymentsTestEnv(t *testing.T) *paymentsTestEnv {
	t.Helper()

	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ordersRepo := orders.NewRepository(db)
	intents := &stubIntents{}
	notifier := &stubNotifier{}

	cfg := config.GatewayConfig{
		Name:          "razorpay",
		KeyID:         "rzp_test_key",
		ClientSecret:  testClientSecret,
		WebhookSecret: testWebhookSecret,
		Currency:      "INR",
	}

	svc, err := NewService(repo, ordersRepo, intents, paymentsTestTxRunner{db: db}, cfg, nil, notifier,
		logger.New(logger.Options{ServiceName: "payments-test"}))
	require.NoError(t, err)

	return &paymentsTestEnv{db: db, svc: svc, repo: repo, orders: ordersRepo, intents: intents, notifier: notifier}
}

func (e *paymentsTestEnv) seedOrder(t *testing.T, userID uuid.UUID, status enums.OrderStatus, total int) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     status,
		TotalCents: total,
		Currency:   "INR",
	}
	require.NoError(t, e.db.Create(order).Error)
	return order
}

func (e *paymentsTestEnv) createIntent(t *testing.T, userID uuid.UUID, orderID uuid.UUID) *Intent {
	t.Helper()

	intent, err := e.svc.CreateIntent(context.Background(), userID, orderID)
	require.NoError(t, err)
	return intent
}

func clientSignature(gatewayOrderID, gatewayPaymentID string) string {
	return gateway.SignPayload(testClientSecret, []byte(gateway.ClientSignaturePayload(gatewayOrderID, gatewayPaymentID)))
}

func TestCreateIntentRegistersGatewayOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 24000)

	intent := env.createIntent(t, userID, order.ID)
	require.NotNil(t, intent.Payment)
	assert.Equal(t, "rzp_test_key", intent.GatewayKeyID)
	assert.Equal(t, enums.PaymentStatusCreated, intent.Payment.Status)
	assert.Equal(t, 24000, intent.Payment.AmountCents)
	assert.NotEmpty(t, intent.Payment.GatewayOrderID)

	require.Len(t, env.intents.orders, 1)
	assert.Equal(t, 24000, env.intents.orders[0].AmountCents)
	assert.Equal(t, "INR", env.intents.orders[0].Currency)
	assert.Equal(t, order.ID.String(), env.intents.orders[0].Receipt)
}

func TestCreateIntentReturnsOpenIntent(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 5000)

	first := env.createIntent(t, userID, order.ID)
	second := env.createIntent(t, userID, order.ID)

	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Len(t, env.intents.orders, 1)
}

func TestCreateIntentRejectsSettledOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusPaid, 5000)

	_, err := env.svc.CreateIntent(context.Background(), userID, order.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCreateIntentForeignOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	order := env.seedOrder(t, uuid.New(), enums.OrderStatusCreated, 5000)

	_, err := env.svc.CreateIntent(context.Background(), uuid.New(), order.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestConfirmClientSettlesPaymentAndOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 12000)
	intent := env.createIntent(t, userID, order.ID)

	gatewayPaymentID := "pay_001"
	settled, err := env.svc.ConfirmClient(ctx, userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        clientSignature(intent.Payment.GatewayOrderID, gatewayPaymentID),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, settled.Status)
	require.NotNil(t, settled.GatewayPaymentID)
	assert.Equal(t, gatewayPaymentID, *settled.GatewayPaymentID)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)
}

func TestConfirmClientRejectsBadSignature(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 12000)
	intent := env.createIntent(t, userID, order.ID)

	_, err := env.svc.ConfirmClient(ctx, userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        "deadbeef",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())

	// A rejected signature changes nothing.
	current, err := env.repo.FindByID(ctx, intent.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCreated, current.Status)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, reloaded.Status)
}

func TestConfirmClientSignatureFromWebhookSecretRejected(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 12000)
	intent := env.createIntent(t, userID, order.ID)

	wrong := gateway.SignPayload(testWebhookSecret,
		[]byte(gateway.ClientSignaturePayload(intent.Payment.GatewayOrderID, "pay_001")))
	_, err := env.svc.ConfirmClient(context.Background(), userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        wrong,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestConfirmClientForeignOrderReadsAsMissing(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 12000)
	intent := env.createIntent(t, userID, order.ID)

	_, err := env.svc.ConfirmClient(context.Background(), uuid.New(), ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        clientSignature(intent.Payment.GatewayOrderID, "pay_001"),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestConfirmClientRepeatIsNoOp(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 12000)
	intent := env.createIntent(t, userID, order.ID)

	input := ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        clientSignature(intent.Payment.GatewayOrderID, "pay_001"),
	}

	_, err := env.svc.ConfirmClient(ctx, userID, input)
	require.NoError(t, err)

	// The retry lands on an already-paid payment and succeeds without a
	// second transition.
	settled, err := env.svc.ConfirmClient(ctx, userID, input)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, settled.Status)
}

func TestWebhookCapturedSettlesPayment(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	err := env.svc.HandleGatewayEvent(ctx, Event{
		ID:               "evt_1",
		Type:             enums.GatewayEventPaymentCaptured,
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_hook",
	})
	require.NoError(t, err)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
}

func TestWebhookCapturedAfterClientConfirmIsNoOp(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	_, err := env.svc.ConfirmClient(ctx, userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_first",
		Signature:        clientSignature(intent.Payment.GatewayOrderID, "pay_first"),
	})
	require.NoError(t, err)

	err = env.svc.HandleGatewayEvent(ctx, Event{
		ID:               "evt_dup",
		Type:             enums.GatewayEventPaymentCaptured,
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_second",
	})
	require.NoError(t, err)

	// The first confirmation's payment reference sticks.
	current, err := env.repo.FindByID(ctx, intent.Payment.ID)
	require.NoError(t, err)
	require.NotNil(t, current.GatewayPaymentID)
	assert.Equal(t, "pay_first", *current.GatewayPaymentID)
}

func TestWebhookFailureMarksPaymentAndOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	err := env.svc.HandleGatewayEvent(ctx, Event{
		ID:               "evt_fail",
		Type:             enums.GatewayEventPaymentFailed,
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_x",
		Reason:           "card declined",
	})
	require.NoError(t, err)

	current, err := env.repo.FindByID(ctx, intent.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, current.Status)
	require.NotNil(t, current.FailureReason)
	assert.Equal(t, "card declined", *current.FailureReason)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, reloaded.Status)
}

func TestWebhookFailureAfterCaptureIsDropped(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	_, err := env.svc.ConfirmClient(ctx, userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_ok",
		Signature:        clientSignature(intent.Payment.GatewayOrderID, "pay_ok"),
	})
	require.NoError(t, err)

	err = env.svc.HandleGatewayEvent(ctx, Event{
		ID:             "evt_late_fail",
		Type:           enums.GatewayEventPaymentFailed,
		GatewayOrderID: intent.Payment.GatewayOrderID,
		Reason:         "timeout",
	})
	require.NoError(t, err)

	current, err := env.repo.FindByID(ctx, intent.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, current.Status)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
}

func TestConfirmClientAfterFailureConflicts(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	err := env.svc.HandleGatewayEvent(ctx, Event{
		ID:             "evt_fail_first",
		Type:           enums.GatewayEventPaymentFailed,
		GatewayOrderID: intent.Payment.GatewayOrderID,
		Reason:         "insufficient funds",
	})
	require.NoError(t, err)

	_, err = env.svc.ConfirmClient(ctx, userID, ConfirmInput{
		GatewayOrderID:   intent.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_late",
		Signature:        clientSignature(intent.Payment.GatewayOrderID, "pay_late"),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order := env.seedOrder(t, userID, enums.OrderStatusCreated, 8000)
	intent := env.createIntent(t, userID, order.ID)

	err := env.svc.HandleGatewayEvent(ctx, Event{
		ID:             "evt_other",
		Type:           enums.GatewayEvent("payment.authorized"),
		GatewayOrderID: intent.Payment.GatewayOrderID,
	})
	require.NoError(t, err)

	current, err := env.repo.FindByID(ctx, intent.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCreated, current.Status)
}

func TestWebhookUnknownGatewayOrder(t *testing.T) {
	t.Parallel()

	env := newPaymentsTestEnv(t)

	err := env.svc.HandleGatewayEvent(context.Background(), Event{
		ID:             "evt_missing",
		Type:           enums.GatewayEventPaymentCaptured,
		GatewayOrderID: "order_unknown",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
