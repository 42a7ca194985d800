package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/catalog"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  name TEXT NOT NULL,
  description TEXT,
  base_price_cents INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS materials (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  material_id TEXT,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_line ON cart_items(cart_id, product_id, material_id);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type cartTestTxRunner struct {
	db *gorm.DB
}

func (r cartTestTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func newCartTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db), catalog.NewRepository(db), cartTestTxRunner{db: db}, "INR")
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, name string, basePrice int, active bool) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:             uuid.New(),
		Name:           name,
		BasePriceCents: basePrice,
		IsActive:       true,
	}
	require.NoError(t, db.Create(product).Error)
	if !active {
		require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", false).Error)
		product.IsActive = false
	}
	return product
}

func seedMaterial(t *testing.T, db *gorm.DB, productID uuid.UUID, name string, delta int, active bool) *models.Material {
	t.Helper()

	material := &models.Material{
		ID:         uuid.New(),
		ProductID:  productID,
		Name:       name,
		PriceCents: delta,
		IsActive:   true,
	}
	require.NoError(t, db.Create(material).Error)
	if !active {
		require.NoError(t, db.Model(&models.Material{}).Where("id = ?", material.ID).Update("is_active", false).Error)
		material.IsActive = false
	}
	return material
}

func TestAddItemPricesBasePlusMaterial(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Model Kit", 10000, true)
	material := seedMaterial(t, db, product.ID, "Walnut", 2000, true)

	view, err := svc.AddItem(context.Background(), userID, AddItemInput{
		ProductID:  product.ID,
		MaterialID: &material.ID,
		Quantity:   2,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	line := view.Items[0]
	assert.Equal(t, 12000, line.UnitPriceCents)
	assert.Equal(t, 24000, line.LineTotalCents)
	assert.Equal(t, 24000, view.TotalCents)
	assert.Equal(t, "INR", view.Currency)
	require.NotNil(t, line.MaterialName)
	assert.Equal(t, "Walnut", *line.MaterialName)
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Desk Organizer", 5000, true)

	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)

	view, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)

	// A merge that would push the line past the per-line maximum is
	// rejected and the line keeps its prior quantity.
	_, err = svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 100})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	view, err = svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
}

// rivalLineRepo plants a duplicate cart line through another writer the
// moment a lookup misses, recreating two requests racing to add the same
// line to one cart.
type rivalLineRepo struct {
	Repository
	once *sync.Once
}

func (r rivalLineRepo) WithTx(tx *gorm.DB) Repository {
	return rivalLineRepo{Repository: r.Repository.WithTx(tx), once: r.once}
}

func (r rivalLineRepo) FindLine(ctx context.Context, cartID, productID uuid.UUID, materialID *uuid.UUID) (*models.CartItem, error) {
	line, err := r.Repository.FindLine(ctx, cartID, productID, materialID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.once.Do(func() {
			_, _ = r.Repository.UpsertLine(ctx, &models.CartItem{
				ID:         uuid.New(),
				CartID:     cartID,
				ProductID:  productID,
				MaterialID: materialID,
				Quantity:   1,
			})
		})
	}
	return line, err
}

func TestAddItemMergesLineInsertedByRival(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	repo := rivalLineRepo{Repository: NewRepository(db), once: &sync.Once{}}
	svc, err := NewService(repo, catalog.NewRepository(db), cartTestTxRunner{db: db}, "INR")
	require.NoError(t, err)
	userID := uuid.New()

	product := seedProduct(t, db, "Plant Stand", 7000, true)
	material := seedMaterial(t, db, product.ID, "Teak", 1500, true)

	// The rival lands its insert between our miss and our write. Both
	// requests must fold onto one line instead of failing on the unique
	// index.
	view, err := svc.AddItem(context.Background(), userID, AddItemInput{
		ProductID:  product.ID,
		MaterialID: &material.ID,
		Quantity:   1,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", view.CartID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)

	product := seedProduct(t, db, "Retired Lamp", 8000, false)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: product.ID, Quantity: 1})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestAddItemRejectsRetiredMaterial(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)

	product := seedProduct(t, db, "Picture Frame", 3500, true)
	material := seedMaterial(t, db, product.ID, "Ebony", 900, false)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{
		ProductID:  product.ID,
		MaterialID: &material.ID,
		Quantity:   1,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestAddItemRejectsForeignMaterial(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)

	product := seedProduct(t, db, "Bookend", 4000, true)
	other := seedProduct(t, db, "Trivet", 3000, true)
	foreign := seedMaterial(t, db, other.ID, "Brass", 500, true)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{
		ProductID:  product.ID,
		MaterialID: &foreign.ID,
		Quantity:   1,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestUpdateItemZeroQuantityRemovesLine(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Coaster Set", 2500, true)

	view, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	view, err = svc.UpdateItem(context.Background(), userID, view.Items[0].ItemID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.TotalCents)
}

func TestUpdateItemUnknownLine(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Pen Tray", 1500, true)
	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.UpdateItem(context.Background(), userID, uuid.New(), 3)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetEmptyCartForUnknownUser(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)

	view, err := svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.TotalCents)
	assert.Equal(t, "INR", view.Currency)
}

func TestGetPrunesUnavailableLines(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	keeper := seedProduct(t, db, "Shelf Bracket", 3000, true)
	doomed := seedProduct(t, db, "Limited Vase", 9000, true)

	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: keeper.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), userID, AddItemInput{ProductID: doomed.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", doomed.ID).Update("is_active", false).Error)

	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, keeper.ID, view.Items[0].ProductID)
	require.Len(t, view.Warnings, 1)
	assert.Equal(t, doomed.ID, view.Warnings[0].ProductID)
	assert.Equal(t, enums.CartWarningProductUnavailable, view.Warnings[0].Code)

	// The pruned line is gone from storage, not just the view.
	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("product_id = ?", doomed.ID).Count(&count).Error)
	assert.Zero(t, count)

	// A second read reports a clean cart with no warnings.
	view, err = svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Empty(t, view.Warnings)
}

func TestGetPrunesLineWithRetiredMaterial(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Serving Board", 6000, true)
	material := seedMaterial(t, db, product.ID, "Oak", 1000, true)

	_, err := svc.AddItem(context.Background(), userID, AddItemInput{
		ProductID:  product.ID,
		MaterialID: &material.ID,
		Quantity:   1,
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Material{}).Where("id = ?", material.ID).Update("is_active", false).Error)

	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	require.Len(t, view.Warnings, 1)
	assert.Equal(t, enums.CartWarningMaterialUnavailable, view.Warnings[0].Code)
}

func TestSnapshotForCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)

	_, err := svc.SnapshotForCheckout(context.Background(), db, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestSnapshotForCheckoutRejectsUnavailableLines(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Wall Hook", 2000, true)
	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", false).Error)

	_, err = svc.SnapshotForCheckout(context.Background(), db, userID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.NotNil(t, typed.Details())

	// Checkout never mutates the cart; the stale line is still there for the
	// buyer to review.
	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("product_id = ?", product.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSnapshotForCheckoutPricesCart(t *testing.T) {
	t.Parallel()

	db := setupCartTestDB(t)
	svc := newCartTestService(t, db)
	userID := uuid.New()

	product := seedProduct(t, db, "Side Table", 15000, true)
	material := seedMaterial(t, db, product.ID, "Ash", 2500, true)

	_, err := svc.AddItem(context.Background(), userID, AddItemInput{
		ProductID:  product.ID,
		MaterialID: &material.ID,
		Quantity:   2,
	})
	require.NoError(t, err)

	view, err := svc.SnapshotForCheckout(context.Background(), db, userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 17500, view.Items[0].UnitPriceCents)
	assert.Equal(t, 35000, view.TotalCents)
}
