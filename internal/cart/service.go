package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/catalog"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

const maxLineQuantity = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart mutation and pricing operations.
type Service interface {
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	SnapshotForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*View, error)
}

type service struct {
	repo     Repository
	catalog  catalog.Repository
	tx       txRunner
	currency string
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, catalogRepo catalog.Repository, tx txRunner, currency string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &service{repo: repo, catalog: catalogRepo, tx: tx, currency: currency}, nil
}

// AddItemInput captures a new cart line request.
type AddItemInput struct {
	ProductID  uuid.UUID
	MaterialID *uuid.UUID
	Quantity   int
}

// AddItem appends a line or increments an existing one, then reprices the
// cart.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity <= 0 || input.Quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 100")
	}

	product, err := s.catalog.FindProductByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not available")
	}
	if input.MaterialID != nil {
		material := findMaterial(product, *input.MaterialID)
		if material == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "material does not belong to product")
		}
		if !material.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material is not available")
		}
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		cart, err := txRepo.FindOrCreateByUser(ctx, userID)
		if err != nil {
			return err
		}

		if existing, err := txRepo.FindLine(ctx, cart.ID, input.ProductID, input.MaterialID); err == nil {
			merged := existing.Quantity + input.Quantity
			if merged > maxLineQuantity {
				return overLineMaxError(merged)
			}
			return txRepo.UpdateItemQuantity(ctx, existing.ID, merged)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// A rival request can insert the same line right after the miss
		// above; the ON CONFLICT upsert folds both writers onto one merged
		// row instead of tripping the unique index.
		line, err := txRepo.UpsertLine(ctx, &models.CartItem{
			CartID:     cart.ID,
			ProductID:  input.ProductID,
			MaterialID: input.MaterialID,
			Quantity:   input.Quantity,
		})
		if err != nil {
			return err
		}
		if line.Quantity > maxLineQuantity {
			return overLineMaxError(line.Quantity)
		}
		return nil
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart item")
	}

	return s.Get(ctx, userID)
}

// overLineMaxError rejects a merge that would push a line past the cap. The
// surrounding transaction rolls back, so the line keeps its prior quantity.
func overLineMaxError(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "line quantity cannot exceed 100").
		WithDetails(map[string]any{"quantity": quantity})
}

// UpdateItem sets a line's quantity. Zero removes the line.
func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if quantity < 0 || quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 0 and 100")
	}

	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	item, err := s.repo.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	if quantity == 0 {
		if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
	} else if err := s.repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}

	return s.Get(ctx, userID)
}

// RemoveItem deletes a line from the user's cart.
func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	return s.UpdateItem(ctx, userID, itemID, 0)
}

// Get reprices the cart against live catalog data. Lines whose product or
// material has gone away are removed and reported as warnings so the client
// sees a cart that can actually be checked out.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &View{Currency: s.currency, Items: []LineView{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	priced, err := s.price(ctx, nil, cart)
	if err != nil {
		return nil, err
	}

	if len(priced.removed) > 0 {
		if err := s.repo.DeleteItems(ctx, priced.removed); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune cart items")
		}
	}

	return priced.view, nil
}

// SnapshotForCheckout prices the cart inside the caller's transaction and
// refuses to proceed if any line no longer resolves to purchasable catalog
// state. Checkout never self-heals; the buyer has to see what changed.
func (s *service) SnapshotForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*View, error) {
	txRepo := s.repo.WithTx(tx)

	cart, err := txRepo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is empty")
	}

	priced, err := s.price(ctx, tx, cart)
	if err != nil {
		return nil, err
	}
	if len(priced.view.Warnings) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart contains unavailable items").
			WithDetails(priced.view.Warnings)
	}

	return priced.view, nil
}

type pricedCart struct {
	view    *View
	removed []uuid.UUID
}

func (s *service) price(ctx context.Context, tx *gorm.DB, cart *models.Cart) (*pricedCart, error) {
	catalogRepo := s.catalog
	if tx != nil {
		catalogRepo = catalogRepo.WithTx(tx)
	}

	productIDs := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := catalogRepo.FindProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	view := &View{
		CartID:   cart.ID,
		Currency: s.currency,
		Items:    make([]LineView, 0, len(cart.Items)),
	}
	var removed []uuid.UUID

	for _, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			removed = append(removed, item.ID)
			view.Warnings = append(view.Warnings, Warning{
				ProductID: item.ProductID,
				Code:      enums.CartWarningProductUnavailable,
				Message:   "product is no longer available",
			})
			continue
		}

		unitPrice := product.BasePriceCents
		var materialName *string
		if item.MaterialID != nil {
			material := findMaterial(product, *item.MaterialID)
			if material == nil || !material.IsActive {
				removed = append(removed, item.ID)
				view.Warnings = append(view.Warnings, Warning{
					ProductID: item.ProductID,
					Code:      enums.CartWarningMaterialUnavailable,
					Message:   "selected material is no longer available",
				})
				continue
			}
			unitPrice += material.PriceCents
			name := material.Name
			materialName = &name
		}

		line := LineView{
			ItemID:         item.ID,
			ProductID:      product.ID,
			MaterialID:     item.MaterialID,
			ProductName:    product.Name,
			MaterialName:   materialName,
			UnitPriceCents: unitPrice,
			Quantity:       item.Quantity,
			LineTotalCents: unitPrice * item.Quantity,
		}
		view.Items = append(view.Items, line)
		view.TotalCents += line.LineTotalCents
	}

	return &pricedCart{view: view, removed: removed}, nil
}

func findMaterial(product *models.Product, materialID uuid.UUID) *models.Material {
	for i := range product.Materials {
		if product.Materials[i].ID == materialID {
			return &product.Materials[i]
		}
	}
	return nil
}
