package cart

import (
	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// LineView is a priced cart line. Unit price is recomputed from the catalog
// on every read.
type LineView struct {
	ItemID         uuid.UUID  `json:"item_id"`
	ProductID      uuid.UUID  `json:"product_id"`
	MaterialID     *uuid.UUID `json:"material_id,omitempty"`
	ProductName    string     `json:"product_name"`
	MaterialName   *string    `json:"material_name,omitempty"`
	UnitPriceCents int        `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int        `json:"line_total_cents"`
}

// Warning reports a line the revalidation pass removed from the cart.
type Warning struct {
	ProductID uuid.UUID             `json:"product_id"`
	Code      enums.CartWarningType `json:"code"`
	Message   string                `json:"message"`
}

// View is the fully priced cart returned to clients.
type View struct {
	CartID     uuid.UUID  `json:"cart_id"`
	Items      []LineView `json:"items"`
	TotalCents int        `json:"total_cents"`
	Currency   string     `json:"currency"`
	Warnings   []Warning  `json:"warnings,omitempty"`
}
