package enums

// CartWarningType labels why an item was pruned during a cart read.
type CartWarningType string

const (
	CartWarningProductUnavailable  CartWarningType = "product_unavailable"
	CartWarningMaterialUnavailable CartWarningType = "material_unavailable"
)
