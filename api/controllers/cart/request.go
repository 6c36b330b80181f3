package cart

import "github.com/google/uuid"

// ItemRequest carries a product/quantity pair for add and update calls. A
// fractional quantity fails JSON decoding before validation runs.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}
