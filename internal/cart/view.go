package cart

import (
	"github.com/shopspring/decimal"

	"github.com/mgalindo/storefront-backend/pkg/db/models"
)

// PricedItem joins one cart line item with its current catalog snapshot.
type PricedItem struct {
	Product  models.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// PricedView is the read projection of a cart with current prices joined in.
// It is recomputed on every read and never persisted; items whose backing
// product has disappeared are dropped.
type PricedView struct {
	Items     []PricedItem    `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

func emptyView() *PricedView {
	return &PricedView{
		Items:     []PricedItem{},
		Subtotal:  decimal.Zero,
		ItemCount: 0,
	}
}
