package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mgalindo/storefront-backend/pkg/config"
)

// Pricer applies the storefront pricing rules to a cart subtotal. All
// amounts are rounded to two decimal places.
type Pricer struct {
	freeShippingOver decimal.Decimal
	shippingFlatFee  decimal.Decimal
	taxRate          decimal.Decimal
}

// NewPricer parses the configured pricing thresholds.
func NewPricer(cfg config.CheckoutConfig) (*Pricer, error) {
	freeOver, err := decimal.NewFromString(cfg.FreeShippingOver)
	if err != nil {
		return nil, fmt.Errorf("parsing free shipping threshold %q: %w", cfg.FreeShippingOver, err)
	}
	flatFee, err := decimal.NewFromString(cfg.ShippingFlatFee)
	if err != nil {
		return nil, fmt.Errorf("parsing shipping flat fee %q: %w", cfg.ShippingFlatFee, err)
	}
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parsing tax rate %q: %w", cfg.TaxRate, err)
	}
	return &Pricer{
		freeShippingOver: freeOver,
		shippingFlatFee:  flatFee,
		taxRate:          taxRate,
	}, nil
}

// Totals is the priced breakdown of an order.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Price computes shipping, tax and total for the given subtotal. Shipping is
// waived only when the subtotal strictly exceeds the free shipping threshold.
func (p *Pricer) Price(subtotal decimal.Decimal) Totals {
	subtotal = subtotal.Round(2)

	shipping := p.shippingFlatFee
	if subtotal.GreaterThan(p.freeShippingOver) {
		shipping = decimal.Zero
	}
	shipping = shipping.Round(2)

	tax := subtotal.Mul(p.taxRate).Round(2)
	total := subtotal.Add(shipping).Add(tax).Round(2)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
	}
}
