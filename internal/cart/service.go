package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/internal/catalog"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
)

// txRunner matches db.Client and lets tests inject a sqlite-backed runner.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service mutates and reads session carts. Every mutation runs inside a
// transaction so concurrent requests for the same session serialize at the DB.
type Service interface {
	GetCart(ctx context.Context, sessionID string) (*PricedView, error)
	AddToCart(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*PricedView, error)
	UpdateCartItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*PricedView, error)
	RemoveFromCart(ctx context.Context, sessionID string, productID uuid.UUID) (*PricedView, error)
	ClearCart(ctx context.Context, sessionID string) error
}

type service struct {
	tx       txRunner
	carts    Repository
	products catalog.Repository
}

// NewService builds a cart service over the cart and catalog repositories.
func NewService(tx txRunner, carts Repository, products catalog.Repository) (Service, error) {
	if tx == nil || carts == nil || products == nil {
		return nil, fmt.Errorf("cart service dependencies missing")
	}
	return &service{tx: tx, carts: carts, products: products}, nil
}

func (s *service) GetCart(ctx context.Context, sessionID string) (*PricedView, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	cart, err := s.carts.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyView(), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.priceCart(ctx, cart)
}

func (s *service) AddToCart(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*PricedView, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		products := s.products.WithTx(tx)

		product, err := products.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		cart, err := carts.GetOrCreate(ctx, sessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		// adding merges with any existing line, and the merged quantity is
		// what must fit the available stock
		target := quantity
		for _, item := range cart.Items {
			if item.ProductID == productID {
				target += item.Quantity
				break
			}
		}
		if target > product.Stock {
			return insufficientStock(product, target)
		}

		return carts.UpsertItem(ctx, cart.ID, productID, target)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, sessionID)
}

func (s *service) UpdateCartItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*PricedView, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		products := s.products.WithTx(tx)

		cart, err := carts.FindBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		var existing *models.CartItem
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				existing = &cart.Items[i]
				break
			}
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
		}

		product, err := products.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if quantity > product.Stock {
			return insufficientStock(product, quantity)
		}

		return carts.UpsertItem(ctx, cart.ID, productID, quantity)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, sessionID)
}

func (s *service) RemoveFromCart(ctx context.Context, sessionID string, productID uuid.UUID) (*PricedView, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		cart, err := carts.FindBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		// removing an absent product is a no-op, not an error
		return carts.RemoveItem(ctx, cart.ID, productID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, sessionID)
}

func (s *service) ClearCart(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		cart, err := carts.GetOrCreate(ctx, sessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		return carts.ClearItems(ctx, cart.ID)
	})
}

// priceCart joins cart lines with their current catalog rows. Lines whose
// product row has been deleted since they were added are dropped silently.
func (s *service) priceCart(ctx context.Context, cart *models.Cart) (*PricedView, error) {
	view := emptyView()
	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart product")
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		view.Items = append(view.Items, PricedItem{
			Product:  *product,
			Quantity: item.Quantity,
			Subtotal: lineTotal,
		})
		view.Subtotal = view.Subtotal.Add(lineTotal)
		view.ItemCount += item.Quantity
	}
	return view, nil
}

func requireSession(sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}

func requireQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	return nil
}

func insufficientStock(product *models.Product, requested int) error {
	return pkgerrors.New(
		pkgerrors.CodeConflict,
		fmt.Sprintf("insufficient stock for %s", product.Name),
	).WithDetails(map[string]any{
		"product_id": product.ID,
		"requested":  requested,
		"available":  product.Stock,
	})
}
