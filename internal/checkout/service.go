package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/internal/cart"
	"github.com/mgalindo/storefront-backend/internal/catalog"
	"github.com/mgalindo/storefront-backend/internal/orders"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
	"github.com/mgalindo/storefront-backend/pkg/enums"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
	"github.com/mgalindo/storefront-backend/pkg/metrics"
)

// txRunner matches db.Client and lets tests inject a sqlite-backed runner.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service converts carts into durable priced orders.
type Service interface {
	ValidateCart(ctx context.Context, sessionID string) (*ValidationResult, error)
	Checkout(ctx context.Context, sessionID string) (*models.Order, error)
}

// ValidItem is a cart line that passed validation, with its line subtotal.
type ValidItem struct {
	Product  models.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidationResult reports per-line issues without mutating anything. Pricing
// is always computed from the valid subset, even when issues exist.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Issues []string    `json:"issues"`
	Items  []ValidItem `json:"items"`
	Totals
}

type service struct {
	tx       txRunner
	carts    cart.Repository
	products catalog.Repository
	orders   orders.Repository
	pricer   *Pricer
	metrics  *metrics.CheckoutMetrics
}

// NewService wires the checkout orchestration over its collaborators.
// Metrics may be nil, for example in tests.
func NewService(
	tx txRunner,
	carts cart.Repository,
	products catalog.Repository,
	orderRepo orders.Repository,
	pricer *Pricer,
	checkoutMetrics *metrics.CheckoutMetrics,
) (Service, error) {
	if tx == nil || carts == nil || products == nil || orderRepo == nil || pricer == nil {
		return nil, fmt.Errorf("checkout service dependencies missing")
	}
	return &service{
		tx:       tx,
		carts:    carts,
		products: products,
		orders:   orderRepo,
		pricer:   pricer,
		metrics:  checkoutMetrics,
	}, nil
}

func (s *service) ValidateCart(ctx context.Context, sessionID string) (*ValidationResult, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	loaded, err := s.loadCart(ctx, s.carts, sessionID)
	if err != nil {
		return nil, err
	}

	valid, issues, err := s.validateItems(ctx, s.products, loaded.Items)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:  len(issues) == 0,
		Issues: issues,
		Items:  valid,
		Totals: s.pricer.Price(sumSubtotals(valid)),
	}
	return result, nil
}

// Checkout re-validates the cart and, only if every line passes, persists the
// order, decrements stock and clears the cart as a single transaction. Any
// failure rolls back every write of the attempt.
func (s *service) Checkout(ctx context.Context, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	start := time.Now()
	var order *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		products := s.products.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		loaded, err := s.loadCart(ctx, carts, sessionID)
		if err != nil {
			return err
		}

		valid, issues, err := s.validateItems(ctx, products, loaded.Items)
		if err != nil {
			return err
		}
		if len(valid) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no valid items in cart").
				WithDetails(map[string]any{"issues": issues})
		}
		if len(issues) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart failed checkout validation").
				WithDetails(map[string]any{"issues": issues})
		}

		totals := s.pricer.Price(sumSubtotals(valid))
		order = buildOrder(sessionID, valid, totals)
		if err := orderRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		for _, item := range valid {
			ok, err := products.DecrementStock(ctx, item.Product.ID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !ok {
				// a concurrent checkout took the stock between our validation
				// read and this decrement; abort so nothing of this attempt
				// survives
				return pkgerrors.New(
					pkgerrors.CodeConflict,
					fmt.Sprintf("%s went out of stock", item.Product.Name),
				).WithDetails(map[string]any{
					"product_id": item.Product.ID,
					"requested":  item.Quantity,
				})
			}
		}

		if err := carts.ClearItems(ctx, loaded.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})

	if err != nil {
		s.metrics.ObserveDuration("failure", time.Since(start))
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncFailure(string(typed.Code()))
		} else {
			s.metrics.IncFailure(string(pkgerrors.CodeInternal))
		}
		return nil, err
	}

	s.metrics.ObserveDuration("success", time.Since(start))
	s.metrics.IncSuccess()
	return order, nil
}

func (s *service) loadCart(ctx context.Context, carts cart.Repository, sessionID string) (*models.Cart, error) {
	loaded, err := carts.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emptyCart()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(loaded.Items) == 0 {
		return nil, emptyCart()
	}
	return loaded, nil
}

// validateItems walks the cart in insertion order and buckets each line as
// valid or as a human-readable issue. It never mutates anything.
func (s *service) validateItems(
	ctx context.Context,
	products catalog.Repository,
	items []models.CartItem,
) ([]ValidItem, []string, error) {
	valid := []ValidItem{}
	issues := []string{}

	for _, item := range items {
		product, err := products.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				issues = append(issues, "product no longer exists")
				continue
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart product")
		}
		switch {
		case !product.IsActive:
			issues = append(issues, fmt.Sprintf("%s is no longer available", product.Name))
		case product.Stock == 0:
			issues = append(issues, fmt.Sprintf("%s is out of stock", product.Name))
		case product.Stock < item.Quantity:
			issues = append(issues, fmt.Sprintf("%s only has %d items in stock", product.Name, product.Stock))
		default:
			valid = append(valid, ValidItem{
				Product:  *product,
				Quantity: item.Quantity,
				Subtotal: product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			})
		}
	}
	return valid, issues, nil
}

func buildOrder(sessionID string, items []ValidItem, totals Totals) *models.Order {
	lineItems := make([]models.OrderLineItem, 0, len(items))
	for _, item := range items {
		productID := item.Product.ID
		lineItems = append(lineItems, models.OrderLineItem{
			ProductID:   &productID,
			ProductName: item.Product.Name,
			Price:       item.Product.Price,
			Quantity:    item.Quantity,
			Image:       item.Product.Image,
		})
	}
	return &models.Order{
		SessionID: sessionID,
		Subtotal:  totals.Subtotal,
		Shipping:  totals.Shipping,
		Tax:       totals.Tax,
		Total:     totals.Total,
		Status:    enums.OrderStatusPending,
		Items:     lineItems,
	}
}

func sumSubtotals(items []ValidItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal)
	}
	return subtotal
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
}
