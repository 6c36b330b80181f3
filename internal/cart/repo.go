package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mgalindo/storefront-backend/internal/repo"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
)

// Repository persists session carts and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	GetOrCreate(ctx context.Context, sessionID string) (*models.Cart, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.base.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&cart, "session_id = ?", sessionID).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) GetOrCreate(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := r.FindBySession(ctx, sessionID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Cart{SessionID: sessionID}
	if err := r.base.DB(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return created, nil
}

func (r *repository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	item := models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	}
	return r.base.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quantity": quantity}),
		}).
		Create(&item).Error
}

func (r *repository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.base.DB(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.base.DB(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}
