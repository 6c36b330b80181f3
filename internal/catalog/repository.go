package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/internal/repo"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
	"github.com/mgalindo/storefront-backend/pkg/pagination"
)

// Repository exposes the catalog surface the cart and checkout services depend on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, params pagination.Params) ([]models.Product, string, error)
	DistinctCategories(ctx context.Context) ([]string, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.base.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListActive(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.base.DB(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(products) > limit {
		products = products[:limit]
		last := products[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return products, next, nil
}

func (r *repository) DistinctCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.base.DB(ctx).
		Model(&models.Product{}).
		Where("category <> ''").
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// DecrementStock applies a conditional decrement: the stock check and the
// subtraction execute as a single UPDATE, so concurrent checkouts of the same
// product cannot both take the last unit. Returns false when the guard failed
// (insufficient stock or unknown product).
func (r *repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "decrement quantity must be positive")
	}
	result := r.base.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
