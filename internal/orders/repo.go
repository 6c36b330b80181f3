package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/internal/repo"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
	"github.com/mgalindo/storefront-backend/pkg/enums"
	"github.com/mgalindo/storefront-backend/pkg/pagination"
)

// Repository persists orders and their frozen line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindBySession(ctx context.Context, sessionID string, params pagination.Params) ([]models.Order, string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDAndSession(ctx context.Context, id uuid.UUID, sessionID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	ListForStats(ctx context.Context, sessionID string) ([]models.Order, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds an order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.base.DB(ctx).Create(order).Error
}

func (r *repository) FindBySession(ctx context.Context, sessionID string, params pagination.Params) ([]models.Order, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.base.DB(ctx).
		Preload("Items").
		Where("session_id = ?", sessionID).
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

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(orders) > limit {
		orders = orders[:limit]
		last := orders[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return orders, next, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.base.DB(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDAndSession(ctx context.Context, id uuid.UUID, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.base.DB(ctx).
		Preload("Items").
		First(&order, "id = ? AND session_id = ?", id, sessionID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.base.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListForStats loads the status and total of every matching order; the
// aggregation itself happens in the service so money math stays in decimals.
func (r *repository) ListForStats(ctx context.Context, sessionID string) ([]models.Order, error) {
	query := r.base.DB(ctx).
		Model(&models.Order{}).
		Select("id", "status", "total")
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
