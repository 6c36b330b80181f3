package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/pkg/db/models"
	"github.com/mgalindo/storefront-backend/pkg/enums"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
	"github.com/mgalindo/storefront-backend/pkg/pagination"
)

// Service exposes order queries, the operator status update and aggregate stats.
type Service interface {
	FindAll(ctx context.Context, sessionID string, params pagination.Params) (*OrderList, error)
	FindOne(ctx context.Context, id uuid.UUID, sessionID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*models.Order, error)
	GetStats(ctx context.Context, sessionID string) (*Stats, error)
}

// OrderList is one page of a session's orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Stats aggregates committed orders. Statuses with no orders are absent
// from the breakdown.
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	StatusBreakdown map[string]int  `json:"status_breakdown"`
}

type service struct {
	repo Repository
}

// NewService builds an order service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) FindAll(ctx context.Context, sessionID string, params pagination.Params) (*OrderList, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	orders, next, err := s.repo.FindBySession(ctx, sessionID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderList{Orders: orders, NextCursor: next}, nil
}

// FindOne is session scoped: an order belonging to another session reads as
// not found rather than forbidden, so order ids cannot be probed.
func (s *service) FindOne(ctx context.Context, id uuid.UUID, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	order, err := s.repo.FindByIDAndSession(ctx, id, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*models.Order, error) {
	status, ok := enums.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("unknown order status %q", rawStatus),
		)
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if !order.Status.CanTransition(status) {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, status),
		).WithDetails(map[string]any{
			"current":   order.Status,
			"requested": status,
		})
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = status
	return order, nil
}

// GetStats aggregates all orders when sessionID is empty, otherwise only the
// session's own.
func (s *service) GetStats(ctx context.Context, sessionID string) (*Stats, error) {
	orders, err := s.repo.ListForStats(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order stats")
	}

	stats := &Stats{
		TotalOrders:     len(orders),
		TotalRevenue:    decimal.Zero,
		AvgOrderValue:   decimal.Zero,
		StatusBreakdown: map[string]int{},
	}
	for _, order := range orders {
		stats.TotalRevenue = stats.TotalRevenue.Add(order.Total)
		stats.StatusBreakdown[string(order.Status)]++
	}
	stats.TotalRevenue = stats.TotalRevenue.Round(2)
	if len(orders) > 0 {
		stats.AvgOrderValue = stats.TotalRevenue.
			Div(decimal.NewFromInt(int64(len(orders)))).
			Round(2)
	}
	return stats, nil
}
