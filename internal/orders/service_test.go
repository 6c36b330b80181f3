package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/pkg/db/models"
	"github.com/mgalindo/storefront-backend/pkg/enums"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
	"github.com/mgalindo/storefront-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Order{}, &models.OrderLineItem{}))

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func seedOrder(t *testing.T, conn *gorm.DB, sessionID, total string, status enums.OrderStatus) *models.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	order := &models.Order{
		SessionID: sessionID,
		Subtotal:  amount,
		Shipping:  decimal.Zero,
		Tax:       decimal.Zero,
		Total:     amount,
		Status:    status,
		Items: []models.OrderLineItem{{
			ProductName: "Frozen Item",
			Price:       amount,
			Quantity:    1,
		}},
	}
	require.NoError(t, conn.Create(order).Error)
	// spread created_at so cursor ordering is deterministic
	time.Sleep(2 * time.Millisecond)
	return order
}

func TestFindAllScopedToSession(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	seedOrder(t, conn, "sess-a", "50.00", enums.OrderStatusPending)
	seedOrder(t, conn, "sess-a", "75.00", enums.OrderStatusShipped)
	seedOrder(t, conn, "sess-b", "20.00", enums.OrderStatusPending)

	list, err := svc.FindAll(ctx, "sess-a", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)
	for _, order := range list.Orders {
		require.Equal(t, "sess-a", order.SessionID)
		require.NotEmpty(t, order.Items)
	}
}

func TestFindOneDoesNotLeakAcrossSessions(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, conn, "sess-owner", "50.00", enums.OrderStatusPending)

	found, err := svc.FindOne(ctx, order.ID, "sess-owner")
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)

	// a guessed id from another session reads as not found
	_, err = svc.FindOne(ctx, order.ID, "sess-intruder")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, conn, "sess-c", "50.00", enums.OrderStatusPending)

	updated, err := svc.UpdateStatus(ctx, order.ID, "processing")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, updated.Status)

	updated, err = svc.UpdateStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, updated.Status)

	// no backward transitions
	_, err = svc.UpdateStatus(ctx, order.ID, "pending")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	// cancellation is closed once shipped
	_, err = svc.UpdateStatus(ctx, order.ID, "cancelled")
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "sess-d", "50.00", enums.OrderStatusPending)

	_, err := svc.UpdateStatus(context.Background(), order.ID, "misplaced")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), "processing")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	seedOrder(t, conn, "sess-e", "50.00", enums.OrderStatusPending)
	seedOrder(t, conn, "sess-e", "70.00", enums.OrderStatusDelivered)
	seedOrder(t, conn, "sess-f", "30.00", enums.OrderStatusPending)

	global, err := svc.GetStats(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, global.TotalOrders)
	require.True(t, global.TotalRevenue.Equal(decimal.RequireFromString("150.00")))
	require.True(t, global.AvgOrderValue.Equal(decimal.RequireFromString("50.00")))
	require.Equal(t, map[string]int{"pending": 2, "delivered": 1}, global.StatusBreakdown)

	scoped, err := svc.GetStats(ctx, "sess-e")
	require.NoError(t, err)
	require.Equal(t, 2, scoped.TotalOrders)
	require.True(t, scoped.TotalRevenue.Equal(decimal.RequireFromString("120.00")))
	require.True(t, scoped.AvgOrderValue.Equal(decimal.RequireFromString("60.00")))
	// statuses with no orders are simply absent
	require.NotContains(t, scoped.StatusBreakdown, "cancelled")
}

func TestGetStatsEmpty(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	stats, err := svc.GetStats(context.Background(), "sess-nobody")
	require.NoError(t, err)
	require.Zero(t, stats.TotalOrders)
	require.True(t, stats.TotalRevenue.IsZero())
	require.True(t, stats.AvgOrderValue.IsZero())
	require.Empty(t, stats.StatusBreakdown)
}
