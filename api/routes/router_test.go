package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/internal/cart"
	"github.com/mgalindo/storefront-backend/internal/catalog"
	checkoutsvc "github.com/mgalindo/storefront-backend/internal/checkout"
	"github.com/mgalindo/storefront-backend/internal/orders"
	"github.com/mgalindo/storefront-backend/pkg/config"
	"github.com/mgalindo/storefront-backend/pkg/db"
	"github.com/mgalindo/storefront-backend/pkg/db/models"
	"github.com/mgalindo/storefront-backend/pkg/redis"
)

// memoryStore stands in for the redis-backed idempotency storage in
// router-level tests.
type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	return newTestRouterWithStore(t, nil)
}

func newTestRouterWithStore(t *testing.T, idemStore redis.IdempotencyStore) (http.Handler, *gorm.DB) {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderLineItem{},
	))

	client := db.FromConn(conn)
	catalogRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	catalogService, err := catalog.NewService(catalogRepo)
	require.NoError(t, err)
	cartService, err := cart.NewService(client, cartRepo, catalogRepo)
	require.NoError(t, err)
	pricer, err := checkoutsvc.NewPricer(config.CheckoutConfig{
		FreeShippingOver: "100",
		ShippingFlatFee:  "10",
		TaxRate:          "0.08",
	})
	require.NoError(t, err)
	checkoutService, err := checkoutsvc.NewService(client, cartRepo, catalogRepo, orderRepo, pricer, nil)
	require.NoError(t, err)
	orderService, err := orders.NewService(orderRepo)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.App.Port = "0"

	router := NewRouter(cfg, nil, client, nil, idemStore, nil, catalogService, cartService, checkoutService, orderService)
	return router, conn
}

func seedRouterProduct(t *testing.T, conn *gorm.DB, name, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "general",
		IsActive: true,
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}

func doJSON(t *testing.T, router http.Handler, method, path, session, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("X-Session-Id", session)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var decoded map[string]any
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded))
	}
	return resp, decoded
}

func TestCartToOrderFlow(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	product := seedRouterProduct(t, conn, "Desk Lamp", "20.00", 10)
	addBody := fmt.Sprintf(`{"product_id":%q,"quantity":2}`, product.ID)

	resp, payload := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-flow", addBody)
	require.Equal(t, http.StatusOK, resp.Code)
	data := payload["data"].(map[string]any)
	require.Equal(t, float64(2), data["item_count"])

	resp, payload = doJSON(t, router, http.MethodGet, "/api/v1/cart", "sess-flow", "")
	require.Equal(t, http.StatusOK, resp.Code)
	data = payload["data"].(map[string]any)
	require.Equal(t, "40.00", data["subtotal"])

	resp, payload = doJSON(t, router, http.MethodPost, "/api/v1/orders/checkout", "sess-flow", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	data = payload["data"].(map[string]any)
	order := data["order"].(map[string]any)
	require.Equal(t, "53.20", order["total"])
	require.Equal(t, "pending", order["status"])

	var reloaded models.Product
	require.NoError(t, conn.First(&reloaded, "id = ?", product.ID).Error)
	require.Equal(t, 8, reloaded.Stock)

	resp, payload = doJSON(t, router, http.MethodGet, "/api/v1/orders", "sess-flow", "")
	require.Equal(t, http.StatusOK, resp.Code)
	data = payload["data"].(map[string]any)
	require.Len(t, data["orders"], 1)

	resp, payload = doJSON(t, router, http.MethodGet, "/api/v1/orders/stats", "sess-flow", "")
	require.Equal(t, http.StatusOK, resp.Code)
	data = payload["data"].(map[string]any)
	require.Equal(t, float64(1), data["total_orders"])
}

func TestCartAddValidationErrors(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	product := seedRouterProduct(t, conn, "Mug", "9.50", 3)

	// non-positive quantity
	body := fmt.Sprintf(`{"product_id":%q,"quantity":0}`, product.ID)
	resp, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-v", body)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	// fractional quantity never reaches the service
	body = fmt.Sprintf(`{"product_id":%q,"quantity":1.5}`, product.ID)
	resp, _ = doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-v", body)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	// unknown product
	body = fmt.Sprintf(`{"product_id":%q,"quantity":1}`, uuid.New())
	resp, _ = doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-v", body)
	require.Equal(t, http.StatusNotFound, resp.Code)

	// over stock
	body = fmt.Sprintf(`{"product_id":%q,"quantity":4}`, product.ID)
	resp, _ = doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-v", body)
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestAnonymousSessionFallback(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	product := seedRouterProduct(t, conn, "Vase", "15.00", 5)

	body := fmt.Sprintf(`{"product_id":%q,"quantity":1}`, product.ID)
	resp, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var stored models.Cart
	require.NoError(t, conn.First(&stored, "session_id = ?", "anonymous").Error)
}

func TestOrdersDoNotLeakAcrossSessions(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	product := seedRouterProduct(t, conn, "Clock", "30.00", 5)

	body := fmt.Sprintf(`{"product_id":%q,"quantity":1}`, product.ID)
	resp, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-owner", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, payload := doJSON(t, router, http.MethodPost, "/api/v1/orders/checkout", "sess-owner", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	order := payload["data"].(map[string]any)["order"].(map[string]any)
	orderID := order["id"].(string)

	resp, _ = doJSON(t, router, http.MethodGet, "/api/v1/orders/"+orderID, "sess-owner", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp, _ = doJSON(t, router, http.MethodGet, "/api/v1/orders/"+orderID, "sess-intruder", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOrderStatusEndpoint(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	product := seedRouterProduct(t, conn, "Chair", "60.00", 5)

	body := fmt.Sprintf(`{"product_id":%q,"quantity":1}`, product.ID)
	resp, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-s", body)
	require.Equal(t, http.StatusOK, resp.Code)
	resp, payload := doJSON(t, router, http.MethodPost, "/api/v1/orders/checkout", "sess-s", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	order := payload["data"].(map[string]any)["order"].(map[string]any)
	orderID := order["id"].(string)

	resp, _ = doJSON(t, router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", "sess-s", `{"status":"processing"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	// delivered is not reachable from processing
	resp, _ = doJSON(t, router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", "sess-s", `{"status":"delivered"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestCheckoutIdempotencyGuard(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	router, conn := newTestRouterWithStore(t, store)
	product := seedRouterProduct(t, conn, "Kettle", "25.00", 5)

	body := fmt.Sprintf(`{"product_id":%q,"quantity":1}`, product.ID)
	resp, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart/add", "sess-idem", body)
	require.Equal(t, http.StatusOK, resp.Code)

	checkout := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/checkout", strings.NewReader(""))
		req.Header.Set("X-Session-Id", "sess-idem")
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// the guard fires through the full middleware chain, not just in isolation
	resp = checkout("")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	first := checkout("order-once")
	require.Equal(t, http.StatusCreated, first.Code)

	// cart is empty now, so only a stored replay can produce 201 again
	second := checkout("order-once")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())

	var orderCount int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&orderCount).Error)
	require.Equal(t, int64(1), orderCount)
}

func TestHealthAndProducts(t *testing.T) {
	t.Parallel()

	router, conn := newTestRouter(t)
	seedRouterProduct(t, conn, "Lamp", "20.00", 5)

	resp, _ := doJSON(t, router, http.MethodGet, "/health/live", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp, _ = doJSON(t, router, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp, payload := doJSON(t, router, http.MethodGet, "/api/v1/products", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	data := payload["data"].(map[string]any)
	require.Len(t, data["products"], 1)
}
