package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora/storefront/internal/domain/cart"
	"github.com/velora/storefront/internal/domain/coupon"
	"github.com/velora/storefront/internal/domain/inventory"
	"github.com/velora/storefront/internal/domain/order"
	"github.com/velora/storefront/internal/domain/payment"
	"github.com/velora/storefront/internal/domain/pricing"
	"github.com/velora/storefront/internal/domain/product"
)

// --- Mock implementations ---

type memProducts struct {
	mu   sync.Mutex
	byID map[string]*product.Product
}

func newMemProducts(products ...product.Product) *memProducts {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &memProducts{byID: byID}
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProducts) ReserveStock(_ context.Context, id string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Quantity < qty {
		return false, nil
	}
	p.Quantity -= qty
	p.SoldCount += qty
	return true, nil
}

func (m *memProducts) ReleaseStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Quantity += qty
	return nil
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart // by owner key
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string]*cart.Cart)}
}

func ownerKey(o cart.Owner) string {
	if o.UserID != "" {
		return "u:" + o.UserID
	}
	return "s:" + o.SessionID
}

func (m *memCarts) FindByOwner(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerKey(owner)]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *memCarts) Save(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[ownerKey(cart.Owner{UserID: c.UserID, SessionID: c.SessionID})] = c
	return nil
}

func (m *memCarts) Clear(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.ID == cartID {
			c.Items = nil
			c.CouponCode = ""
			c.CouponDiscount = decimal.Zero
		}
	}
	return nil
}

func (m *memCarts) PurgeGuestsIdleSince(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*order.Order)}
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) FindByNumber(_ context.Context, number, userID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Number == number && (userID == "" || o.UserID == userID) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByUser(_ context.Context, userID string, status order.Status, _, _ int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID && (status == "" || o.Status == status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) SetPaymentIntent(_ context.Context, orderID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].PaymentIntentID = intentID
	return nil
}

func (m *memOrders) MarkCancelled(_ context.Context, orderID, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || !o.Status.Cancellable() {
		return false, nil
	}
	o.Status = order.StatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &at
	return true, nil
}

type stubCouponRepo struct {
	coupons map[string]*coupon.Coupon
}

func (s *stubCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := s.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrInvalidCode
	}
	return c, nil
}

func (s *stubCouponRepo) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (s *stubCouponRepo) Redeem(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

type stubPayments struct{}

func (stubPayments) CreateIntent(_ context.Context, _ int64, _ string, _ map[string]string) (*payment.Intent, error) {
	return &payment.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil
}

type nopNotifier struct{}

func (nopNotifier) SendOrderConfirmation(_ context.Context, _ string, _ *order.Order) error {
	return nil
}

// --- Helpers ---

func newTestServer(t *testing.T, products ...product.Product) *httptest.Server {
	t.Helper()

	repo := newMemProducts(products...)
	carts := newMemCarts()
	coupons := &stubCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE10": {
			Code:    "SAVE10",
			Type:    coupon.TypePercentage,
			Value:   decimal.NewFromInt(10),
			EndDate: time.Now().Add(24 * time.Hour),
			Active:  true,
		},
	}}
	validator := coupon.NewRepoValidator(coupons)
	cfg := pricing.DefaultConfig()

	cartSvc := cart.NewService(carts, repo, validator, cfg)
	orderSvc := order.NewService(
		carts, repo, inventory.NewGuard(repo),
		validator, coupons, newMemOrders(), stubPayments{}, nopNotifier{}, cfg,
	)

	h := NewHandler(Config{}, repo, cartSvc, orderSvc)
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, userID, body string) (*http.Response, map[string]any) {
	t.Helper()

	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func checkoutBody(couponCode string) string {
	body := `{
		"email": "ada@example.com",
		"shipping_address": {
			"first_name": "Ada", "last_name": "L",
			"address1": "1 Main St", "city": "Springfield",
			"state": "IL", "postal_code": "62701", "country": "US",
			"phone": "555"
		},
		"payment_method": "cash_on_delivery"`
	if couponCode != "" {
		body += `, "coupon_code": "` + couponCode + `"`
	}
	return body + "}"
}

// --- Tests ---

func TestGetProduct(t *testing.T) {
	srv := newTestServer(t, product.Product{
		ID: "p1", Name: "Widget", SKU: "W-1",
		Price: decimal.RequireFromString("19.99"), Quantity: 5, Active: true,
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/products/p1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Widget", body["name"])
	assert.Equal(t, 19.99, body["price"])
	assert.Equal(t, true, body["in_stock"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/products/nope", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "product_not_found", body["code"])
}

func TestCartFlow(t *testing.T) {
	srv := newTestServer(t, product.Product{
		ID: "p1", Name: "Widget", SKU: "W-1",
		Price: decimal.RequireFromString("40.00"), Quantity: 10, Active: true,
	})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/cart/items", "u1",
		`{"product_id": "p1", "quantity": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	summary := body["summary"].(map[string]any)
	assert.Equal(t, 80.00, summary["subtotal"])
	assert.Equal(t, 6.98, summary["shipping"])
	assert.Equal(t, 6.40, summary["tax"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/cart/coupon", "u1",
		`{"code": "SAVE10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary = body["summary"].(map[string]any)
	assert.Equal(t, 8.00, summary["discount"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/cart/coupon", "u1",
		`{"code": "NOPE"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_coupon_code", body["code"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/cart", "u1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAddCartItem_InsufficientStock(t *testing.T) {
	srv := newTestServer(t, product.Product{
		ID: "p1", Name: "Widget", SKU: "W-1",
		Price: decimal.RequireFromString("10.00"), Quantity: 1, Active: true,
	})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/cart/items", "u1",
		`{"product_id": "p1", "quantity": 2}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", body["code"])
}

func TestCheckoutFlow(t *testing.T) {
	srv := newTestServer(t, product.Product{
		ID: "p1", Name: "Widget", SKU: "W-1",
		Price: decimal.RequireFromString("40.00"), Quantity: 10, Active: true,
	})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/cart/items", "u1",
		`{"product_id": "p1", "quantity": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders", "u1", checkoutBody("SAVE10"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := body["order"].(map[string]any)
	number := o["number"].(string)
	assert.True(t, strings.HasPrefix(number, "ORD-"))
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, 80.00, o["subtotal"])
	assert.Equal(t, 8.00, o["discount"])
	// 80.00 + 6.98 + 6.40 - 8.00
	assert.Equal(t, 85.38, o["total"])
	assert.Nil(t, body["payment"], "cash on delivery carries no intent")

	// The cart is cleared by checkout.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/cart", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["items"])

	// Tracking is public: no identity header.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/orders/"+number+"/track", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])

	// Cancel restores the order to cancelled.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+number+"/cancel", "u1",
		`{"reason": "changed my mind"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	// A second cancel loses the state machine check.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/orders/"+number+"/cancel", "u1",
		`{"reason": "again"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state_transition", body["code"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders", "u1", checkoutBody(""))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty_cart", body["code"])
}

func TestCheckout_InvalidPaymentMethod(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders", "u1",
		`{"email": "a@b.c", "payment_method": "bitcoin"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_payment_method", body["code"])
}

func TestListOrders_RequiresIdentity(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/orders", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing_identity", body["code"])
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/cart/items", "u1", `{"product_id": `)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed_body", body["code"])
}
