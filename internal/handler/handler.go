// Package handler exposes the REST surface: catalog reads, cart mutation,
// and order checkout/lookup. Handlers stay thin, mapping HTTP to the domain
// services and domain errors to stable error codes.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/velora/storefront/internal/domain/cart"
	"github.com/velora/storefront/internal/domain/coupon"
	"github.com/velora/storefront/internal/domain/inventory"
	"github.com/velora/storefront/internal/domain/order"
	"github.com/velora/storefront/internal/domain/product"
)

// Identity headers. Authentication itself happens upstream; these carry the
// already-resolved user or anonymous session.
const (
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler wires the REST routes to the domain services.
type Handler struct {
	products     product.Repository
	carts        *cart.Service
	orders       *order.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, products product.Repository, carts *cart.Service, orders *order.Service) *Handler {
	return &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes registers every endpoint on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("PUT /api/cart/items/{productID}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.RemoveCartItem)
	mux.HandleFunc("POST /api/cart/coupon", h.ApplyCoupon)
	mux.HandleFunc("DELETE /api/cart/coupon", h.RemoveCoupon)

	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{number}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{number}/cancel", h.CancelOrder)
	mux.HandleFunc("GET /api/orders/{number}/track", h.TrackOrder)
}

// ownerFrom extracts the cart owner from the identity headers. A user ID
// takes precedence over a session ID.
func ownerFrom(r *http.Request) cart.Owner {
	if userID := r.Header.Get(headerUserID); userID != "" {
		return cart.Owner{UserID: userID}
	}
	return cart.Owner{SessionID: r.Header.Get(headerSessionID)}
}

// writeJSON encodes a response body built by fn.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError emits the stable error envelope {code, message}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// respondError maps a domain error to its HTTP status and stable code.
// Unrecognized errors are logged and reported as an opaque 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *inventory.InsufficientStockError
		unavailCart  *cart.ProductUnavailableError
		unavailOrder *order.ProductUnavailableError
		qtyLimit     *cart.QuantityLimitError
		belowMin     *coupon.BelowMinimumError
		payErr       *order.PaymentInitiationError
		transition   *order.InvalidTransitionError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart), errors.Is(err, cart.ErrEmpty):
		writeError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, cart.ErrNotFound):
		writeError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.As(err, &unavailCart), errors.As(err, &unavailOrder):
		writeError(w, http.StatusUnprocessableEntity, "product_unavailable", err.Error())
	case errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_stock", err.Error())
	case errors.As(err, &qtyLimit):
		writeError(w, http.StatusUnprocessableEntity, "quantity_limit_exceeded", err.Error())
	case errors.Is(err, coupon.ErrInvalidCode):
		writeError(w, http.StatusUnprocessableEntity, "invalid_coupon_code", err.Error())
	case errors.Is(err, coupon.ErrExpired):
		writeError(w, http.StatusUnprocessableEntity, "coupon_expired", err.Error())
	case errors.Is(err, coupon.ErrNotActive):
		writeError(w, http.StatusUnprocessableEntity, "coupon_not_active", err.Error())
	case errors.As(err, &belowMin):
		writeError(w, http.StatusUnprocessableEntity, "coupon_below_minimum", err.Error())
	case errors.Is(err, coupon.ErrUserLimitReached):
		writeError(w, http.StatusUnprocessableEntity, "coupon_user_limit_reached", err.Error())
	case errors.As(err, &payErr):
		writeError(w, http.StatusPaymentRequired, "payment_initiation_failed", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_state_transition", err.Error())
	default:
		zctx.From(r.Context()).Error("Unhandled request error",
			zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// readBody decodes the request body with fn, rejecting malformed JSON.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) bool {
	d := jx.Decode(r.Body, 4096)
	if err := fn(d); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", "request body is not valid JSON")
		return false
	}
	return true
}
