package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/velora/storefront/internal/domain/cart"
	"github.com/velora/storefront/internal/domain/coupon"
	"github.com/velora/storefront/internal/domain/inventory"
	"github.com/velora/storefront/internal/domain/payment"
	"github.com/velora/storefront/internal/domain/pricing"
	"github.com/velora/storefront/internal/domain/product"
)

var minorUnits = decimal.NewFromInt(100)

// Notifier sends the order confirmation. Delivery is best-effort: failures
// are logged and never abort a completed checkout.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email string, o *Order) error
}

// CheckoutRequest holds everything needed to turn a cart into an order.
type CheckoutRequest struct {
	Owner           cart.Owner
	Email           string
	ShippingAddress Address
	// BillingAddress defaults to the shipping address when nil.
	BillingAddress *Address
	PaymentMethod  PaymentMethod
	CouponCode     string
	Notes          string
}

// CheckoutResult is a successfully placed order plus the payment intent, when
// the chosen method required one.
type CheckoutResult struct {
	Order   *Order
	Payment *payment.Intent
}

// Service orchestrates checkout and cancellation: it drives the pricing
// calculator, inventory guard, and coupon validator against the repositories
// and keeps stock and coupon usage consistent with the created order.
type Service struct {
	carts     cart.Repository
	products  product.Repository
	stock     *inventory.Guard
	coupons   coupon.Validator
	couponTab coupon.Repository
	orders    Repository
	payments  payment.Provider
	notifier  Notifier
	pricing   pricing.Config
	currency  string
	now       func() time.Time
	newNumber func() string

	tracer          trace.Tracer
	ordersPlaced    metric.Int64Counter
	ordersCancelled metric.Int64Counter
}

// NewService creates the checkout orchestrator with the required
// dependencies.
func NewService(
	carts cart.Repository,
	products product.Repository,
	stock *inventory.Guard,
	coupons coupon.Validator,
	couponTab coupon.Repository,
	orders Repository,
	payments payment.Provider,
	notifier Notifier,
	cfg pricing.Config,
) *Service {
	meter := otel.Meter("storefront.order")
	ordersPlaced, _ := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders created through checkout"))
	ordersCancelled, _ := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled by their owner"))

	return &Service{
		carts:     carts,
		products:  products,
		stock:     stock,
		coupons:   coupons,
		couponTab: couponTab,
		orders:    orders,
		payments:  payments,
		notifier:  notifier,
		pricing:   cfg,
		currency:  "usd",
		now:       time.Now,
		newNumber: NewNumber,

		tracer:          otel.Tracer("storefront.order"),
		ordersPlaced:    ordersPlaced,
		ordersCancelled: ordersCancelled,
	}
}

// Checkout turns the owner's cart into a persisted order.
//
// Validation (empty cart, product availability, stock levels) happens before
// any mutation and aborts with no side effects. After the order record is
// created the sequence is: payment intent (when required), stock
// reservation, coupon redemption, cart clear, confirmation notification.
// A payment provider failure surfaces to the caller and leaves the pending
// order persisted without an intent; coupon problems never abort checkout
// (the order proceeds undiscounted); notification failures are swallowed.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "Checkout")
	defer span.End()

	lg := zctx.From(ctx)

	crt, err := s.carts.FindByOwner(ctx, req.Owner)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if crt.IsEmpty() {
		return nil, ErrEmptyCart
	}

	// Re-fetch every product in one batch and verify availability before
	// touching any state.
	ids := make([]string, len(crt.Items))
	for i, it := range crt.Items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, it := range crt.Items {
		p, ok := byID[it.ProductID]
		if !ok || !p.Active {
			return nil, &ProductUnavailableError{ProductID: it.ProductID}
		}
		if p.Quantity < it.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: p.Quantity,
			}
		}
	}

	// Snapshot lines at the product's current price, not the cart's
	// captured price. The frozen order total can differ from what the cart
	// displayed if the price changed since add-to-cart.
	items := make([]Item, len(crt.Items))
	lines := make([]pricing.Line, len(crt.Items))
	itemCount := 0
	for i, it := range crt.Items {
		p := byID[it.ProductID]
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			SKU:       p.SKU,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			Total:     p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		}
		lines[i] = pricing.Line{UnitPrice: p.Price, Quantity: it.Quantity}
		itemCount += it.Quantity
	}

	subtotal, err := pricing.Subtotal(lines)
	if err != nil {
		return nil, errors.Wrap(err, "subtotal")
	}
	shipping := s.pricing.Shipping(subtotal, itemCount)
	tax := s.pricing.Tax(subtotal)

	// An invalid or inapplicable coupon never blocks checkout; the order
	// simply proceeds without a discount. Contrast with applying a coupon
	// to a cart, which rejects bad codes synchronously.
	discount := decimal.Zero
	var applied *coupon.Coupon
	if req.CouponCode != "" {
		cpn, err := s.coupons.Validate(ctx, req.CouponCode, subtotal, req.Owner.UserID)
		switch {
		case err == nil:
			applied = cpn
			discount = cpn.Discount(subtotal)
		case isCouponRejection(err):
			lg.Debug("Ignoring inapplicable coupon at checkout",
				zap.String("code", req.CouponCode), zap.Error(err))
		default:
			return nil, errors.Wrap(err, "validate coupon")
		}
	}

	total := pricing.Total(subtotal, shipping, tax, discount)

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	o := &Order{
		ID:              uuid.New().String(),
		Number:          s.newNumber(),
		UserID:          req.Owner.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		Tax:             tax,
		Discount:        discount,
		Total:           total,
		Status:          StatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Notes:           req.Notes,
		CreatedAt:       s.now(),
	}
	if applied != nil {
		o.CouponCode = applied.Code
		o.CouponDiscount = discount
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	var intent *payment.Intent
	if req.PaymentMethod.RequiresIntent() {
		amount := total.Mul(minorUnits).Round(0).IntPart()
		intent, err = s.payments.CreateIntent(ctx, amount, s.currency, map[string]string{
			"order_id":     o.ID,
			"order_number": o.Number,
		})
		if err != nil {
			// The pending order stays persisted with no intent attached.
			return nil, &PaymentInitiationError{OrderNumber: o.Number, Err: err}
		}
		o.PaymentIntentID = intent.ID
		if err := s.orders.SetPaymentIntent(ctx, o.ID, intent.ID); err != nil {
			return nil, errors.Wrap(err, "attach payment intent")
		}
	}

	// Reserve stock line by line. The step-2 availability check already
	// passed, but a concurrent checkout may have depleted stock since; the
	// conditional decrement is the authority. On failure, return the lines
	// reserved so far and cancel the order record.
	for i, it := range items {
		if err := s.stock.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			var insufficient *inventory.InsufficientStockError
			if errors.As(err, &insufficient) {
				s.unwindReservations(ctx, o, items[:i])
				return nil, err
			}
			return nil, err
		}
	}

	if applied != nil {
		ok, err := s.couponTab.Redeem(ctx, applied.Code, req.Owner.UserID)
		if err != nil || !ok {
			// The discount is already baked into the order; losing the
			// redemption race only under-counts usage.
			lg.Warn("Coupon redemption failed after order creation",
				zap.String("code", applied.Code),
				zap.String("order", o.Number),
				zap.Bool("limit_exhausted", err == nil && !ok),
				zap.Error(err))
		}
	}

	if err := s.carts.Clear(ctx, crt.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	if s.notifier != nil && req.Email != "" {
		if err := s.notifier.SendOrderConfirmation(ctx, req.Email, o); err != nil {
			lg.Warn("Order confirmation notification failed",
				zap.String("order", o.Number), zap.Error(err))
		}
	}

	s.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(req.PaymentMethod))))
	span.SetAttributes(attribute.String("order.number", o.Number))

	return &CheckoutResult{Order: o, Payment: intent}, nil
}

// unwindReservations releases stock reserved for this checkout so far and
// cancels the order record that step 5 persisted.
func (s *Service) unwindReservations(ctx context.Context, o *Order, reserved []Item) {
	lg := zctx.From(ctx)
	for _, it := range reserved {
		if err := s.stock.Release(ctx, it.ProductID, it.Quantity); err != nil {
			lg.Error("Failed to release stock while unwinding checkout",
				zap.String("order", o.Number),
				zap.String("product", it.ProductID),
				zap.Error(err))
		}
	}
	if _, err := s.orders.MarkCancelled(ctx, o.ID, "stock depleted during checkout", s.now()); err != nil {
		lg.Error("Failed to cancel order while unwinding checkout",
			zap.String("order", o.Number), zap.Error(err))
	}
}

// Cancel cancels a pending or confirmed order, restoring stock for every
// line. Coupon usage is intentionally not reversed: a consumed use stays
// consumed even when the order is cancelled.
func (s *Service) Cancel(ctx context.Context, number, userID, reason string) (*Order, error) {
	o, err := s.orders.FindByNumber(ctx, number, userID)
	if err != nil {
		return nil, err
	}
	if !o.Status.Cancellable() {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}

	// Conditional update is the real gate: a concurrent cancel or status
	// change between the read above and here loses exactly one of the
	// races, and only the winner releases stock.
	at := s.now()
	ok, err := s.orders.MarkCancelled(ctx, o.ID, reason, at)
	if err != nil {
		return nil, errors.Wrap(err, "mark cancelled")
	}
	if !ok {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}

	for _, it := range o.Items {
		if err := s.stock.Release(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	s.ordersCancelled.Add(ctx, 1)

	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.CancelReason = reason
	return o, nil
}

// Get returns a single order by number, scoped to the user when userID is
// non-empty.
func (s *Service) Get(ctx context.Context, number, userID string) (*Order, error) {
	return s.orders.FindByNumber(ctx, number, userID)
}

// List returns the user's orders, newest first, optionally filtered by
// status.
func (s *Service) List(ctx context.Context, userID string, status Status, limit, offset int) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID, status, limit, offset)
}

// Track returns the order identified by number regardless of owner, for the
// public tracking view.
func (s *Service) Track(ctx context.Context, number string) (*Order, error) {
	return s.orders.FindByNumber(ctx, number, "")
}

// isCouponRejection reports whether err is one of the coupon eligibility
// rejections, as opposed to an infrastructure failure.
func isCouponRejection(err error) bool {
	var belowMin *coupon.BelowMinimumError
	return errors.Is(err, coupon.ErrInvalidCode) ||
		errors.Is(err, coupon.ErrExpired) ||
		errors.Is(err, coupon.ErrNotActive) ||
		errors.Is(err, coupon.ErrUserLimitReached) ||
		errors.As(err, &belowMin)
}
