package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is an order's position in its lifecycle state machine.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
	StatusReturned       Status = "returned"
)

// forward holds the normal fulfilment progression. Refunded and returned are
// administrative terminals reachable from any non-terminal state; cancelled
// is reachable only from pending and confirmed.
var forward = map[Status]Status{
	StatusPending:        StatusConfirmed,
	StatusConfirmed:      StatusProcessing,
	StatusProcessing:     StatusShipped,
	StatusShipped:        StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded, StatusReturned:
		return true
	}
	return false
}

// Cancellable reports whether the order may still be cancelled by the
// customer.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return false
	}
	switch next {
	case StatusRefunded, StatusReturned:
		return !s.IsTerminal() || s == StatusDelivered
	case StatusCancelled:
		return s.Cancellable()
	}
	return forward[s] == next
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodDebitCard      PaymentMethod = "debit_card"
	MethodPayPal         PaymentMethod = "paypal"
	MethodStripe         PaymentMethod = "stripe"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
)

// RequiresIntent reports whether the method needs an upstream payment intent
// created at checkout time.
func (m PaymentMethod) RequiresIntent() bool {
	return m == MethodStripe || m == MethodCreditCard
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodPayPal,
		MethodStripe, MethodCashOnDelivery, MethodBankTransfer:
		return true
	}
	return false
}

// PaymentStatus tracks the payment side independently of fulfilment status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Address is a shipping or billing address, validated upstream.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// Item is a frozen order line: product identity, name, SKU, and price are
// snapshotted at order creation and never change afterwards.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// Order is a persisted customer order. Item snapshots and totals are
// immutable after creation; only status, payment, and tracking fields mutate.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Item
	ShippingAddress Address
	BillingAddress  Address
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	PaymentIntentID string
	CouponCode      string
	CouponDiscount  decimal.Decimal
	Notes           string

	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      string

	CreatedAt time.Time
}

// Sentinel errors for checkout and cancellation.
var (
	// ErrEmptyCart is returned when checkout is attempted with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when the order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
)

// ProductUnavailableError indicates a cart line references a product that no
// longer exists or is inactive.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// PaymentInitiationError indicates the payment provider refused to create an
// intent. The order referenced by OrderNumber remains persisted in pending
// status with no intent attached.
type PaymentInitiationError struct {
	OrderNumber string
	Err         error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed for order %s: %v", e.OrderNumber, e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }

// InvalidTransitionError indicates a status change that the state machine
// forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// FindByNumber returns the order with the given number. A non-empty
	// userID restricts the lookup to that user's orders.
	// Returns ErrNotFound when no matching order exists.
	FindByNumber(ctx context.Context, number, userID string) (*Order, error)

	// ListByUser returns the user's orders, newest first, optionally
	// filtered by status. Status "" means all.
	ListByUser(ctx context.Context, userID string, status Status, limit, offset int) ([]Order, error)

	// SetPaymentIntent attaches a provider intent ID to the order.
	SetPaymentIntent(ctx context.Context, orderID, intentID string) error

	// MarkCancelled sets the order to cancelled with a timestamp and
	// reason, conditional on the current status still being cancellable.
	// It returns false without mutating anything when the condition fails.
	MarkCancelled(ctx context.Context, orderID, reason string, at time.Time) (bool, error)
}
