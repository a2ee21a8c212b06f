package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/velora/storefront/internal/domain/order"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateOrder runs checkout for the owner's cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{Owner: ownerFrom(r)}
	var billing order.Address
	hasBilling := false

	ok := h.readBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "email":
				v, err := d.Str()
				req.Email = v
				return err
			case "shipping_address":
				addr, err := decodeAddress(d)
				req.ShippingAddress = addr
				return err
			case "billing_address":
				addr, err := decodeAddress(d)
				billing = addr
				hasBilling = true
				return err
			case "payment_method":
				v, err := d.Str()
				req.PaymentMethod = order.PaymentMethod(v)
				return err
			case "coupon_code":
				v, err := d.Str()
				req.CouponCode = v
				return err
			case "notes":
				v, err := d.Str()
				req.Notes = v
				return err
			default:
				return d.Skip()
			}
		})
	})
	if !ok {
		return
	}
	if hasBilling {
		req.BillingAddress = &billing
	}
	if !req.PaymentMethod.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_payment_method",
			"unknown payment method "+strconv.Quote(string(req.PaymentMethod)))
		return
	}

	result, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, result.Order) })
			if result.Payment != nil {
				e.Field("payment", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("intent_id", func(e *jx.Encoder) { e.Str(result.Payment.ID) })
						e.Field("client_secret", func(e *jx.Encoder) { e.Str(result.Payment.ClientSecret) })
					})
				})
			}
		})
	})
}

// ListOrders returns the authenticated user's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_identity", "user identity required")
		return
	}

	status := order.Status(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)

	orders, err := h.orders.List(r.Context(), userID, status, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

// GetOrder returns a single order, scoped to the requesting user when a user
// identity is present.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("number"), r.Header.Get(headerUserID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CancelOrder cancels a pending or confirmed order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var reason string
	ok := h.readBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "reason" {
				v, err := d.Str()
				reason = v
				return err
			}
			return d.Skip()
		})
	})
	if !ok {
		return
	}

	o, err := h.orders.Cancel(r.Context(), r.PathValue("number"), r.Header.Get(headerUserID), reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// TrackOrder is the public tracking view: status and timestamps only, no
// owner scoping and no pricing details.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Track(r.Context(), r.PathValue("number"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
			if o.TrackingNumber != "" {
				e.Field("tracking_number", func(e *jx.Encoder) { e.Str(o.TrackingNumber) })
			}
			if o.TrackingURL != "" {
				e.Field("tracking_url", func(e *jx.Encoder) { e.Str(o.TrackingURL) })
			}
			optTimeField(e, "estimated_delivery", o.EstimatedDelivery)
			optTimeField(e, "shipped_at", o.ShippedAt)
			optTimeField(e, "delivered_at", o.DeliveredAt)
			optTimeField(e, "cancelled_at", o.CancelledAt)
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("sku", func(e *jx.Encoder) { e.Str(it.SKU) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Num(jx.Num(it.UnitPrice.StringFixed(2))) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(it.Total.StringFixed(2))) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { e.Num(jx.Num(o.Subtotal.StringFixed(2))) })
		e.Field("shipping_cost", func(e *jx.Encoder) { e.Num(jx.Num(o.ShippingCost.StringFixed(2))) })
		e.Field("tax", func(e *jx.Encoder) { e.Num(jx.Num(o.Tax.StringFixed(2))) })
		e.Field("discount", func(e *jx.Encoder) { e.Num(jx.Num(o.Discount.StringFixed(2))) })
		e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(o.Total.StringFixed(2))) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		optTimeField(e, "cancelled_at", o.CancelledAt)
		if o.CancelReason != "" {
			e.Field("cancel_reason", func(e *jx.Encoder) { e.Str(o.CancelReason) })
		}
	})
}

func decodeAddress(d *jx.Decoder) (order.Address, error) {
	var a order.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := map[string]*string{
			"first_name":  &a.FirstName,
			"last_name":   &a.LastName,
			"company":     &a.Company,
			"address1":    &a.Address1,
			"address2":    &a.Address2,
			"city":        &a.City,
			"state":       &a.State,
			"postal_code": &a.PostalCode,
			"country":     &a.Country,
			"phone":       &a.Phone,
		}[key]
		if !ok {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
	return a, err
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimeField(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	e.Field(name, func(e *jx.Encoder) { encodeTime(e, *t) })
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
