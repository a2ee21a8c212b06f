package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/velora/storefront/internal/domain/cart"
)

// GetCart returns the owner's cart with its computed pricing summary.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, sum, err := h.carts.Get(r.Context(), ownerFrom(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, c, sum)
}

// AddCartItem adds a product to the cart, creating it on first use.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  int
	)
	ok := h.readBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "product_id":
				v, err := d.Str()
				productID = v
				return err
			case "quantity":
				v, err := d.Int()
				quantity = v
				return err
			default:
				return d.Skip()
			}
		})
	})
	if !ok {
		return
	}

	owner := ownerFrom(r)
	if _, err := h.carts.AddItem(r.Context(), owner, productID, quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r, owner, http.StatusCreated)
}

// UpdateCartItem sets the quantity of an existing cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var quantity int
	ok := h.readBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "quantity" {
				v, err := d.Int()
				quantity = v
				return err
			}
			return d.Skip()
		})
	})
	if !ok {
		return
	}

	owner := ownerFrom(r)
	if _, err := h.carts.UpdateItem(r.Context(), owner, r.PathValue("productID"), quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r, owner, http.StatusOK)
}

// RemoveCartItem deletes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if _, err := h.carts.RemoveItem(r.Context(), owner, r.PathValue("productID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r, owner, http.StatusOK)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), ownerFrom(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyCoupon validates a coupon against the cart and stores the discount.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	ok := h.readBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "code" {
				v, err := d.Str()
				code = v
				return err
			}
			return d.Skip()
		})
	})
	if !ok {
		return
	}

	owner := ownerFrom(r)
	if _, _, err := h.carts.ApplyCoupon(r.Context(), owner, code); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r, owner, http.StatusOK)
}

// RemoveCoupon clears the applied coupon from the cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if _, err := h.carts.RemoveCoupon(r.Context(), owner); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r, owner, http.StatusOK)
}

// respondCart re-reads the cart so the response carries a fresh summary.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, owner cart.Owner, status int) {
	c, sum, err := h.carts.Get(r.Context(), owner)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeCart(w, status, c, sum)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, c *cart.Cart, sum cart.Summary) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range c.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
							e.Field("unit_price", func(e *jx.Encoder) { e.Num(jx.Num(it.UnitPrice.String())) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						})
					}
				})
			})
			if c.CouponCode != "" {
				e.Field("coupon_code", func(e *jx.Encoder) { e.Str(c.CouponCode) })
			}
			e.Field("summary", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("subtotal", func(e *jx.Encoder) { e.Num(jx.Num(sum.Subtotal.StringFixed(2))) })
					e.Field("shipping", func(e *jx.Encoder) { e.Num(jx.Num(sum.Shipping.StringFixed(2))) })
					e.Field("tax", func(e *jx.Encoder) { e.Num(jx.Num(sum.Tax.StringFixed(2))) })
					e.Field("discount", func(e *jx.Encoder) { e.Num(jx.Num(sum.Discount.StringFixed(2))) })
					e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(sum.Total.StringFixed(2))) })
					e.Field("item_count", func(e *jx.Encoder) { e.Int(sum.ItemCount) })
				})
			})
		})
	})
}
