package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon code may be applied to a purchase with
// the given subtotal by the given user. Validation is read-only: it never
// consumes a use. Redemption is a separate step performed at order creation.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*Coupon, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate applies the eligibility checks in a fixed precedence order: code
// exists, validity window and active flag, minimum purchase, per-user limit.
// The first failing check wins. On success it returns the coupon so the
// caller can compute the discount.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if !c.IsValid(now) {
		if c.IsExpired(now) {
			return nil, ErrExpired
		}
		return nil, ErrNotActive
	}

	if subtotal.LessThan(c.MinimumPurchase) {
		return nil, &BelowMinimumError{Minimum: c.MinimumPurchase}
	}

	// Guests have no usage history to count against.
	if userID != "" && c.UsagePerUser > 0 {
		used, err := v.repo.UserUsageCount(ctx, c.Code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usage")
		}
		if used >= c.UsagePerUser {
			return nil, ErrUserLimitReached
		}
	}

	return c, nil
}
