package discount

import (
	"time"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Resolution is the outcome of applying a general code to a basket total.
type Resolution struct {
	DiscountCents   int64
	FinalTotalCents int64
}

// Resolve computes the payable total after the general discount code. Pure:
// callers re-run it on every basket mutation and once more right before a
// payment intent is opened, because the total it was computed against may
// have changed.
//
// Validation order: existence (a nil code means "no discount"), active flag,
// expiry (UTC comparison), usage cap. The final total is never negative.
func Resolve(totalCents int64, code *models.DiscountCode, now time.Time) (Resolution, error) {
	if totalCents < 0 {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeValidation, "basket total cannot be negative")
	}
	if code == nil {
		return Resolution{DiscountCents: 0, FinalTotalCents: totalCents}, nil
	}
	if err := Validate(code, now); err != nil {
		return Resolution{}, err
	}

	var discount int64
	switch code.Type {
	case enums.DiscountTypePercentage:
		discount = totalCents * code.Value / 100
	case enums.DiscountTypeFixed:
		discount = code.Value
	default:
		return Resolution{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown discount type")
	}

	if discount > totalCents {
		discount = totalCents
	}
	if discount < 0 {
		discount = 0
	}

	return Resolution{
		DiscountCents:   discount,
		FinalTotalCents: totalCents - discount,
	}, nil
}

// Validate checks a code is currently usable.
func Validate(code *models.DiscountCode, now time.Time) error {
	if code == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found")
	}
	if !code.IsActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount code is not active")
	}
	if code.ExpiryAt != nil && now.UTC().After(code.ExpiryAt.UTC()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount code has expired")
	}
	if code.MaxUses != nil && code.UsesCount >= *code.MaxUses {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount code usage limit reached")
	}
	return nil
}

// ResellerPrice applies the per-item reseller percentage to a catalog price.
// Independent of the general code and always multiplicative on the item price.
func ResellerPrice(catalogPriceCents int64, percentage int) int64 {
	if percentage <= 0 {
		return catalogPriceCents
	}
	if percentage >= 100 {
		return 0
	}
	return catalogPriceCents - catalogPriceCents*int64(percentage)/100
}
