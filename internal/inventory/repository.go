package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// candidateAttempts bounds how many purchasable units a single Reserve call
// will try before reporting OutOfStock under contention.
const candidateAttempts = 3

// Repository mutates product unit counters. Every mutation is a single
// compare-and-set statement so the 0 <= reserved <= available invariant holds
// under concurrent writers without relying on dialect-specific row locks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads one unit.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductUnit, error) {
	var unit models.ProductUnit
	err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product unit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product unit")
	}
	return &unit, nil
}

// Reserve picks a purchasable unit matching the requested listing and
// increments its reserved counter. Two concurrent buyers racing for the last
// unit serialize on the guarded update: exactly one succeeds, the other gets
// OutOfStock.
func (r *Repository) Reserve(ctx context.Context, category, variant string, priceCents int64) (*models.ProductUnit, error) {
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}

	for attempt := 0; attempt < candidateAttempts; attempt++ {
		var candidate models.ProductUnit
		err := r.db.WithContext(ctx).
			Where("category = ? AND variant = ? AND price_cents = ? AND available_qty > reserved_qty",
				category, variant, priceCents).
			Order("created_at ASC").
			First(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "no purchasable unit for listing")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select reservation candidate")
		}

		res := r.db.WithContext(ctx).Exec(`
			UPDATE product_units
			SET reserved_qty = reserved_qty + 1,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND available_qty > reserved_qty
		`, candidate.ID)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve product unit")
		}
		if res.RowsAffected == 1 {
			candidate.ReservedQty++
			return &candidate, nil
		}
		// Lost the race for this candidate; try the next one.
	}

	return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "no purchasable unit for listing")
}

// Release decrements the reserved counter, floored at zero so a double
// release cannot corrupt the invariant.
func (r *Repository) Release(ctx context.Context, unitID uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_units
		SET reserved_qty = reserved_qty - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND reserved_qty > 0
	`, unitID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release product unit")
	}
	return nil
}

// Consume converts one reserved unit into a sale: available and reserved both
// drop by one. Returns OutOfStock when the unit is already gone, which fails
// the caller's transaction. Reservation should make that impossible.
func (r *Repository) Consume(ctx context.Context, unitID uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_units
		SET available_qty = available_qty - 1,
			reserved_qty = CASE WHEN reserved_qty > 0 THEN reserved_qty - 1 ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_qty > 0
	`, unitID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume product unit")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "product unit no longer available")
	}
	return nil
}
