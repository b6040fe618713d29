package discount

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Repository loads discount codes and reseller rules.
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

// FindByCode loads a code by its public identifier. Returns nil (no error)
// when the code does not exist so callers control the validation message.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, nil
	}
	var row models.DiscountCode
	err := r.db.WithContext(ctx).First(&row, "code = ?", trimmed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	return &row, nil
}

// IncrementUsage bumps uses_count, guarded against exceeding the cap.
func (r *Repository) IncrementUsage(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE discount_codes
		SET uses_count = uses_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ? AND (max_uses IS NULL OR uses_count < max_uses)
	`, code)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment discount usage")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "discount code usage limit reached")
	}
	return nil
}

// ResellerPercentage resolves the (buyer, category) rule; zero when absent.
func (r *Repository) ResellerPercentage(ctx context.Context, buyerID int64, category string) (int, error) {
	var rule models.ResellerDiscount
	err := r.db.WithContext(ctx).
		First(&rule, "buyer_id = ? AND category = ?", buyerID, category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reseller discount")
	}
	return rule.Percentage, nil
}
