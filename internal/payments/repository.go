package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// PendingRepository persists the link between an open payment intent and the
// buyer action it completes.
type PendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PendingRepository) WithTx(tx *gorm.DB) *PendingRepository {
	return &PendingRepository{db: tx}
}

// Insert writes a new pending settlement.
func (r *PendingRepository) Insert(ctx context.Context, row *models.PendingSettlement) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert pending settlement")
	}
	return nil
}

// FindByPaymentID loads by the processor's payment id. Returns nil when the
// row is gone, which reconciliation treats as an already-settled intent.
func (r *PendingRepository) FindByPaymentID(ctx context.Context, paymentID string) (*models.PendingSettlement, error) {
	var row models.PendingSettlement
	err := r.db.WithContext(ctx).First(&row, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending settlement")
	}
	return &row, nil
}

// Delete removes the row. Reports whether this call removed it, so two
// concurrent settlement attempts for the same payment cannot both win.
func (r *PendingRepository) Delete(ctx context.Context, paymentID string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.PendingSettlement{}, "payment_id = ?", paymentID)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete pending settlement")
	}
	return res.RowsAffected > 0, nil
}
