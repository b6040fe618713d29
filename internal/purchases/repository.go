package purchases

import (
	"context"

	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Repository persists the immutable purchase audit trail.
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

// Insert appends one purchase record. Records are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, record *models.PurchaseRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert purchase record")
	}
	return nil
}

// ListByBuyer returns a buyer's purchase history, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID int64, limit int) ([]models.PurchaseRecord, error) {
	var rows []models.PurchaseRecord
	q := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("purchased_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchase records")
	}
	return rows, nil
}
