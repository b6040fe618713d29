package basket

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Repository persists basket entries, the DB mirror of reserved stock.
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

// Insert appends an entry for a freshly reserved unit.
func (r *Repository) Insert(ctx context.Context, entry *models.BasketEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert basket entry")
	}
	return nil
}

// FindByID loads an entry scoped to its owner.
func (r *Repository) FindByID(ctx context.Context, buyerID int64, entryID uuid.UUID) (*models.BasketEntry, error) {
	var entry models.BasketEntry
	err := r.db.WithContext(ctx).
		First(&entry, "id = ? AND buyer_id = ?", entryID, buyerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "basket entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket entry")
	}
	return &entry, nil
}

// ListByBuyer returns every entry of one buyer, oldest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID int64) ([]models.BasketEntry, error) {
	var entries []models.BasketEntry
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("reserved_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list basket entries")
	}
	return entries, nil
}

// Delete removes an entry. Callers treat zero affected rows as an
// already-removed entry.
func (r *Repository) Delete(ctx context.Context, entryID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.BasketEntry{}, "id = ?", entryID)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete basket entry")
	}
	return res.RowsAffected > 0, nil
}

// ListExpired returns entries reserved before the cutoff, oldest first.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.BasketEntry, error) {
	var entries []models.BasketEntry
	q := r.db.WithContext(ctx).
		Where("reserved_at < ?", cutoff).
		Order("reserved_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired basket entries")
	}
	return entries, nil
}
