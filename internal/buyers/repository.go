package buyers

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Repository manages buyer rows and wallet balances.
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

// Ensure upserts the buyer row keyed by the chat-platform id. The balance is
// never touched on conflict.
func (r *Repository) Ensure(ctx context.Context, buyerID int64, username string) error {
	row := models.Buyer{ID: buyerID, Username: username}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert buyer")
	}
	return nil
}

// FindByID loads one buyer.
func (r *Repository) FindByID(ctx context.Context, buyerID int64) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).First(&buyer, "id = ?", buyerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}
	return &buyer, nil
}

// Credit adds to the wallet balance.
func (r *Repository) Credit(ctx context.Context, buyerID int64, amountCents int64) error {
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Buyer{}).
		Where("id = ?", buyerID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit buyer balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
	}
	return nil
}

// Debit subtracts from the wallet balance, guarded against going negative.
func (r *Repository) Debit(ctx context.Context, buyerID int64, amountCents int64) error {
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Buyer{}).
		Where("id = ? AND balance_cents >= ?", buyerID, amountCents).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit buyer balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient balance")
	}
	return nil
}
