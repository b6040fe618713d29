package purchases

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/discount"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/types"
)

// FinalizerParams wires the finalizer dependencies.
type FinalizerParams struct {
	Inventory *inventory.Repository
	Baskets   *basket.Repository
	Discounts *discount.Repository
	Records   *Repository
	Logger    *logger.Logger
}

// Finalizer converts a paid settlement's basket snapshot into consumed stock
// and purchase records. It always runs inside the caller's transaction: if
// any item cannot be delivered the whole purchase rolls back.
type Finalizer struct {
	inventory *inventory.Repository
	baskets   *basket.Repository
	discounts *discount.Repository
	records   *Repository
	logg      *logger.Logger
}

func NewFinalizer(p FinalizerParams) (*Finalizer, error) {
	switch {
	case p.Inventory == nil:
		return nil, errors.New("finalizer: inventory repository is required")
	case p.Baskets == nil:
		return nil, errors.New("finalizer: basket repository is required")
	case p.Discounts == nil:
		return nil, errors.New("finalizer: discount repository is required")
	case p.Records == nil:
		return nil, errors.New("finalizer: purchase repository is required")
	case p.Logger == nil:
		return nil, errors.New("finalizer: logger is required")
	}
	return &Finalizer{
		inventory: p.Inventory,
		baskets:   p.Baskets,
		discounts: p.Discounts,
		records:   p.Records,
		logg:      p.Logger,
	}, nil
}

// Result summarizes one finalized purchase.
type Result struct {
	ItemCount      int
	TotalPaidCents int64
	Categories     []string
}

// Finalize delivers every item in the pending settlement's snapshot. Prices
// come from the snapshot, not the live catalog, so the buyer pays what was
// quoted at checkout.
func (f *Finalizer) Finalize(ctx context.Context, tx *gorm.DB, pending *models.PendingSettlement) (*Result, error) {
	if tx == nil {
		return nil, errors.New("finalizer: transaction required")
	}

	snapshot, err := types.UnmarshalSnapshot(pending.BasketSnapshot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCritical, err, "decoding basket snapshot")
	}
	if len(snapshot.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCritical, "paid settlement has an empty snapshot")
	}

	now := time.Now().UTC()
	result := &Result{}
	seenCategories := map[string]bool{}

	for _, item := range snapshot.Items {
		if err := f.inventory.WithTx(tx).Consume(ctx, item.ProductUnitID); err != nil {
			return nil, err
		}

		// The entry may already be gone if the reservation was swept while
		// the payment confirmed; the snapshot still delivers.
		if _, err := f.baskets.WithTx(tx).Delete(ctx, item.BasketEntryID); err != nil {
			return nil, err
		}

		paid := item.PricePaidCents()
		record := models.PurchaseRecord{
			BuyerID:        pending.BuyerID,
			ProductName:    item.Name,
			Category:       item.Category,
			Variant:        item.Variant,
			PricePaidCents: paid,
			Location:       item.Location,
			PurchasedAt:    now,
		}
		if err := f.records.WithTx(tx).Insert(ctx, &record); err != nil {
			return nil, err
		}

		result.ItemCount++
		result.TotalPaidCents += paid
		if !seenCategories[item.Category] {
			seenCategories[item.Category] = true
			result.Categories = append(result.Categories, item.Category)
		}
	}

	if pending.DiscountCode != nil {
		err := f.discounts.WithTx(tx).IncrementUsage(ctx, *pending.DiscountCode)
		if err != nil {
			// The buyer already paid; a cap race at this point must not
			// unwind the delivery.
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeConflict {
				f.logg.Warn(f.logg.WithField(ctx, "code", *pending.DiscountCode),
					"discount usage cap hit after payment")
			} else {
				return nil, err
			}
		}
	}

	return result, nil
}
