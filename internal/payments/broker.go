package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/discount"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/internal/purchases"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
	"github.com/ovasilenko/chatmarket-backend/pkg/types"
)

// SettlementCurrency is the fiat currency every target amount is priced in.
const SettlementCurrency = "eur"

var centsFactor = decimal.NewFromInt(100)

// Processor is the external payment API surface the broker needs.
type Processor interface {
	EstimateConversion(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency, asset string) (*Estimate, error)
	MinimumAmount(ctx context.Context, fiatCurrency, asset string) (decimal.Decimal, error)
	CreateIntent(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency, asset, orderReference, description string) (*Intent, error)
}

// BrokerParams wires the broker dependencies.
type BrokerParams struct {
	DB        *db.Client
	Processor Processor
	Pending   *PendingRepository
	Baskets   *basket.Repository
	Buyers    *buyers.Repository
	Discounts *discount.Repository
	Inventory *inventory.Repository
	Finalizer *purchases.Finalizer
	Outbox    *outbox.Service
	Logger    *logger.Logger
}

// Broker opens external payment intents for checkouts and wallet top-ups and
// records the pending settlement that the webhook reconciler later completes.
type Broker struct {
	db        *db.Client
	processor Processor
	pending   *PendingRepository
	baskets   *basket.Repository
	buyers    *buyers.Repository
	discounts *discount.Repository
	inventory *inventory.Repository
	finalizer *purchases.Finalizer
	outbox    *outbox.Service
	logg      *logger.Logger
}

func NewBroker(p BrokerParams) (*Broker, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("payment broker: db client is required")
	case p.Processor == nil:
		return nil, errors.New("payment broker: processor client is required")
	case p.Pending == nil:
		return nil, errors.New("payment broker: pending repository is required")
	case p.Baskets == nil:
		return nil, errors.New("payment broker: basket repository is required")
	case p.Buyers == nil:
		return nil, errors.New("payment broker: buyer repository is required")
	case p.Discounts == nil:
		return nil, errors.New("payment broker: discount repository is required")
	case p.Inventory == nil:
		return nil, errors.New("payment broker: inventory repository is required")
	case p.Finalizer == nil:
		return nil, errors.New("payment broker: purchase finalizer is required")
	case p.Outbox == nil:
		return nil, errors.New("payment broker: outbox service is required")
	case p.Logger == nil:
		return nil, errors.New("payment broker: logger is required")
	}
	return &Broker{
		db:        p.DB,
		processor: p.Processor,
		pending:   p.Pending,
		baskets:   p.Baskets,
		buyers:    p.Buyers,
		discounts: p.Discounts,
		inventory: p.Inventory,
		finalizer: p.Finalizer,
		outbox:    p.Outbox,
		logg:      p.Logger,
	}, nil
}

// IntentResult is returned to the storefront so the buyer can fund the
// intent. When the wallet already covered the total, SettledFromBalance is
// set and the payment fields are empty.
type IntentResult struct {
	PaymentID          string          `json:"paymentId,omitempty"`
	PayAddress         string          `json:"payAddress,omitempty"`
	PayAmount          decimal.Decimal `json:"payAmount"`
	Asset              string          `json:"asset,omitempty"`
	TargetAmountCents  int64           `json:"targetAmountCents"`
	OrderReference     string          `json:"orderReference,omitempty"`
	SettledFromBalance bool            `json:"settledFromBalance"`
}

// OpenCheckout snapshots the buyer's basket, re-validates the discount code
// against the current total, and opens a payment intent for the payable
// amount. A wallet balance covering the total settles on the spot instead.
// Otherwise the basket stays reserved; stock only moves when the settlement
// finalizes.
func (b *Broker) OpenCheckout(ctx context.Context, buyerID int64, asset, discountCode string) (*IntentResult, error) {
	ctx = b.logg.WithBuyerID(ctx, buyerID)
	asset = normalizeAsset(asset)
	if asset == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement asset is required")
	}

	buyer, err := b.buyers.FindByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	entries, err := b.baskets.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
	}

	items, err := b.snapshotItems(ctx, buyer, entries)
	if err != nil {
		return nil, err
	}
	snapshot := types.BasketSnapshot{Version: types.BasketSnapshotVersion, Items: items}
	// The discount code applies to the catalog total. Reseller percentages
	// only lower the per-item price written to the purchase record.
	subtotal := snapshot.CatalogTotalCents()

	var codeRef *string
	total := subtotal
	if discountCode != "" {
		dc, err := b.discounts.FindByCode(ctx, discountCode)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found")
		}
		resolution, err := discount.Resolve(subtotal, dc, time.Now())
		if err != nil {
			return nil, err
		}
		total = resolution.FinalTotalCents
		codeRef = &dc.Code
	}
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payable total must be positive")
	}

	// A wallet that already covers the total settles immediately with no
	// external intent.
	if buyer.BalanceCents >= total {
		return b.settleFromBalance(ctx, buyerID, total, codeRef, &snapshot)
	}

	fiat := centsToFiat(total)
	minFiat, err := b.processor.MinimumAmount(ctx, SettlementCurrency, asset)
	if err != nil {
		return nil, err
	}
	// A checkout total is fixed by the basket, so a below-minimum amount is
	// rejected rather than silently inflated.
	if fiat.LessThan(minFiat) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("total %s %s is below the processor minimum %s", fiat, SettlementCurrency, minFiat))
	}

	return b.openIntent(ctx, openIntentInput{
		BuyerID:      buyerID,
		Asset:        asset,
		TargetCents:  total,
		IsPurchase:   true,
		Snapshot:     &snapshot,
		DiscountCode: codeRef,
		Description:  fmt.Sprintf("checkout of %d item(s)", len(items)),
	})
}

// OpenTopUp opens a payment intent that credits the buyer's wallet. Unlike a
// checkout the amount is elastic, so a below-minimum request is rounded up to
// the processor minimum.
func (b *Broker) OpenTopUp(ctx context.Context, buyerID int64, amountCents int64, asset string) (*IntentResult, error) {
	ctx = b.logg.WithBuyerID(ctx, buyerID)
	asset = normalizeAsset(asset)
	if asset == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement asset is required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be positive")
	}
	if _, err := b.buyers.FindByID(ctx, buyerID); err != nil {
		return nil, err
	}

	minFiat, err := b.processor.MinimumAmount(ctx, SettlementCurrency, asset)
	if err != nil {
		return nil, err
	}
	target := amountCents
	if minCents := fiatToCentsCeil(minFiat); target < minCents {
		target = minCents
	}

	return b.openIntent(ctx, openIntentInput{
		BuyerID:     buyerID,
		Asset:       asset,
		TargetCents: target,
		IsPurchase:  false,
		Description: "wallet top-up",
	})
}

type openIntentInput struct {
	BuyerID      int64
	Asset        string
	TargetCents  int64
	IsPurchase   bool
	Snapshot     *types.BasketSnapshot
	DiscountCode *string
	Description  string
}

func (b *Broker) openIntent(ctx context.Context, in openIntentInput) (*IntentResult, error) {
	fiat := centsToFiat(in.TargetCents)

	estimate, err := b.processor.EstimateConversion(ctx, fiat, SettlementCurrency, in.Asset)
	if err != nil {
		return nil, err
	}

	orderReference := uuid.NewString()
	intent, err := b.processor.CreateIntent(ctx, fiat, SettlementCurrency, in.Asset, orderReference, in.Description)
	if err != nil {
		return nil, err
	}
	paymentID := intent.PaymentID.String()
	ctx = b.logg.WithPaymentID(ctx, paymentID)

	row := models.PendingSettlement{
		PaymentID:           paymentID,
		BuyerID:             in.BuyerID,
		SettlementAsset:     in.Asset,
		TargetAmountCents:   in.TargetCents,
		ExpectedAssetAmount: estimate.EstimatedAmount,
		IsPurchase:          in.IsPurchase,
		DiscountCode:        in.DiscountCode,
		OrderReference:      orderReference,
	}
	if in.Snapshot != nil {
		raw, err := types.MarshalSnapshot(in.Snapshot.Items)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serializing basket snapshot")
		}
		row.BasketSnapshot = raw
	}

	err = b.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := b.pending.WithTx(tx).Insert(ctx, &row); err != nil {
			return err
		}
		return b.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentIntentOpened,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   paymentID,
			Data: payloads.PaymentIntentOpenedEvent{
				PaymentID:         paymentID,
				BuyerID:           in.BuyerID,
				Asset:             in.Asset,
				TargetAmountCents: in.TargetCents,
				IsPurchase:        in.IsPurchase,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	b.logg.Info(ctx, "payment intent opened")
	return &IntentResult{
		PaymentID:         paymentID,
		PayAddress:        intent.PayAddress,
		PayAmount:         intent.PayAmount,
		Asset:             in.Asset,
		TargetAmountCents: in.TargetCents,
		OrderReference:    orderReference,
	}, nil
}

// settleFromBalance debits the wallet and delivers the basket in one
// transaction, bypassing the external processor.
func (b *Broker) settleFromBalance(ctx context.Context, buyerID int64, total int64, codeRef *string, snapshot *types.BasketSnapshot) (*IntentResult, error) {
	raw, err := types.MarshalSnapshot(snapshot.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serializing basket snapshot")
	}
	// Synthetic settlement record for the finalizer; it is never persisted
	// because there is nothing for the webhook to reconcile.
	pending := models.PendingSettlement{
		PaymentID:         "balance:" + uuid.NewString(),
		BuyerID:           buyerID,
		TargetAmountCents: total,
		IsPurchase:        true,
		DiscountCode:      codeRef,
		BasketSnapshot:    raw,
	}
	ctx = b.logg.WithPaymentID(ctx, pending.PaymentID)

	var result *purchases.Result
	err = b.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := b.buyers.WithTx(tx).Debit(ctx, buyerID, total); err != nil {
			return err
		}
		result, err = b.finalizer.Finalize(ctx, tx, &pending)
		if err != nil {
			return err
		}
		if err := b.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseFinalized,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   pending.PaymentID,
			Data: payloads.PurchaseFinalizedEvent{
				PaymentID:      pending.PaymentID,
				BuyerID:        buyerID,
				ItemCount:      result.ItemCount,
				TotalPaidCents: result.TotalPaidCents,
				FinalizedAt:    time.Now().UTC(),
			},
		}); err != nil {
			return err
		}
		return b.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBuyerNotification,
			AggregateType: enums.AggregateNotification,
			AggregateID:   fmt.Sprintf("%d", buyerID),
			Data: payloads.BuyerNotificationEvent{
				BuyerID: buyerID,
				Text:    fmt.Sprintf("Paid %d.%02d from your balance. Your order of %d item(s) is complete.", total/100, total%100, result.ItemCount),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	b.logg.Info(b.logg.WithField(ctx, "total_cents", total), "checkout settled from balance")
	return &IntentResult{
		TargetAmountCents:  total,
		SettledFromBalance: true,
	}, nil
}

// snapshotItems copies everything the finalizer will need out of the live
// rows. Reseller percentages are frozen here so a rule change between
// checkout and settlement cannot reprice a paid basket.
func (b *Broker) snapshotItems(ctx context.Context, buyer *models.Buyer, entries []models.BasketEntry) ([]types.BasketSnapshotItem, error) {
	pctByCategory := map[string]int{}

	items := make([]types.BasketSnapshotItem, 0, len(entries))
	for _, entry := range entries {
		unit, err := b.inventory.FindByID(ctx, entry.ProductUnitID)
		if err != nil {
			return nil, err
		}

		var pct int
		if buyer.IsReseller {
			cached, ok := pctByCategory[unit.Category]
			if !ok {
				cached, err = b.discounts.ResellerPercentage(ctx, buyer.ID, unit.Category)
				if err != nil {
					return nil, err
				}
				pctByCategory[unit.Category] = cached
			}
			pct = cached
		}

		items = append(items, types.BasketSnapshotItem{
			ProductUnitID:      unit.ID,
			BasketEntryID:      entry.ID,
			Name:               unit.Name,
			Category:           unit.Category,
			Variant:            unit.Variant,
			Location:           unit.Location,
			CatalogPriceCents:  entry.ReservedPriceCents,
			ResellerPercentage: pct,
		})
	}
	return items, nil
}

func normalizeAsset(asset string) string {
	return strings.ToLower(strings.TrimSpace(asset))
}

func centsToFiat(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(centsFactor)
}

func fiatToCentsCeil(fiat decimal.Decimal) int64 {
	return fiat.Mul(centsFactor).Ceil().IntPart()
}
