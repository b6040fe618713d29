package basket

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/discount"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
)

// sweepBatchSize bounds how many expired entries one sweep pass handles.
const sweepBatchSize = 200

// Params wires the basket service dependencies.
type Params struct {
	DB        *db.Client
	Baskets   *Repository
	Inventory *inventory.Repository
	Buyers    *buyers.Repository
	Discounts *discount.Repository
	Outbox    *outbox.Service
	Logger    *logger.Logger
	TTL       time.Duration
}

// Service owns the reserve-on-add basket lifecycle. Every mutation pairs an
// inventory counter change with the matching basket entry change in one
// transaction.
type Service struct {
	db        *db.Client
	baskets   *Repository
	inventory *inventory.Repository
	buyers    *buyers.Repository
	discounts *discount.Repository
	outbox    *outbox.Service
	logg      *logger.Logger
	ttl       time.Duration
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("basket service: db client is required")
	case p.Baskets == nil:
		return nil, errors.New("basket service: basket repository is required")
	case p.Inventory == nil:
		return nil, errors.New("basket service: inventory repository is required")
	case p.Buyers == nil:
		return nil, errors.New("basket service: buyer repository is required")
	case p.Discounts == nil:
		return nil, errors.New("basket service: discount repository is required")
	case p.Outbox == nil:
		return nil, errors.New("basket service: outbox service is required")
	case p.Logger == nil:
		return nil, errors.New("basket service: logger is required")
	}
	if p.TTL <= 0 {
		p.TTL = 15 * time.Minute
	}
	return &Service{
		db:        p.DB,
		baskets:   p.Baskets,
		inventory: p.Inventory,
		buyers:    p.Buyers,
		discounts: p.Discounts,
		outbox:    p.Outbox,
		logg:      p.Logger,
		ttl:       p.TTL,
	}, nil
}

// AddInput identifies the listing a buyer wants one unit of.
type AddInput struct {
	BuyerID    int64
	Username   string
	Category   string
	Variant    string
	PriceCents int64
}

// Add reserves one purchasable unit for the listing and records the basket
// entry, atomically. When no unit is purchasable the whole transaction rolls
// back and the buyer gets an out-of-stock error.
func (s *Service) Add(ctx context.Context, in AddInput) (*models.BasketEntry, error) {
	ctx = s.logg.WithBuyerID(ctx, in.BuyerID)

	var entry *models.BasketEntry
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.buyers.WithTx(tx).Ensure(ctx, in.BuyerID, in.Username); err != nil {
			return err
		}

		unit, err := s.inventory.WithTx(tx).Reserve(ctx, in.Category, in.Variant, in.PriceCents)
		if err != nil {
			return err
		}

		entry = &models.BasketEntry{
			ID:                 uuid.New(),
			BuyerID:            in.BuyerID,
			ProductUnitID:      unit.ID,
			ReservedPriceCents: unit.PriceCents,
			ReservedAt:         time.Now().UTC(),
		}
		return s.baskets.WithTx(tx).Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "entry_id", entry.ID), "basket entry added")
	return entry, nil
}

// Remove drops one entry and returns its unit to the pool.
func (s *Service) Remove(ctx context.Context, buyerID int64, entryID uuid.UUID) error {
	ctx = s.logg.WithBuyerID(ctx, buyerID)

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.baskets.WithTx(tx).FindByID(ctx, buyerID, entryID)
		if err != nil {
			return err
		}

		deleted, err := s.baskets.WithTx(tx).Delete(ctx, entry.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}

		if err := s.inventory.WithTx(tx).Release(ctx, entry.ProductUnitID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateProductUnit,
			AggregateID:   entry.ProductUnitID.String(),
			Data: payloads.ReservationReleasedEvent{
				ProductUnitID: entry.ProductUnitID,
				BuyerID:       buyerID,
				Reason:        "removed_by_buyer",
			},
		})
	})
}

// Clear empties the buyer's basket, releasing every reserved unit.
func (s *Service) Clear(ctx context.Context, buyerID int64) (int, error) {
	ctx = s.logg.WithBuyerID(ctx, buyerID)

	var released int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		entries, err := s.baskets.WithTx(tx).ListByBuyer(ctx, buyerID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			deleted, err := s.baskets.WithTx(tx).Delete(ctx, entry.ID)
			if err != nil {
				return err
			}
			if !deleted {
				continue
			}
			if err := s.inventory.WithTx(tx).Release(ctx, entry.ProductUnitID); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// View is the read model returned to the storefront.
type View struct {
	Entries         []models.BasketEntry `json:"entries"`
	SubtotalCents   int64                `json:"subtotalCents"`
	DiscountCents   int64                `json:"discountCents"`
	TotalCents      int64                `json:"totalCents"`
	AppliedCode     string               `json:"appliedCode,omitempty"`
	DiscountProblem string               `json:"discountProblem,omitempty"`
}

// Get returns the basket with totals. A discount code is re-validated and
// re-applied on every call, never cached: the basket it applies to may have
// changed since the last look.
func (s *Service) Get(ctx context.Context, buyerID int64, code string) (*View, error) {
	entries, err := s.baskets.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	view := &View{Entries: entries}
	for _, entry := range entries {
		view.SubtotalCents += entry.ReservedPriceCents
	}
	view.TotalCents = view.SubtotalCents

	if code == "" {
		return view, nil
	}

	dc, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		view.DiscountProblem = "discount code not found"
		return view, nil
	}

	resolution, err := discount.Resolve(view.SubtotalCents, dc, time.Now())
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			view.DiscountProblem = appErr.Message()
			return view, nil
		}
		return nil, err
	}

	view.AppliedCode = dc.Code
	view.DiscountCents = resolution.DiscountCents
	view.TotalCents = resolution.FinalTotalCents
	return view, nil
}

// SweepExpired releases entries whose reservation outlived the TTL. Each entry
// is handled in its own transaction so one poisoned row cannot wedge the whole
// sweep. Returns how many entries were released.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	entries, err := s.baskets.ListExpired(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	var swept int
	for _, entry := range entries {
		entry := entry
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			deleted, err := s.baskets.WithTx(tx).Delete(ctx, entry.ID)
			if err != nil {
				return err
			}
			if !deleted {
				// Checked out or removed between the list and this tx.
				return nil
			}
			if err := s.inventory.WithTx(tx).Release(ctx, entry.ProductUnitID); err != nil {
				return err
			}
			now := time.Now().UTC()
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBasketExpired,
				AggregateType: enums.AggregateBasket,
				AggregateID:   entry.ID.String(),
				Data: payloads.BasketExpiredEvent{
					BuyerID:      entry.BuyerID,
					EntryID:      entry.ID,
					ProductUnit:  entry.ProductUnitID,
					ReservedAt:   entry.ReservedAt,
					ReleasedAt:   now,
					TTLExceededS: int64(now.Sub(entry.ReservedAt.Add(s.ttl)) / time.Second),
				},
			})
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "entry_id", entry.ID), "sweeping expired basket entry", err)
			continue
		}
		swept++
	}
	return swept, nil
}
