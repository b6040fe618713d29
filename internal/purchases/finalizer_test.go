package purchases

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/discount"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:purchases_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE product_units (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  variant TEXT NOT NULL,
  location TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE basket_entries (
  id TEXT PRIMARY KEY,
  buyer_id INTEGER NOT NULL,
  product_unit_id TEXT NOT NULL,
  reserved_price_cents INTEGER NOT NULL,
  reserved_at DATETIME NOT NULL
);`,
		`CREATE TABLE discount_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  value INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  max_uses INTEGER,
  uses_count INTEGER NOT NULL DEFAULT 0,
  expiry_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE purchase_records (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  buyer_id INTEGER NOT NULL,
  product_name TEXT NOT NULL,
  category TEXT NOT NULL,
  variant TEXT NOT NULL,
  price_paid_cents INTEGER NOT NULL,
  location TEXT NOT NULL,
  purchased_at DATETIME NOT NULL
);`,
	} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

func newTestFinalizer(t *testing.T, conn *gorm.DB) *Finalizer {
	t.Helper()
	fin, err := NewFinalizer(FinalizerParams{
		Inventory: inventory.NewRepository(conn),
		Baskets:   basket.NewRepository(conn),
		Discounts: discount.NewRepository(conn),
		Records:   NewRepository(conn),
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return fin
}

type seededItem struct {
	unit  models.ProductUnit
	entry models.BasketEntry
	item  types.BasketSnapshotItem
}

func seedItem(t *testing.T, conn *gorm.DB, buyerID int64, category string, priceCents int64, resellerPct int) seededItem {
	t.Helper()
	unit := models.ProductUnit{
		ID: uuid.New(), Name: "Sample " + category, Category: category, Variant: "3g",
		Location: "centrum", PriceCents: priceCents, AvailableQty: 1, ReservedQty: 1,
	}
	require.NoError(t, conn.Create(&unit).Error)

	entry := models.BasketEntry{
		ID: uuid.New(), BuyerID: buyerID, ProductUnitID: unit.ID,
		ReservedPriceCents: priceCents, ReservedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&entry).Error)

	return seededItem{unit: unit, entry: entry, item: types.BasketSnapshotItem{
		ProductUnitID:      unit.ID,
		BasketEntryID:      entry.ID,
		Name:               unit.Name,
		Category:           category,
		Variant:            unit.Variant,
		Location:           unit.Location,
		CatalogPriceCents:  priceCents,
		ResellerPercentage: resellerPct,
	}}
}

func pendingFor(t *testing.T, buyerID int64, code *string, items ...types.BasketSnapshotItem) *models.PendingSettlement {
	t.Helper()
	raw, err := types.MarshalSnapshot(items)
	require.NoError(t, err)
	return &models.PendingSettlement{
		PaymentID:      "pay-1",
		BuyerID:        buyerID,
		IsPurchase:     true,
		BasketSnapshot: raw,
		DiscountCode:   code,
	}
}

func TestFinalizeDeliversSnapshot(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	first := seedItem(t, conn, 1, "flower", 2500, 0)
	second := seedItem(t, conn, 1, "edibles", 1500, 10)

	var result *Result
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = fin.Finalize(ctx, tx, pendingFor(t, 1, nil, first.item, second.item))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.ItemCount)
	require.Equal(t, int64(2500+1350), result.TotalPaidCents)
	require.ElementsMatch(t, []string{"flower", "edibles"}, result.Categories)

	var unit models.ProductUnit
	require.NoError(t, conn.First(&unit, "id = ?", first.unit.ID).Error)
	require.Equal(t, 0, unit.AvailableQty)
	require.Equal(t, 0, unit.ReservedQty)

	var entries int64
	require.NoError(t, conn.Model(&models.BasketEntry{}).Count(&entries).Error)
	require.Equal(t, int64(0), entries)

	var records []models.PurchaseRecord
	require.NoError(t, conn.Order("price_paid_cents DESC").Find(&records).Error)
	require.Len(t, records, 2)
	require.Equal(t, int64(2500), records[0].PricePaidCents)
	require.Equal(t, int64(1350), records[1].PricePaidCents)
}

func TestFinalizeToleratesSweptEntry(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	item := seedItem(t, conn, 1, "flower", 2500, 0)
	// The sweeper got here first: entry gone, unit released then re-reserved
	// state collapsed to available only.
	require.NoError(t, conn.Delete(&models.BasketEntry{}, "id = ?", item.entry.ID).Error)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := fin.Finalize(ctx, tx, pendingFor(t, 1, nil, item.item))
		return err
	})
	require.NoError(t, err)

	var records int64
	require.NoError(t, conn.Model(&models.PurchaseRecord{}).Count(&records).Error)
	require.Equal(t, int64(1), records)
}

func TestFinalizeRollsBackWhenItemExhausted(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	good := seedItem(t, conn, 1, "flower", 2500, 0)
	bad := seedItem(t, conn, 1, "edibles", 1500, 0)
	require.NoError(t, conn.Model(&models.ProductUnit{}).
		Where("id = ?", bad.unit.ID).
		Updates(map[string]any{"available_qty": 0, "reserved_qty": 0}).Error)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := fin.Finalize(ctx, tx, pendingFor(t, 1, nil, good.item, bad.item))
		return err
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())

	// Nothing from the first item may survive the rollback.
	var records int64
	require.NoError(t, conn.Model(&models.PurchaseRecord{}).Count(&records).Error)
	require.Equal(t, int64(0), records)

	var unit models.ProductUnit
	require.NoError(t, conn.First(&unit, "id = ?", good.unit.ID).Error)
	require.Equal(t, 1, unit.AvailableQty)
	require.Equal(t, 1, unit.ReservedQty)

	var entries int64
	require.NoError(t, conn.Model(&models.BasketEntry{}).Count(&entries).Error)
	require.Equal(t, int64(2), entries)
}

func TestFinalizeEmptySnapshot(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	raw, err := types.MarshalSnapshot(nil)
	require.NoError(t, err)
	pending := &models.PendingSettlement{PaymentID: "pay-2", BuyerID: 1, IsPurchase: true, BasketSnapshot: raw}

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := fin.Finalize(ctx, tx, pending)
		return err
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeCritical, typed.Code())
}

func TestFinalizeRecordsDiscountUsage(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	item := seedItem(t, conn, 1, "flower", 2500, 0)
	require.NoError(t, conn.Create(&models.DiscountCode{
		ID: uuid.New(), Code: "TEN", Type: enums.DiscountTypePercentage, Value: 10, IsActive: true,
	}).Error)

	code := "TEN"
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := fin.Finalize(ctx, tx, pendingFor(t, 1, &code, item.item))
		return err
	})
	require.NoError(t, err)

	var stored models.DiscountCode
	require.NoError(t, conn.First(&stored, "code = ?", "TEN").Error)
	require.Equal(t, 1, stored.UsesCount)
}

func TestFinalizeToleratesDiscountCapRace(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	fin := newTestFinalizer(t, conn)
	ctx := context.Background()

	item := seedItem(t, conn, 1, "flower", 2500, 0)
	maxUses := 1
	require.NoError(t, conn.Create(&models.DiscountCode{
		ID: uuid.New(), Code: "LAST", Type: enums.DiscountTypeFixed, Value: 100,
		IsActive: true, MaxUses: &maxUses, UsesCount: 1,
	}).Error)

	code := "LAST"
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := fin.Finalize(ctx, tx, pendingFor(t, 1, &code, item.item))
		return err
	})
	require.NoError(t, err)

	var records int64
	require.NoError(t, conn.Model(&models.PurchaseRecord{}).Count(&records).Error)
	require.Equal(t, int64(1), records)
}
