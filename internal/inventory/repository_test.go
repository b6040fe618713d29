package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`
CREATE TABLE product_units (
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
);`).Error)
	return conn
}

func seedUnit(t *testing.T, conn *gorm.DB, available, reserved int) models.ProductUnit {
	t.Helper()
	unit := models.ProductUnit{
		ID:           uuid.New(),
		Name:         "Sample",
		Category:     "flower",
		Variant:      "3g",
		Location:     "centrum",
		PriceCents:   2500,
		AvailableQty: available,
		ReservedQty:  reserved,
	}
	require.NoError(t, conn.Create(&unit).Error)
	return unit
}

func TestReserveIncrementsReservedQty(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	unit := seedUnit(t, conn, 2, 0)

	got, err := repo.Reserve(ctx, "flower", "3g", 2500)
	require.NoError(t, err)
	require.Equal(t, unit.ID, got.ID)
	require.Equal(t, 1, got.ReservedQty)

	var stored models.ProductUnit
	require.NoError(t, conn.First(&stored, "id = ?", unit.ID).Error)
	require.Equal(t, 2, stored.AvailableQty)
	require.Equal(t, 1, stored.ReservedQty)
}

func TestReserveLastUnitOnlyOnce(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seedUnit(t, conn, 1, 0)

	_, err := repo.Reserve(ctx, "flower", "3g", 2500)
	require.NoError(t, err)

	_, err = repo.Reserve(ctx, "flower", "3g", 2500)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
}

func TestReserveRequiresCategory(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.Reserve(context.Background(), "", "3g", 2500)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestReserveUnknownListing(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.Reserve(context.Background(), "flower", "10g", 9999)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
}

func TestReleaseFloorsAtZero(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	unit := seedUnit(t, conn, 3, 1)

	require.NoError(t, repo.Release(ctx, unit.ID))
	require.NoError(t, repo.Release(ctx, unit.ID)) // double release is a no-op

	var stored models.ProductUnit
	require.NoError(t, conn.First(&stored, "id = ?", unit.ID).Error)
	require.Equal(t, 0, stored.ReservedQty)
	require.Equal(t, 3, stored.AvailableQty)
}

func TestConsumeDecrementsBothCounters(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	unit := seedUnit(t, conn, 2, 1)

	require.NoError(t, repo.Consume(ctx, unit.ID))

	var stored models.ProductUnit
	require.NoError(t, conn.First(&stored, "id = ?", unit.ID).Error)
	require.Equal(t, 1, stored.AvailableQty)
	require.Equal(t, 0, stored.ReservedQty)
}

func TestConsumeExhaustedUnit(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	unit := seedUnit(t, conn, 0, 0)

	err := repo.Consume(ctx, unit.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
}

func TestFindByIDNotFound(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
