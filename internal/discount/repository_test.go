package discount

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:discount_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`
CREATE TABLE discount_codes (
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
);`).Error)
	require.NoError(t, conn.Exec(`
CREATE TABLE reseller_discounts (
  buyer_id INTEGER NOT NULL,
  category TEXT NOT NULL,
  percentage INTEGER NOT NULL,
  updated_at DATETIME,
  PRIMARY KEY (buyer_id, category)
);`).Error)
	return conn
}

func TestFindByCode(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seed := models.DiscountCode{
		ID: uuid.New(), Code: "WELCOME", Type: enums.DiscountTypePercentage,
		Value: 10, IsActive: true,
	}
	require.NoError(t, conn.Create(&seed).Error)

	found, err := repo.FindByCode(ctx, "WELCOME")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, seed.Code, found.Code)

	missing, err := repo.FindByCode(ctx, "NOPE")
	require.NoError(t, err)
	require.Nil(t, missing)

	blank, err := repo.FindByCode(ctx, "   ")
	require.NoError(t, err)
	require.Nil(t, blank)
}

func TestIncrementUsageRespectsCap(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	maxUses := 2
	seed := models.DiscountCode{
		ID: uuid.New(), Code: "CAPPED", Type: enums.DiscountTypeFixed,
		Value: 500, IsActive: true, MaxUses: &maxUses, UsesCount: 1,
	}
	require.NoError(t, conn.Create(&seed).Error)

	require.NoError(t, repo.IncrementUsage(ctx, "CAPPED"))

	err := repo.IncrementUsage(ctx, "CAPPED")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())

	var stored models.DiscountCode
	require.NoError(t, conn.First(&stored, "code = ?", "CAPPED").Error)
	require.Equal(t, 2, stored.UsesCount)
}

func TestIncrementUsageUncapped(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seed := models.DiscountCode{
		ID: uuid.New(), Code: "OPEN", Type: enums.DiscountTypeFixed,
		Value: 500, IsActive: true, UsesCount: 41,
	}
	require.NoError(t, conn.Create(&seed).Error)

	require.NoError(t, repo.IncrementUsage(ctx, "OPEN"))

	var stored models.DiscountCode
	require.NoError(t, conn.First(&stored, "code = ?", "OPEN").Error)
	require.Equal(t, 42, stored.UsesCount)
}

func TestResellerPercentage(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.ResellerDiscount{
		BuyerID: 7, Category: "flower", Percentage: 15,
	}).Error)

	pct, err := repo.ResellerPercentage(ctx, 7, "flower")
	require.NoError(t, err)
	require.Equal(t, 15, pct)

	pct, err = repo.ResellerPercentage(ctx, 7, "edibles")
	require.NoError(t, err)
	require.Equal(t, 0, pct)
}
