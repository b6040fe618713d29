package basket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

func seedEntry(t *testing.T, repo *Repository, buyerID int64, reservedAt time.Time) models.BasketEntry {
	t.Helper()
	entry := models.BasketEntry{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		ProductUnitID:      uuid.New(),
		ReservedPriceCents: 2500,
		ReservedAt:         reservedAt,
	}
	require.NoError(t, repo.Insert(context.Background(), &entry))
	return entry
}

func TestFindByIDScopedToOwner(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedEntry(t, repo, 1, time.Now().UTC())

	found, err := repo.FindByID(ctx, 1, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, found.ID)

	_, err = repo.FindByID(ctx, 2, entry.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedEntry(t, repo, 1, time.Now().UTC())

	deleted, err := repo.Delete(ctx, entry.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.Delete(ctx, entry.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestListByBuyerOldestFirst(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	newer := seedEntry(t, repo, 5, now)
	older := seedEntry(t, repo, 5, now.Add(-time.Minute))
	seedEntry(t, repo, 6, now)

	entries, err := repo.ListByBuyer(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, older.ID, entries[0].ID)
	require.Equal(t, newer.ID, entries[1].ID)
}

func TestListExpiredHonorsCutoffAndLimit(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	oldest := seedEntry(t, repo, 1, now.Add(-3*time.Hour))
	seedEntry(t, repo, 1, now.Add(-2*time.Hour))
	seedEntry(t, repo, 1, now) // still fresh

	entries, err := repo.ListExpired(ctx, now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, oldest.ID, entries[0].ID)

	entries, err = repo.ListExpired(ctx, now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, oldest.ID, entries[0].ID)
}
