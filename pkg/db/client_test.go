package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := "file:db_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`).Error)
	return NewFromConn(conn)
}

func TestWithTxCommits(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO items (name) VALUES ('kept')`).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, client.DB().Table("items").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO items (name) VALUES ('discarded')`).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Table("items").Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := tx.Exec(`INSERT INTO items (name) VALUES ('discarded')`).Error; err != nil {
				return err
			}
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, client.DB().Table("items").Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestPing(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	require.NoError(t, client.Ping(context.Background()))
}
