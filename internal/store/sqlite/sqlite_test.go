package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/store"
	"github.com/fyrsmithlabs/vecfs/internal/store/storetest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "vecfs.db"))
	require.NoError(t, err)
	return db
}

func TestDB(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestDB(t)
	})
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrInvalidConfig)
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vecfs.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.SaveProfileFSInternals(ctx, "@@node/main", store.ProfileBlob{Core: []byte("core")}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	blob, err := db.GetProfileFSInternals(ctx, "@@node/main")
	require.NoError(t, err)
	assert.Equal(t, []byte("core"), blob.Core)
}
