package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/vecfs/internal/store"
	"github.com/fyrsmithlabs/vecfs/internal/store/storetest"
)

func TestDB(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		db, err := Open(Config{Path: t.TempDir()}, zaptest.NewLogger(t))
		require.NoError(t, err)
		return db
	})
}

func TestDB_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		db, err := Open(Config{InMemory: true}, nil)
		require.NoError(t, err)
		return db
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{}, nil)
	assert.ErrorIs(t, err, store.ErrInvalidConfig)
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	var b store.Batch
	b.PutResource("doc:::1", []byte("payload"))
	require.NoError(t, db.Commit(ctx, "@@node/main", b))
	require.NoError(t, db.AddAccessLog(ctx, "@@node/main", store.AccessLog{Path: "/a", Kind: store.AccessRead}))
	require.NoError(t, db.Close())

	db, err = Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	defer db.Close()

	data, err := db.GetResource(ctx, "@@node/main", "doc:::1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, db.AddAccessLog(ctx, "@@node/main", store.AccessLog{Path: "/b", Kind: store.AccessRead}))
	logs, err := db.ListAccessLogs(ctx, "@@node/main", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "/b", logs[0].Path)
}
