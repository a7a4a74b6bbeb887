// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/store"
)

// Run exercises a backend. open must return a fresh, empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("internals round trip", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		_, err := s.GetProfileFSInternals(ctx, "@@node/main")
		assert.ErrorIs(t, err, store.ErrNotFound)

		blob := store.ProfileBlob{
			Core:            []byte{0x5d, 0x00, 0x01},
			Permissions:     []byte(`{"owner":"@@node/main"}`),
			Subscriptions:   []byte(`{}`),
			SupportedModels: []byte(`["m"]`),
			LastRead:        []byte(`{}`),
		}
		require.NoError(t, s.SaveProfileFSInternals(ctx, "@@node/main", blob))

		got, err := s.GetProfileFSInternals(ctx, "@@node/main")
		require.NoError(t, err)
		assert.Equal(t, blob, got)

		blob.Core = []byte{0x01}
		require.NoError(t, s.SaveProfileFSInternals(ctx, "@@node/main", blob))
		got, err = s.GetProfileFSInternals(ctx, "@@node/main")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01}, got.Core)

		_, err = s.GetProfileFSInternals(ctx, "@@node/other")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("batch commit", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()
		profile := "@@node/main"

		var b store.Batch
		b.PutResource("doc:::1", []byte("resource one"))
		b.PutResource("doc:::2", []byte("resource two"))
		b.PutSourceFileMap("doc:::1", []byte("sfm one"))
		b.Internals = &store.ProfileBlob{Core: []byte("core")}
		require.NoError(t, s.Commit(ctx, profile, b))

		data, err := s.GetResource(ctx, profile, "doc:::2")
		require.NoError(t, err)
		assert.Equal(t, []byte("resource two"), data)

		data, err = s.GetSourceFileMap(ctx, profile, "doc:::1")
		require.NoError(t, err)
		assert.Equal(t, []byte("sfm one"), data)

		var del store.Batch
		del.DeleteResource("doc:::1")
		del.DeleteSourceFileMap("doc:::1")
		require.NoError(t, s.Commit(ctx, profile, del))

		_, err = s.GetResource(ctx, profile, "doc:::1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetSourceFileMap(ctx, profile, "doc:::1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetProfileFSInternals(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, []byte("core"), got.Core)

		_, err = s.GetResource(ctx, "@@node/other", "doc:::2")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("invalid keys", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		assert.ErrorIs(t, s.SaveProfileFSInternals(ctx, "", store.ProfileBlob{}), store.ErrInvalidKey)
		_, err := s.GetResource(ctx, "@@node/main", "")
		assert.ErrorIs(t, err, store.ErrInvalidKey)
	})

	t.Run("access logs newest first", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		for i, path := range []string{"/a", "/b", "/c"} {
			require.NoError(t, s.AddAccessLog(ctx, "@@node/main", store.AccessLog{
				Requester: "@@node/main",
				Path:      path,
				Kind:      store.AccessRead,
				Time:      base.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.AddAccessLog(ctx, "@@node/other", store.AccessLog{Path: "/x", Kind: store.AccessWrite, Time: base}))

		logs, err := s.ListAccessLogs(ctx, "@@node/main", 0)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "/c", logs[0].Path)
		assert.Equal(t, "/a", logs[2].Path)
		assert.True(t, logs[0].Time.Equal(base.Add(2*time.Second)))

		limited, err := s.ListAccessLogs(ctx, "@@node/main", 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("trim access logs keeps newest", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		for i := 0; i < 6; i++ {
			require.NoError(t, s.AddAccessLog(ctx, "@@node/main", store.AccessLog{
				Requester: "@@node/main",
				Path:      fmt.Sprintf("/p%d", i),
				Kind:      store.AccessRead,
				Time:      base.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.AddAccessLog(ctx, "@@node/main2", store.AccessLog{Path: "/x", Kind: store.AccessRead, Time: base}))

		tests := []struct {
			name        string
			keep        int
			wantRemoved int
			wantPaths   []string
		}{
			{"zero keeps everything", 0, 0, []string{"/p5", "/p4", "/p3", "/p2", "/p1", "/p0"}},
			{"more than stored", 10, 0, []string{"/p5", "/p4", "/p3", "/p2", "/p1", "/p0"}},
			{"trim to four", 4, 2, []string{"/p5", "/p4", "/p3", "/p2"}},
			{"trim to one", 1, 3, []string{"/p5"}},
			{"already trimmed", 1, 0, []string{"/p5"}},
		}
		for _, tt := range tests {
			removed, err := s.TrimAccessLogs(ctx, "@@node/main", tt.keep)
			require.NoError(t, err, tt.name)
			assert.Equal(t, tt.wantRemoved, removed, tt.name)

			logs, err := s.ListAccessLogs(ctx, "@@node/main", 0)
			require.NoError(t, err)
			got := make([]string, len(logs))
			for i, l := range logs {
				got[i] = l.Path
			}
			assert.Equal(t, tt.wantPaths, got, tt.name)
		}

		other, err := s.ListAccessLogs(ctx, "@@node/main2", 0)
		require.NoError(t, err)
		assert.Len(t, other, 1)

		_, err = s.TrimAccessLogs(ctx, "", 1)
		assert.ErrorIs(t, err, store.ErrInvalidKey)
	})
}
