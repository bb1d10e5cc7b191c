package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResultStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "fp1", "g12", []byte(`{"code":0}`)))
	got, ok, err := s.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"code":0}`, string(got))

	require.NoError(t, s.Put(ctx, "fp1", "g12", []byte(`{"code":1}`)))
	got, _, err = s.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":1}`, string(got))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Entries)
	assert.EqualValues(t, len(`{"code":1}`), st.Bytes)
	assert.EqualValues(t, 2, st.Hits)
}

func TestResultStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "fp", "clang", []byte("payload")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))
	assert.Equal(t, path, s.Path())
}

func TestResultStorePrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "old", "gcc", []byte("a")))
	cutoff := time.Now().Add(time.Second)

	n, err := s.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "fresh", "gcc", []byte("b")))
	n, err = s.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
