// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSqliteStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqlitePutGetRoundTrip(t *testing.T) {
	s := newSqliteStore(t)
	ctx := context.Background()

	exp := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{
		Token:       "tok-1",
		TableID:     "table-1",
		TableNumber: 1,
		IssuedAt:    time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		ExpiresAt:   &exp,
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.TableID, got.TableID)
	assert.Equal(t, rec.TableNumber, got.TableNumber)
	assert.True(t, got.IssuedAt.Equal(rec.IssuedAt))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.False(t, got.Revoked)
}

func TestSqliteGetUnknownReturnsNil(t *testing.T) {
	s := newSqliteStore(t)

	got, err := s.GetByToken(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSqliteRevokeMarksAllForTable(t *testing.T) {
	s := newSqliteStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Put(ctx, Record{Token: "a", TableID: "t1", TableNumber: 1, IssuedAt: now}))
	require.NoError(t, s.Put(ctx, Record{Token: "b", TableID: "t1", TableNumber: 1, IssuedAt: now.Add(time.Second)}))
	require.NoError(t, s.Put(ctx, Record{Token: "c", TableID: "t2", TableNumber: 2, IssuedAt: now}))

	require.NoError(t, s.Revoke(ctx, "t1"))

	for _, tok := range []string{"a", "b"} {
		got, err := s.GetByToken(ctx, tok)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Revoked)
	}

	other, err := s.GetByToken(ctx, "c")
	require.NoError(t, err)
	assert.False(t, other.Revoked)
}

func TestSqliteActiveByTablePrefersNewest(t *testing.T) {
	s := newSqliteStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Put(ctx, Record{Token: "old", TableID: "t1", TableNumber: 1, IssuedAt: now}))
	require.NoError(t, s.Put(ctx, Record{Token: "new", TableID: "t1", TableNumber: 1, IssuedAt: now.Add(time.Minute)}))

	got, err := s.ActiveByTable(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Token)
}

func TestSqliteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.db")
	ctx := context.Background()

	s, err := NewSqliteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Record{Token: "persist", TableID: "t1", TableNumber: 1, IssuedAt: time.Now()}))
	require.NoError(t, s.Close())

	s2, err := NewSqliteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.GetByToken(ctx, "persist")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.TableID)
}

func TestOpenStoreFactory(t *testing.T) {
	s, err := OpenStore("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = OpenStore("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = OpenStore("sqlite", filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s)
	_ = s.Close()

	_, err = OpenStore("badger", "")
	require.Error(t, err)
}
