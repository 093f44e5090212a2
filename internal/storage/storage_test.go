// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	data := []byte("dfa spec archive")
	handle, err := store.Put(ctx, data)
	require.NoError(t, err)
	require.Equal(t, ComputeHandle(data), handle)

	// Content addressing: the same bytes map to the same handle.
	again, err := store.Put(ctx, data)
	require.NoError(t, err)
	require.Equal(t, handle, again)

	got, err := store.Get(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, data, got)

	ok, err := store.Exists(ctx, handle)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, handle))
	_, err = store.Get(ctx, handle)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err = store.Exists(ctx, handle)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, store.Delete(ctx, handle), ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(1)
	defer store.Close()
	testStore(t, store)
}

func TestMemoryStoreCapacity(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	_, err := store.Put(context.Background(), []byte("too big for zero capacity"))
	require.ErrorIs(t, err, ErrStorageFull)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	testStore(t, store)
}

func TestFileStoreInvalidHandle(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), Handle("short"))
	require.ErrorIs(t, err, ErrInvalidHandle)
}
