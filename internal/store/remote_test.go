package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRemote(t *testing.T) (*RedisRemote, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	r, err := NewRedisRemote(context.Background(), mr.Addr())
	require.NoError(t, err)

	return r, mr
}

func TestNewRedisRemote_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisRemote(context.Background(), addr)
	assert.Error(t, err)
}

func TestRedisRemote_FetchMissing(t *testing.T) {
	r, mr := setupTestRemote(t)
	defer mr.Close()
	defer func() { _ = r.Close() }()

	_, found, err := r.Fetch(context.Background(), "user-1")

	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisRemote_PutFetch(t *testing.T) {
	r, mr := setupTestRemote(t)
	defer mr.Close()
	defer func() { _ = r.Close() }()
	ctx := context.Background()

	doc := Document{Tasks: json.RawMessage(`[{"id":"a"}]`), LastUpdated: 1767603600000}
	require.NoError(t, r.Put(ctx, "user-1", doc))

	got, found, err := r.Fetch(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"id":"a"}]`, string(got.Tasks))
	assert.Equal(t, doc.LastUpdated, got.LastUpdated)

	raw := mr.HGet(documentsKey, "user-1")
	assert.JSONEq(t, `{"tasks":[{"id":"a"}],"lastUpdated":1767603600000}`, raw)

	_, found, err = r.Fetch(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisRemote_CorruptDocument(t *testing.T) {
	r, mr := setupTestRemote(t)
	defer mr.Close()
	defer func() { _ = r.Close() }()

	mr.HSet(documentsKey, "user-1", "{not json")

	_, _, err := r.Fetch(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestRedisRemote_ServerGone(t *testing.T) {
	r, mr := setupTestRemote(t)
	defer func() { _ = r.Close() }()
	mr.Close()

	err := r.Put(context.Background(), "user-1", Document{Tasks: json.RawMessage(`[]`)})
	assert.Error(t, err)

	_, _, err = r.Fetch(context.Background(), "user-1")
	assert.Error(t, err)
}
