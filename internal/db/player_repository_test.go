package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

func TestPlayerRepository_GetOrCreateIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPlayerRepository(pool)

	first, err := repo.GetOrCreatePlayer("alice", "hash1")
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Name)
	assert.Equal(t, "hash1", first.PasswordHash)

	second, err := repo.GetOrCreatePlayer("alice", "hash2")
	require.NoError(t, err)
	assert.Equal(t, "hash1", second.PasswordHash, "existing password hash must survive a repeated GetOrCreate")
}

func TestPlayerRepository_BookmarkAddRemoveList(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPlayerRepository(pool)
	_, err := repo.GetOrCreatePlayer("alice", "hash")
	require.NoError(t, err)

	alice := model.Local("alice")
	require.NoError(t, repo.AddBookmark(alice, "realm", "home"))
	require.NoError(t, repo.AddBookmark(alice, "realm", "home")) // duplicate, no-op

	list, err := repo.ListBookmarks(alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "home", list[0].Name)

	require.NoError(t, repo.RemoveBookmark(alice, "realm", "home"))
	list, err = repo.ListBookmarks(alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPlayerRepository_PublicKeyRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPlayerRepository(pool)
	_, err := repo.GetOrCreatePlayer("alice", "hash")
	require.NoError(t, err)

	require.NoError(t, repo.SavePublicKey("alice", "default", []byte{1, 2, 3}))
	key, err := repo.PublicKey("alice", "default")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, key)

	_, err = repo.GetPlayer("nobody")
	require.NoError(t, err)
}
