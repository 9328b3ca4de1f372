package asset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

func TestStorePutResolveRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), map[string]bool{"core": true})
	require.NoError(t, err)

	doc := Document{
		Platforms: []PlatformDoc{{Width: 1, Length: 1}},
	}
	hash, err := store.Put("realm-v1", "alice", []string{"core"}, nil, "CC0", nil, doc, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	again, err := store.Put("realm-v1", "alice", []string{"core"}, nil, "CC0", nil, doc, time.Now())
	require.NoError(t, err)
	assert.Equal(t, hash, again, "identical content must hash and write idempotently")

	a, err := store.Resolve(hash)
	require.NoError(t, err)
	assert.Equal(t, hash, a.Hash)
	assert.Equal(t, "realm-v1", a.Kind)
	assert.ElementsMatch(t, []string{"core"}, a.Capabilities)
}

func TestStoreResolveMissing(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Resolve("deadbeef")
	require.Error(t, err)
	var assetErr *model.AssetError
	require.True(t, errors.As(err, &assetErr))
	assert.Equal(t, model.AssetErrorMissing, assetErr.Kind)
}
