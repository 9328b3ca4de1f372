package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

func TestPeerACLRepository_BanUnban(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPeerACLRepository(pool)

	require.NoError(t, repo.BanPeer("bad.example"))
	require.NoError(t, repo.BanPeer("bad.example")) // duplicate, no-op

	bans, err := repo.BannedPeers()
	require.NoError(t, err)
	assert.True(t, bans["bad.example"])

	require.NoError(t, repo.UnbanPeer("bad.example"))
	bans, err = repo.BannedPeers()
	require.NoError(t, err)
	assert.False(t, bans["bad.example"])
}

func TestPeerACLRepository_ServerACLDefaultsToZeroValue(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPeerACLRepository(pool)

	acl, err := repo.ServerACL("visit")
	require.NoError(t, err)
	assert.Equal(t, model.AccessList[model.SimpleAccess]{}, acl)

	saved := model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessDeny}
	require.NoError(t, repo.SaveServerACL("visit", saved))

	acl, err = repo.ServerACL("visit")
	require.NoError(t, err)
	assert.Equal(t, model.SimpleAccessDeny, acl.Default)
}
