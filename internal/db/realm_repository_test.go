package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

func TestRealmRepository_InsertLoadRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRealmRepository(pool)

	row := model.Realm{
		Owner: "alice",
		Asset: "deadbeef",
		Name:  "alice's realm",
		Seed:  42,
		AccessACL: model.AccessList[model.Privilege]{Default: model.PrivilegeAccess},
		AdminACL:  model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessDeny},
		Settings: map[string]model.SettingValue{
			"difficulty": {Kind: model.SettingNum, Num: 3},
		},
		PuzzleState: []byte(`[true,false]`),
		Initialized: true,
	}

	dbID, err := repo.InsertRealm(row)
	require.NoError(t, err)
	require.NotZero(t, dbID)

	loaded, err := repo.LoadRealm(dbID)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Owner)
	assert.Equal(t, "deadbeef", loaded.Asset)
	assert.Equal(t, model.PrivilegeAccess, loaded.AccessACL.Default)
	assert.Equal(t, model.SimpleAccessDeny, loaded.AdminACL.Default)
	assert.Equal(t, float64(3), loaded.Settings["difficulty"].Num)
	assert.True(t, loaded.Initialized)

	found, ok, err := repo.RealmByAsset("alice", "deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dbID, found.DBID)

	_, ok, err = repo.RealmByAsset("alice", "not-there")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRealmRepository_SaveStateAndDelete(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRealmRepository(pool)

	dbID, err := repo.InsertRealm(model.Realm{Owner: "bob", Asset: "abc", Seed: 1})
	require.NoError(t, err)

	require.NoError(t, repo.SaveState(dbID, []byte(`[1,2,3]`), true))
	loaded, err := repo.LoadRealm(dbID)
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2,3]`), loaded.PuzzleState)
	assert.True(t, loaded.Solved)

	require.NoError(t, repo.DeleteRealm(dbID))
	_, ok, err := repo.RealmByAsset("bob", "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRealmRepository_RealmACLForDeleteMissing(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRealmRepository(pool)

	_, _, found, err := repo.RealmACLForDelete("nobody", "nothing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRealmRepository_PickUnusedTrainClaimsOnce(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRealmRepository(pool)

	_, err := pool.Exec(t.Context(),
		`INSERT INTO realm_trains (owner, train, asset, allowed_first) VALUES ($1, $2, $3, TRUE)`,
		"carol", 0, "train-asset")
	require.NoError(t, err)

	train, ok, err := repo.PickUnusedTrain("carol")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(0), train)

	_, ok, err = repo.PickUnusedTrain("carol")
	require.NoError(t, err)
	assert.False(t, ok, "already-claimed train slot must not be picked twice")
}
