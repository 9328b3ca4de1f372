package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

type memStore struct {
	byAsset map[string]model.Realm
	byTrain map[string]model.Realm
	unused  []int32
	deleted []int64
}

func newMemStore() *memStore {
	return &memStore{byAsset: map[string]model.Realm{}, byTrain: map[string]model.Realm{}}
}

func (s *memStore) RealmByAsset(owner, asset string) (model.Realm, bool, error) {
	row, ok := s.byAsset[owner+"/"+asset]
	return row, ok, nil
}
func (s *memStore) RealmByTrain(owner string, train int32) (model.Realm, bool, error) {
	row, ok := s.byTrain[keyTrain(owner, train)]
	return row, ok, nil
}
func (s *memStore) PickUnusedTrain(owner string) (int32, bool, error) {
	if len(s.unused) == 0 {
		return 0, false, nil
	}
	train := s.unused[0]
	s.unused = s.unused[1:]
	return train, true, nil
}
func (s *memStore) RealmACLForDelete(owner, asset string) (int64, model.AccessList[model.SimpleAccess], bool, error) {
	row, ok := s.byAsset[owner+"/"+asset]
	if !ok {
		return 0, model.AccessList[model.SimpleAccess]{}, false, nil
	}
	return row.DBID, row.AdminACL, true, nil
}
func (s *memStore) DeleteRealmDirect(dbID int64) error {
	s.deleted = append(s.deleted, dbID)
	return nil
}

func keyTrain(owner string, train int32) string {
	return owner + "#" + string(rune('0'+train))
}

type stubController struct {
	denied map[string]bool
}

func (s *stubController) TryAdd(p model.Principal, isSuperuser bool, out chan<- destination.ControlOutput, now time.Time) error {
	if s.denied[p.Name] {
		return assert.AnError
	}
	return nil
}
func (s *stubController) RemovePlayer(p model.Principal) {}
func (s *stubController) Capabilities() map[string]bool  { return map[string]bool{} }

func newRealmFactory(nextDBID *int64) RealmFactory {
	return func(launch realm.Launch, now time.Time) (*destination.Manager, model.Realm, error) {
		row := model.Realm{Owner: launch.Owner, Asset: launch.Asset}
		if launch.Kind == realm.LaunchExisting {
			row.DBID = launch.DBID
			row.Owner = "carol"
			row.Asset = "existing-asset"
		} else {
			*nextDBID++
			row.DBID = *nextDBID
		}
		mgr := destination.New(&stubController{}, model.Local(row.Owner))
		return mgr, row, nil
	}
}

func TestMove_SpawnsNewRealmOnFirstAccess(t *testing.T) {
	store := newMemStore()
	var dbid int64
	d := New(store, newRealmFactory(&dbid), "spadina.example")

	out := make(chan destination.ControlOutput, 4)
	req := AdmissionRequest{Player: model.Local("alice"), Out: out}
	err := d.Move(req, LaunchTarget{Kind: LaunchByAsset, Owner: "alice", Asset: "home"}, time.Unix(0, 0))
	require.NoError(t, err)

	count, ok := d.CheckActivity("alice", "home")
	assert.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestMove_CachesResolverAcrossCalls(t *testing.T) {
	store := newMemStore()
	var dbid int64
	factoryCalls := 0
	factory := func(launch realm.Launch, now time.Time) (*destination.Manager, model.Realm, error) {
		factoryCalls++
		dbid++
		row := model.Realm{Owner: launch.Owner, Asset: launch.Asset, DBID: dbid}
		mgr := destination.New(&stubController{}, model.Local(row.Owner))
		return mgr, row, nil
	}
	d := New(store, factory, "spadina.example")

	target := LaunchTarget{Kind: LaunchByAsset, Owner: "alice", Asset: "home"}
	out1 := make(chan destination.ControlOutput, 4)
	require.NoError(t, d.Move(AdmissionRequest{Player: model.Local("alice"), Out: out1}, target, time.Unix(0, 0)))

	out2 := make(chan destination.ControlOutput, 4)
	require.NoError(t, d.Move(AdmissionRequest{Player: model.Local("bob"), Out: out2}, target, time.Unix(0, 0)))

	assert.Equal(t, 1, factoryCalls)
	count, _ := d.CheckActivity("alice", "home")
	assert.Equal(t, 2, count)
}

func TestMove_ByTrain_WaitsWhenNoneUnused(t *testing.T) {
	store := newMemStore()
	var dbid int64
	d := New(store, newRealmFactory(&dbid), "spadina.example")

	out := make(chan destination.ControlOutput, 4)
	err := d.Move(AdmissionRequest{Player: model.Local("alice"), Out: out}, LaunchTarget{Kind: LaunchByTrain, Owner: "carol", Train: 2}, time.Unix(0, 0))
	var waitErr *WaitingForTrainError
	require.ErrorAs(t, err, &waitErr)
}

func TestClearCache_ForcesReresolve(t *testing.T) {
	store := newMemStore()
	var dbid int64
	factoryCalls := 0
	factory := func(launch realm.Launch, now time.Time) (*destination.Manager, model.Realm, error) {
		factoryCalls++
		dbid++
		row := model.Realm{Owner: launch.Owner, Asset: launch.Asset, DBID: dbid}
		mgr := destination.New(&stubController{}, model.Local(row.Owner))
		return mgr, row, nil
	}
	d := New(store, factory, "spadina.example")
	target := LaunchTarget{Kind: LaunchByAsset, Owner: "alice", Asset: "home"}

	out := make(chan destination.ControlOutput, 4)
	require.NoError(t, d.Move(AdmissionRequest{Player: model.Local("alice"), Out: out}, target, time.Unix(0, 0)))
	d.ClearCache()

	// ClearCache only drops the resolver shortcut; the already-live realm
	// manager is still found in the directory's live realm map, so no second
	// spawn occurs.
	out2 := make(chan destination.ControlOutput, 4)
	require.NoError(t, d.Move(AdmissionRequest{Player: model.Local("bob"), Out: out2}, target, time.Unix(0, 0)))

	assert.Equal(t, 1, factoryCalls)
	count, _ := d.CheckActivity("alice", "home")
	assert.Equal(t, 2, count)
}

func TestDeleteRealm_NonLivePathChecksACLAndDeletes(t *testing.T) {
	store := newMemStore()
	store.byAsset["alice/home"] = model.Realm{
		Owner: "alice", Asset: "home", DBID: 7,
		AdminACL: model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessDeny},
	}
	var dbid int64
	d := New(store, newRealmFactory(&dbid), "spadina.example")

	ok, err := d.DeleteRealm("alice", "home", model.Local("mallory"), false, time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.deleted)

	ok, err = d.DeleteRealm("alice", "home", model.Local("anyone"), true, time.Unix(0, 0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{7}, store.deleted)
}
