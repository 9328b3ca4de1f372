package realm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

type memStore struct {
	nextID    int64
	rows      map[int64]model.Realm
	chatCount int
}

func newMemStore() *memStore { return &memStore{rows: map[int64]model.Realm{}} }

func (s *memStore) LoadRealm(id int64) (model.Realm, error) { return s.rows[id], nil }
func (s *memStore) InsertRealm(row model.Realm) (int64, error) {
	s.nextID++
	row.DBID = s.nextID
	s.rows[row.DBID] = row
	return row.DBID, nil
}
func (s *memStore) DeleteRealm(id int64) error { delete(s.rows, id); return nil }
func (s *memStore) SaveState(id int64, state []byte, solved bool) error {
	row := s.rows[id]
	row.PuzzleState, row.Solved = state, solved
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveSettings(id int64, settings map[string]model.SettingValue) error {
	row := s.rows[id]
	row.Settings = settings
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveAccessACL(id int64, acl model.AccessList[model.Privilege]) error {
	row := s.rows[id]
	row.AccessACL = acl
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveAdminACL(id int64, acl model.AccessList[model.SimpleAccess]) error {
	row := s.rows[id]
	row.AdminACL = acl
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveAnnouncements(id int64, ann []model.Announcement) error {
	row := s.rows[id]
	row.Announcements = ann
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveNameAndDirectory(id int64, name string, inDir bool) error {
	row := s.rows[id]
	row.Name, row.InDirectory = name, inDir
	s.rows[id] = row
	return nil
}
func (s *memStore) SaveRealmChat(id int64, sender model.Principal, body string, created time.Time) error {
	s.chatCount++
	return nil
}

type stubResolver struct{ asset model.Asset }

func (r stubResolver) Resolve(hash string) (model.Asset, error) { return r.asset, nil }
func (r stubResolver) SupportedCapabilities() map[string]bool {
	return map[string]bool{"basic": true}
}

type oneButtonConverter struct{}

func (oneButtonConverter) Convert(asset model.Asset) (ConvertedRealm, error) {
	manifold := &navigation.Manifold{
		Platforms:    []navigation.Platform{{Width: 4, Length: 4, Terrain: map[[2]uint32]navigation.Ground{}}},
		DefaultSpawn: navigation.SpawnArea{Platform: 0, MinX: 0, MinY: 0, MaxX: 0, MaxY: 0},
	}
	return ConvertedRealm{
		Pieces:           []puzzle.Piece{puzzle.NewButton(true, puzzle.AnyMark())},
		Rules:            nil,
		Manifold:         manifold,
		SettingsDefaults: map[string]model.SettingValue{},
	}, nil
}

func newTestController(t *testing.T) (*Controller, *memStore) {
	t.Helper()
	store := newMemStore()
	ctrl, err := New(Launch{Kind: LaunchNew, Owner: "alice", Asset: "hash"}, stubResolver{asset: model.Asset{Hash: "hash", Capabilities: []string{"basic"}}}, oneButtonConverter{}, store, time.Unix(0, 0))
	require.NoError(t, err)
	return ctrl, store
}

func TestNew_InsertsAndInitializes(t *testing.T) {
	ctrl, store := newTestController(t)
	assert.Len(t, store.rows, 1)
	assert.True(t, ctrl.row.Initialized)
}

func TestTryAdd_RespectsAccessACL(t *testing.T) {
	ctrl, _ := newTestController(t)
	now := time.Unix(0, 0)

	ctrl.row.AccessACL = model.AccessList[model.Privilege]{Default: model.PrivilegeDeny}
	err := ctrl.TryAdd(model.Local("bob"), false, now)
	assert.Error(t, err)

	err = ctrl.TryAdd(model.Local("carol"), true, now)
	assert.NoError(t, err)
}

func TestHandle_ChangeSetting_RequiresMatchingType(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Unix(0, 0)
	require.NoError(t, ctrl.TryAdd(model.Local("alice"), true, now))

	ctrl.row.Settings["volume"] = model.SettingValue{Kind: model.SettingNum, Num: 1}

	resp, err := ctrl.Handle(RealmRequest{
		Kind:         RequestChangeSetting,
		Caller:       model.Local("alice"),
		SettingName:  "volume",
		SettingValue: model.SettingValue{Kind: model.SettingNum, Num: 0.5},
	}, false, now)
	require.NoError(t, err)
	assert.Equal(t, ResponseSettingChanged, resp.Kind)
	assert.Equal(t, 0.5, store.rows[ctrl.row.DBID].Settings["volume"].Num)

	resp, err = ctrl.Handle(RealmRequest{
		Kind:         RequestChangeSetting,
		Caller:       model.Local("alice"),
		SettingName:  "volume",
		SettingValue: model.SettingValue{Kind: model.SettingBool, Bool: true},
	}, false, now)
	require.NoError(t, err)
	assert.Equal(t, ResponsePermissionError, resp.Kind)
}

func TestHandle_Perform_RotateUpdatesState(t *testing.T) {
	ctrl, _ := newTestController(t)
	now := time.Unix(0, 0)
	require.NoError(t, ctrl.TryAdd(model.Local("alice"), true, now))

	resp, err := ctrl.Handle(RealmRequest{
		Kind:   RequestPerform,
		Caller: model.Local("alice"),
		Actions: []Action{
			{Kind: ActionRotate, RotateDirection: 2},
		},
	}, true, now)
	require.NoError(t, err)
	assert.Equal(t, ResponseUpdateState, resp.Kind)
	assert.Contains(t, resp.PlayerStates, model.Local("alice"))
}

func TestHandle_Delete_RequiresAdmin(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Unix(0, 0)

	resp, err := ctrl.Handle(RealmRequest{Kind: RequestDelete, Caller: model.Local("mallory")}, false, now)
	require.NoError(t, err)
	assert.Equal(t, ResponsePermissionError, resp.Kind)
	assert.Len(t, store.rows, 1)

	resp, err = ctrl.Handle(RealmRequest{Kind: RequestDelete, Caller: model.Local("alice")}, true, now)
	require.NoError(t, err)
	assert.True(t, resp.AccessChangeOK)
	assert.True(t, ctrl.Closed())
	assert.Len(t, store.rows, 0)
}
