package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/directory"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
	"github.com/udisondev/la2go/internal/selfhosted"
	"github.com/udisondev/la2go/internal/wire"
)

type noStore struct{}

func (noStore) RealmByAsset(owner, asset string) (model.Realm, bool, error) { return model.Realm{}, false, nil }
func (noStore) RealmByTrain(owner string, train int32) (model.Realm, bool, error) {
	return model.Realm{}, false, nil
}
func (noStore) PickUnusedTrain(owner string) (int32, bool, error) { return 0, false, nil }
func (noStore) RealmACLForDelete(owner, asset string) (int64, model.AccessList[model.SimpleAccess], bool, error) {
	return 0, model.AccessList[model.SimpleAccess]{}, false, nil
}
func (noStore) DeleteRealmDirect(dbID int64) error { return nil }

func noFactory(launch realm.Launch, now time.Time) (*destination.Manager, model.Realm, error) {
	return nil, model.Realm{}, &directory.ResolutionFailedError{}
}

type memSelfHostedStore struct{}

func (memSelfHostedStore) SaveAccessACL(string, model.AccessList[model.Privilege]) error { return nil }
func (memSelfHostedStore) SaveAdminACL(string, model.AccessList[model.SimpleAccess]) error {
	return nil
}
func (memSelfHostedStore) SaveAnnouncements(string, []model.Announcement) error { return nil }
func (memSelfHostedStore) SaveNameAndDirectory(string, string, bool) error      { return nil }
func (memSelfHostedStore) SaveHostChat(string, model.Principal, string, time.Time) error {
	return nil
}

func newTestDirectory() *directory.Directory {
	return directory.New(noStore{}, noFactory, "spadina.example")
}

func newTestSession(p model.Principal, dir *directory.Directory) *Session {
	return New(p, false, map[string]bool{}, []byte("avatar"), dir, "spadina.example", nil, nil, nil)
}

func TestLocationChange_NoWhereRespondsImmediately(t *testing.T) {
	dir := newTestDirectory()
	s := newTestSession(model.Local("alice"), dir)

	s.handleLocationChange(wire.LocationTarget{Kind: wire.LocationTargetNoWhere})

	resp := <-s.outbound
	assert.Equal(t, wire.ClientResponseLocationChange, resp.Kind)
	assert.Equal(t, wire.LocationNoWhere, resp.Location)
}

func TestAttachHome_UnknownOwnerReportsResolutionError(t *testing.T) {
	dir := newTestDirectory()
	s := newTestSession(model.Local("alice"), dir)

	s.attachHome()

	resp := <-s.outbound
	assert.Equal(t, wire.ClientResponseLocationChange, resp.Kind)
	assert.Equal(t, wire.LocationResolutionError, resp.Location)
}

func newSelfHostedManager(owner string) (*destination.Manager, chan selfhosted.HostEvent, chan selfhosted.HostCommand) {
	toOwner := make(chan selfhosted.HostEvent, 8)
	fromOwner := make(chan selfhosted.HostCommand, 8)
	ctrl := selfhosted.New(owner, "spadina.example",
		model.AccessList[model.Privilege]{Default: model.PrivilegeAccess},
		model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessAllow},
		toOwner, fromOwner, memSelfHostedStore{})
	go ctrl.Run()
	adapter := destination.NewSelfHostedAdapter(ctrl)
	return destination.New(adapter, model.Local(owner)), toOwner, fromOwner
}

func TestAttachHome_AdmitsOwnerAndPumpsGuestBroadcast(t *testing.T) {
	dir := newTestDirectory()
	mgr, _, _ := newSelfHostedManager("alice")
	dir.RegisterHosting("alice", mgr)

	s := newTestSession(model.Local("alice"), dir)
	go s.Run()
	defer s.Close()

	s.inbound <- wire.ClientRequest{Kind: wire.ClientRequestLocationChange, Target: wire.LocationTarget{Kind: wire.LocationTargetHome}}
	resp := <-s.outbound
	require.Equal(t, wire.ClientResponseLocationChange, resp.Kind)
	require.Equal(t, wire.LocationHosting, resp.Location)

	// A second player joining the same destination broadcasts their
	// avatar to everyone already present, including the owner session.
	guestOut := make(chan destination.ControlOutput, 4)
	require.NoError(t, mgr.Add(model.Local("bob"), map[string]bool{}, []byte("bob-avatar"), guestOut, time.Now()))

	broadcast := <-s.outbound
	assert.Equal(t, wire.ClientResponseBroadcast, broadcast.Kind)
	assert.Equal(t, []byte("bob-avatar"), broadcast.Broadcast)
}

func TestHandleGuestRequest_ForwardsOpaquePayloadToOwner(t *testing.T) {
	dir := newTestDirectory()
	mgr, toOwner, _ := newSelfHostedManager("alice")
	dir.RegisterHosting("alice", mgr)

	guest := newTestSession(model.Local("bob"), dir)
	defer guest.Close()
	guest.admitToLocal(mgr, "alice", "", true)
	<-guest.outbound // location-change ack

	guest.handleGuestRequest(realm.RealmRequest{Kind: realm.RequestSendMessage})

	event := <-toOwner
	require.Equal(t, selfhosted.HostEventRequest, event.Kind)
	var decoded realm.RealmRequest
	require.NoError(t, msgpack.Unmarshal(event.Request, &decoded))
	assert.Equal(t, realm.RequestSendMessage, decoded.Kind)
}

func TestMoveTo_UnresolvableRedirectReportsResolutionError(t *testing.T) {
	dir := newTestDirectory()
	s := newTestSession(model.Local("alice"), dir)

	s.moveTo(model.RealmLink{Owner: "nowhere-realm", Asset: "does-not-exist"})

	resp := <-s.outbound
	assert.Equal(t, wire.ClientResponseLocationChange, resp.Kind)
	assert.Equal(t, wire.LocationResolutionError, resp.Location)
}
