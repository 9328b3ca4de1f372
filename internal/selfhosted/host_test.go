package selfhosted

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

type memStore struct {
	accessACL model.AccessList[model.Privilege]
	adminACL  model.AccessList[model.SimpleAccess]
	ann       []model.Announcement
	name      string
	chat      int
}

func (s *memStore) SaveAccessACL(owner string, acl model.AccessList[model.Privilege]) error {
	s.accessACL = acl
	return nil
}
func (s *memStore) SaveAdminACL(owner string, acl model.AccessList[model.SimpleAccess]) error {
	s.adminACL = acl
	return nil
}
func (s *memStore) SaveAnnouncements(owner string, ann []model.Announcement) error {
	s.ann = ann
	return nil
}
func (s *memStore) SaveNameAndDirectory(owner, name string, inDir bool) error {
	s.name = name
	return nil
}
func (s *memStore) SaveHostChat(owner string, sender model.Principal, body string, created time.Time) error {
	s.chat++
	return nil
}

func newTestController() (*Controller, *memStore, chan HostEvent, chan HostCommand) {
	toOwner := make(chan HostEvent, 10)
	fromOwner := make(chan HostCommand, 10)
	store := &memStore{}
	ctrl := New("alice", "spadina.example", model.AccessList[model.Privilege]{Default: model.PrivilegeAccess}, model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessDeny}, toOwner, fromOwner, store)
	return ctrl, store, toOwner, fromOwner
}

func TestTryAdd_NotifiesOwner(t *testing.T) {
	ctrl, _, toOwner, _ := newTestController()
	out := make(chan HostCommandDelivery, 4)
	err := ctrl.TryAdd(model.Local("bob"), false, nil, out, time.Unix(0, 0))
	require.NoError(t, err)

	select {
	case ev := <-toOwner:
		assert.Equal(t, HostEventPlayerEntered, ev.Kind)
		assert.Equal(t, model.Local("bob"), ev.Player)
	default:
		t.Fatal("expected a HostEventPlayerEntered")
	}
}

func TestTryAdd_DeniedByACL(t *testing.T) {
	ctrl, _, _, _ := newTestController()
	ctrl.accessACL = model.AccessList[model.Privilege]{Default: model.PrivilegeDeny}
	out := make(chan HostCommandDelivery, 4)
	err := ctrl.TryAdd(model.Local("mallory"), false, nil, out, time.Unix(0, 0))
	assert.Error(t, err)
}

func TestDispatch_BroadcastRoutesToGuest(t *testing.T) {
	ctrl, _, _, fromOwner := newTestController()
	out := make(chan HostCommandDelivery, 4)
	require.NoError(t, ctrl.TryAdd(model.Local("bob"), true, nil, out, time.Unix(0, 0)))

	fromOwner <- HostCommand{Kind: HostCommandBroadcast, Targets: []model.Principal{model.Local("bob")}, Payload: []byte("hi")}
	ctrl.dispatch(<-fromOwner)

	select {
	case delivery := <-out:
		assert.Equal(t, HostCommandBroadcast, delivery.Kind)
		assert.Equal(t, []byte("hi"), delivery.Payload)
	default:
		t.Fatal("expected a delivery")
	}
}

func TestDelete_RequiresAdminAndEjectsGuests(t *testing.T) {
	ctrl, _, _, _ := newTestController()
	out := make(chan HostCommandDelivery, 4)
	require.NoError(t, ctrl.TryAdd(model.Local("bob"), true, nil, out, time.Unix(0, 0)))

	assert.False(t, ctrl.Delete(model.Local("mallory"), false, time.Unix(0, 0)))
	assert.True(t, ctrl.Delete(model.Local("alice"), true, time.Unix(0, 0)))
	assert.True(t, ctrl.Closed())

	select {
	case delivery := <-out:
		assert.Equal(t, HostCommandDrop, delivery.Kind)
	default:
		t.Fatal("expected guest to be dropped")
	}
}
