package destination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

type stubDestination struct {
	capabilities map[string]bool
	denied       map[string]bool
	removed      []model.Principal
}

func (s *stubDestination) TryAdd(p model.Principal, isSuperuser bool, out chan<- ControlOutput, now time.Time) error {
	if s.denied[p.Name] {
		return assert.AnError
	}
	return nil
}
func (s *stubDestination) RemovePlayer(p model.Principal) { s.removed = append(s.removed, p) }
func (s *stubDestination) Capabilities() map[string]bool  { return s.capabilities }

func TestAdd_RequiresCapabilities(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{"holiday": true}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	err := m.Add(model.Local("bob"), map[string]bool{}, nil, out, time.Unix(0, 0))
	var capErr *MissingCapabilitiesError
	require.ErrorAs(t, err, &capErr)
}

func TestAdd_BroadcastsAvatarToPeers(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}}
	m := New(dest, model.Local("owner"))

	aliceOut := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("alice"), map[string]bool{}, []byte("alice-avatar"), aliceOut, time.Unix(0, 0)))

	bobOut := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("bob"), map[string]bool{}, []byte("bob-avatar"), bobOut, time.Unix(0, 0)))

	select {
	case out := <-aliceOut:
		assert.Equal(t, ControlBroadcast, out.Kind)
		assert.Equal(t, []byte("bob-avatar"), out.Payload)
	default:
		t.Fatal("expected alice to receive bob's avatar broadcast")
	}
}

func TestAdd_DeniedByControllerACL(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}, denied: map[string]bool{"mallory": true}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	err := m.Add(model.Local("mallory"), map[string]bool{}, nil, out, time.Unix(0, 0))
	var permErr *PermissionDeniedError
	require.ErrorAs(t, err, &permErr)
}

func TestDispatch_QuitEjectsEveryone(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("bob"), map[string]bool{}, nil, out, time.Unix(0, 0)))

	m.Dispatch(ControlOutput{Kind: ControlQuit})
	assert.Empty(t, m.Players())
	assert.Contains(t, dest.removed, model.Local("bob"))
}

func TestFollowConsent_AcceptAndExpire(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("bob"), map[string]bool{}, nil, out, time.Unix(0, 0)))

	now := time.Unix(0, 0)
	id, err := m.RequestFollow(model.Local("alice"), model.Local("bob"), now)
	require.NoError(t, err)

	source, err := m.AcceptFollow(model.Local("bob"), id, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.Local("alice"), source)

	_, err = m.AcceptFollow(model.Local("bob"), id, now.Add(2*time.Minute))
	assert.Error(t, err)

	id2, err := m.RequestFollow(model.Local("alice"), model.Local("bob"), now)
	require.NoError(t, err)
	_, err = m.AcceptFollow(model.Local("bob"), id2, now.Add(followExpiry+time.Second))
	assert.Error(t, err)
}

func TestConsensualEmote_RequestAndDeny(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("bob"), map[string]bool{}, nil, out, time.Unix(0, 0)))

	now := time.Unix(0, 0)
	id, err := m.RequestConsensualEmote(model.Local("alice"), model.Local("bob"), "hug", now)
	require.NoError(t, err)

	m.DenyConsensualEmote(model.Local("bob"), id)
	_, _, err = m.AcceptConsensualEmote(model.Local("bob"), id, now)
	assert.Error(t, err)
}

func TestTick_GarbageCollectsExpiredRequests(t *testing.T) {
	dest := &stubDestination{capabilities: map[string]bool{}}
	m := New(dest, model.Local("owner"))

	out := make(chan ControlOutput, 4)
	require.NoError(t, m.Add(model.Local("bob"), map[string]bool{}, nil, out, time.Unix(0, 0)))

	now := time.Unix(0, 0)
	id, err := m.RequestFollow(model.Local("alice"), model.Local("bob"), now)
	require.NoError(t, err)

	m.Tick(now.Add(activityGCInterval + time.Second))
	_, err = m.AcceptFollow(model.Local("bob"), id, now.Add(activityGCInterval+time.Second))
	assert.Error(t, err)
}
