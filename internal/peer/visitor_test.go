package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

func TestVisitorTunnel_ForwardsRequestsAndResponses(t *testing.T) {
	connA, connB := newFakeConnPair()
	handlerA := &recordingHandler{}
	handlerB := &recordingHandler{}

	a := NewPeer("remote.example", handlerA)
	b := NewPeer("local.example", handlerB)
	a.Adopt(connA)
	b.Adopt(connB)

	tunnel, err := OpenVisitorTunnel(a, model.Local("alice"), "", "", nil)
	require.NoError(t, err)
	defer tunnel.Release("")

	resolving := handlerB.waitForFrame(t)
	assert.Equal(t, FrameLocationChange, resolving.Kind)
	assert.Equal(t, LocationResolving, resolving.LocationResponse)

	tunnel.Forward(realm.RealmRequest{Kind: realm.RequestNoOp, Caller: model.Local("alice")})

	deadline := time.Now().Add(time.Second)
	for {
		handlerB.mu.Lock()
		n := len(handlerB.frames)
		handlerB.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	handlerB.mu.Lock()
	last := handlerB.frames[len(handlerB.frames)-1]
	handlerB.mu.Unlock()
	assert.Equal(t, FrameRealmRequest, last.Kind)
	assert.Equal(t, realm.RequestNoOp, last.RealmRequest.Kind)

	tunnel.DeliverResponse(realm.RealmResponse{Kind: realm.ResponseAccessChange, AccessChangeOK: true})
	select {
	case resp := <-tunnel.Responses():
		assert.True(t, resp.AccessChangeOK)
	case <-time.After(time.Second):
		t.Fatal("expected a response to be delivered")
	}

	assert.False(t, tunnel.Closed())
}

func TestVisitorTunnel_ReleaseSendsFrameAndCloses(t *testing.T) {
	connA, connB := newFakeConnPair()
	handlerA := &recordingHandler{}
	handlerB := &recordingHandler{}

	a := NewPeer("remote.example", handlerA)
	b := NewPeer("local.example", handlerB)
	a.Adopt(connA)
	b.Adopt(connB)

	tunnel, err := OpenVisitorTunnel(a, model.Local("alice"), "", "", nil)
	require.NoError(t, err)

	tunnel.Release("home.example")
	assert.True(t, tunnel.Closed())

	deadline := time.Now().Add(time.Second)
	for {
		handlerB.mu.Lock()
		n := len(handlerB.frames)
		handlerB.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	handlerB.mu.Lock()
	got := handlerB.frames[len(handlerB.frames)-1]
	handlerB.mu.Unlock()
	assert.Equal(t, FrameVisitorRelease, got.Kind)
	assert.Equal(t, "home.example", got.Target)
}
