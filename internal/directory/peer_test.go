package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeer struct {
	name   string
	closed bool
	dead   bool
}

func (p *stubPeer) Name() string { return p.name }
func (p *stubPeer) Close()       { p.closed = true }
func (p *stubPeer) Dead() bool   { return p.dead }

func TestPeer_UpsertsOnFirstAccess(t *testing.T) {
	d := New(newMemStore(), nil, "spadina.example")
	var connected int
	connect := func(name string) PeerConnector {
		connected++
		return &stubPeer{name: name}
	}

	var seen PeerConnector
	d.Peer("remote.example", connect, func(p PeerConnector) { seen = p })
	d.Peer("remote.example", connect, func(p PeerConnector) { seen = p })

	require.NotNil(t, seen)
	assert.Equal(t, 1, connected)
	assert.Equal(t, []string{"remote.example"}, d.Peers())
}

func TestPeer_ReconnectsWhenDead(t *testing.T) {
	d := New(newMemStore(), nil, "spadina.example")
	calls := 0
	connect := func(name string) PeerConnector {
		calls++
		return &stubPeer{name: name, dead: calls == 1}
	}

	d.Peer("remote.example", connect, func(PeerConnector) {})
	d.Peer("remote.example", connect, func(PeerConnector) {})

	assert.Equal(t, 2, calls)
}

func TestApplyPeerBans_ClosesMatchingPeers(t *testing.T) {
	d := New(newMemStore(), nil, "spadina.example")
	p := &stubPeer{name: "bad.example"}
	d.peers["bad.example"] = p
	d.peers["good.example"] = &stubPeer{name: "good.example"}

	d.ApplyPeerBans(map[string]bool{"bad.example": true})

	assert.True(t, p.closed)
	assert.ElementsMatch(t, []string{"good.example"}, d.Peers())
}

func TestCleanPeer_RemovesOnlyDeadEntries(t *testing.T) {
	d := New(newMemStore(), nil, "spadina.example")
	d.peers["alive.example"] = &stubPeer{name: "alive.example"}
	d.peers["gone.example"] = &stubPeer{name: "gone.example", dead: true}

	d.CleanPeer("alive.example")
	d.CleanPeer("gone.example")

	assert.ElementsMatch(t, []string{"alive.example"}, d.Peers())
}
