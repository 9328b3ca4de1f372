package peer

import (
	"log/slog"
	"sync"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

// VisitorTunnel forwards one local player's controller requests to a
// remote destination over a peer connection, and remote responses back to
// the local caller, as if the player were local on the far side (spec.md
// §4.7 "Visitor proxy"). One tunnel exists per (player, remote realm)
// visit.
type VisitorTunnel struct {
	peer   *Peer
	player model.Principal

	// requests carries outgoing RealmRequests from the local player's
	// session to be forwarded over the peer link.
	requests chan realm.RealmRequest
	// responses carries RealmResponses read back from the peer link to the
	// local session.
	responses chan realm.RealmResponse
	// broadcasts carries avatar/broadcast pushes the remote destination
	// relayed back for this visitor (spec.md §4.5 Dispatch, relayed as
	// FrameAvatarSet).
	broadcasts chan []byte

	done      chan struct{}
	closeOnce sync.Once

	// onReleased, if set, is invoked exactly once when the remote side
	// tears the tunnel down itself (FrameVisitorRelease arriving, as
	// opposed to the local session releasing it), with the redirect
	// target the remote side named (spec.md §4.7 step 4).
	onReleased func(target string)
}

// OpenVisitorTunnel starts a new tunnel: it announces the visit with a
// LocationChange{Resolving, owner, asset} frame addressing which of the
// remote server's destinations this visit targets, then pumps requests out
// and responses back until Close or VisitorRelease (spec.md §4.7 steps
// 1-3). onReleased, if non-nil, is called when the remote side initiates
// teardown.
func OpenVisitorTunnel(p *Peer, player model.Principal, owner, asset string, onReleased func(target string)) (*VisitorTunnel, error) {
	t := &VisitorTunnel{
		peer:       p,
		player:     player,
		requests:   make(chan realm.RealmRequest, 32),
		responses:  make(chan realm.RealmResponse, 32),
		broadcasts: make(chan []byte, 32),
		done:       make(chan struct{}),
		onReleased: onReleased,
	}
	if err := p.Send(Frame{Kind: FrameLocationChange, Player: player, LocationResponse: LocationResolving, Owner: owner, Asset: asset}); err != nil {
		return nil, err
	}
	p.registerTunnel(player, t)
	go t.pump()
	return t, nil
}

func (t *VisitorTunnel) pump() {
	for {
		select {
		case req := <-t.requests:
			if err := t.peer.Send(Frame{Kind: FrameRealmRequest, Player: t.player, RealmRequest: req}); err != nil {
				slog.Warn("peer: visitor tunnel send failed, releasing", "player", t.player, "error", err)
				t.teardown()
				return
			}
		case <-t.done:
			return
		}
	}
}

// Forward enqueues a local RealmRequest to send across the tunnel.
func (t *VisitorTunnel) Forward(req realm.RealmRequest) {
	select {
	case t.requests <- req:
	case <-t.done:
	}
}

// DeliverResponse is called by the peer's frame handler when a
// RealmResponse frame for this player arrives back across the link.
func (t *VisitorTunnel) DeliverResponse(resp realm.RealmResponse) {
	select {
	case t.responses <- resp:
	case <-t.done:
	}
}

// DeliverBroadcast is called by the peer's frame handler when an AvatarSet
// frame for this player's visit arrives back across the link.
func (t *VisitorTunnel) DeliverBroadcast(payload []byte) {
	select {
	case t.broadcasts <- payload:
	case <-t.done:
	}
}

// Responses exposes the channel of responses arriving from the remote
// destination, for the local session to forward to the player's socket.
func (t *VisitorTunnel) Responses() <-chan realm.RealmResponse { return t.responses }

// Broadcasts exposes the channel of avatar/broadcast pushes relayed back
// from the remote destination.
func (t *VisitorTunnel) Broadcasts() <-chan []byte { return t.broadcasts }

// Done reports when the tunnel has been torn down, letting a pump
// goroutine racing against Responses/Broadcasts exit instead of blocking
// forever on channels nothing closes.
func (t *VisitorTunnel) Done() <-chan struct{} { return t.done }

func (t *VisitorTunnel) teardown() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.peer.unregisterTunnel(t.player)
	})
}

// Release tears down the tunnel and, per spec.md §4.7 step 4
// ("VisitorRelease tears down the tunnel and redirects the player
// locally"), sends the teardown frame so the remote side also drops its
// end. Used when the local session is the one ending the visit.
func (t *VisitorTunnel) Release(redirectTo string) {
	_ = t.peer.Send(Frame{Kind: FrameVisitorRelease, Player: t.player, Target: redirectTo})
	t.teardown()
}

// Closeout tears the tunnel down without notifying the remote side (it
// already knows — this is called in response to the remote side's own
// FrameVisitorRelease) and reports the redirect target to onReleased so
// the local session can reattach.
func (t *VisitorTunnel) Closeout(redirectTo string) {
	t.closeOnce.Do(func() {
		close(t.done)
		t.peer.unregisterTunnel(t.player)
		if t.onReleased != nil {
			t.onReleased(redirectTo)
		}
	})
}

// Closed reports whether the tunnel has been torn down.
func (t *VisitorTunnel) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
