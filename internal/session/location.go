// Package session implements the client session (spec.md §4.8, component
// C8): per-player fan-in/out between the client WebSocket and C5/C6/C7.
// Grounded on the original Rust implementation
// (_examples/original_source/server/src/client.rs,
// server/src/client/location.rs) for the Location state machine, and on
// the teacher's per-connection write-queue style
// (internal/gameserver/client.go) for the inbound/outbound pump shape.
package session

import (
	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/peer"
)

// LocationKind is the closed set of places a session's player currently
// occupies (spec.md §4.8 "The session owns exactly one Location at a
// time; transitions are one of NoWhere -> Realm(tx,rx) | Hosting(tx,rx) |
// Guest(host,tx,rx)").
type LocationKind int

const (
	LocationNoWhere LocationKind = iota
	LocationRealm
	LocationHosting
	LocationGuest
)

// Location is the session's current attachment: either nothing, a local
// realm/hosting destination reached directly, or a remote destination
// reached through a peer visitor tunnel.
type Location struct {
	Kind LocationKind

	// LocationRealm / LocationHosting: the control-output channel this
	// session reads from, the manager it is registered with (for
	// synchronous request/response and removal), and the key used to
	// address the destination.
	Out          chan destination.ControlOutput
	Manager      *destination.Manager
	DestOwner    string
	DestAsset    string
	IsSelfHosted bool

	// LocationGuest: the tunnel proxying requests/responses to the remote
	// destination, and the server name it's hosted on (for VisitorRelease
	// routing back home).
	Tunnel     *peer.VisitorTunnel
	HostServer string
}

// IsAttached reports whether the session currently occupies a destination
// of any kind.
func (l Location) IsAttached() bool { return l.Kind != LocationNoWhere }
