package httpapi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/directory"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
	"github.com/udisondev/la2go/internal/wire"
)

// FrameRouter implements peer.Handler (spec.md §4.7), the piece of the
// federation layer that was missing entirely until this package existed:
// it admits a remote player announcing a visit into one of this server's
// live destinations, relays ongoing realm/guest traffic both ways, and
// keeps the direct-message queue and online-status answers flowing across
// a peer link. One FrameRouter serves every peer connection this process
// holds, since admission and relay both key off the (peer name, player)
// pair carried on each frame rather than any per-connection state.
//
// Grounded on internal/session.Session's local dispatch (handleRealmRequest,
// handleGuestRequest, pumpControl) for how a RealmRequest/GuestRequest is
// turned into a controller call and a ControlOutput back into a pushed
// response — this is the same protocol, just driven by frames instead of a
// local socket.
type FrameRouter struct {
	dir         *directory.Directory
	localServer string
	dm          *peer.DMQueue
	presence    *Presence

	mu     sync.Mutex
	visits map[visitKey]*remoteVisit
}

type visitKey struct {
	peerName string
	player   model.Principal
}

// remoteVisit is the bookkeeping for one remote player currently admitted
// into one of our live destinations through a peer link.
type remoteVisit struct {
	mgr *destination.Manager
	out chan destination.ControlOutput
}

// NewFrameRouter builds a router over the process-wide directory.
func NewFrameRouter(dir *directory.Directory, localServer string, dm *peer.DMQueue, presence *Presence) *FrameRouter {
	return &FrameRouter{dir: dir, localServer: localServer, dm: dm, presence: presence, visits: map[visitKey]*remoteVisit{}}
}

// HandleFrame dispatches one frame arriving from a named peer link (spec.md
// §4.7 "Frames").
func (r *FrameRouter) HandleFrame(peerName string, f peer.Frame) {
	switch f.Kind {
	case peer.FrameLocationChange:
		r.handleLocationChange(peerName, f)
	case peer.FrameRealmRequest:
		r.handleInboundRequest(peerName, f, false)
	case peer.FrameGuestRequest:
		r.handleInboundRequest(peerName, f, true)
	case peer.FrameRealmResponse:
		r.deliverToTunnel(peerName, f.Player, func(t *peer.VisitorTunnel) { t.DeliverResponse(f.RealmResponse) })
	case peer.FrameGuestResponse:
		// A guest response is an opaque owner-defined payload, the same
		// shape as a tunnel broadcast; unreachable today since no client
		// LocationTarget addresses a remote self-hosted destination, kept
		// for peer-protocol symmetry with the host-admission side below.
		r.deliverToTunnel(peerName, f.Player, func(t *peer.VisitorTunnel) { t.DeliverBroadcast(f.GuestPayload) })
	case peer.FrameAvatarSet:
		r.deliverToTunnel(peerName, f.Player, func(t *peer.VisitorTunnel) { t.DeliverBroadcast(f.Avatar) })
	case peer.FrameVisitorRelease:
		r.deliverToTunnel(peerName, f.Player, func(t *peer.VisitorTunnel) { t.Closeout(f.Target) })
	case peer.FrameDirectMessage:
		r.handleDirectMessage(f)
	case peer.FrameDirectMessageReceipt:
		r.handleDirectMessageReceipt(f)
	case peer.FrameOnlineStatusRequest:
		r.handleOnlineStatusRequest(peerName, f)
	case peer.FrameOnlineStatusResponse:
		r.presence.Deliver(f.Player, wire.ClientResponse{Kind: wire.ClientResponseOnlineStatus, Online: f.Online})
	case peer.FrameFollowRequestFromLocation, peer.FrameConsensualEmoteRequestFromLocation:
		r.relayConsentRequest(f)
	case peer.FrameFollowResponse, peer.FrameConsensualEmoteResponse:
		r.relayConsentResponse(f)
	default:
		slog.Debug("httpapi: peer frame router: no handling for frame kind", "peer", peerName, "kind", f.Kind)
	}
}

// HandleDisconnect tears down every remote visit this peer had admitted,
// mirroring how a local destination quits (spec.md §4.5 "all players get
// LocationChangeResponse::NoWhere").
func (r *FrameRouter) HandleDisconnect(peerName string) {
	r.mu.Lock()
	var dead []visitKey
	for key, visit := range r.visits {
		if key.peerName == peerName {
			dead = append(dead, key)
			visit.mgr.Remove(key.player)
			close(visit.out)
		}
	}
	for _, key := range dead {
		delete(r.visits, key)
	}
	r.mu.Unlock()
}

// handleLocationChange either admits a newly-announced remote visitor
// (LocationResolving) or, for every other LocationResponseKind, treats the
// frame as the host's final answer about one of our own local players'
// remote visit.
func (r *FrameRouter) handleLocationChange(peerName string, f peer.Frame) {
	if f.LocationResponse != peer.LocationResolving {
		if f.LocationResponse == peer.LocationPermissionError || f.LocationResponse == peer.LocationResolutionError || f.LocationResponse == peer.LocationNoWhere {
			r.deliverToTunnel(peerName, f.Player, func(t *peer.VisitorTunnel) { t.Closeout("") })
		}
		return
	}

	connector, ok := r.dir.Lookup(peerName)
	if !ok {
		return
	}
	pr, ok := connector.(*peer.Peer)
	if !ok {
		return
	}

	out := make(chan destination.ControlOutput, 32)
	var mgr *destination.Manager
	var admitErr error
	admitted := peer.LocationRealm

	if f.Asset == "" {
		// Self-hosted ("home") destination: addressed by owner alone
		// (spec.md §4.4), admitted directly rather than through
		// directory.Move, which only resolves realm launch targets.
		var hostOK bool
		mgr, hostOK = r.dir.Hosting(f.Owner)
		if !hostOK {
			_ = pr.Send(peer.Frame{Kind: peer.FrameLocationChange, Player: f.Player, LocationResponse: peer.LocationResolutionError})
			return
		}
		admitErr = mgr.Add(f.Player, pr.Capabilities(), nil, out, time.Now())
		admitted = peer.LocationHosting
	} else {
		target := directory.LaunchTarget{Kind: directory.LaunchByAsset, Owner: f.Owner, Asset: f.Asset}
		admitErr = r.dir.Move(directory.AdmissionRequest{Player: f.Player, Capabilities: pr.Capabilities(), Out: out}, target, time.Now())
		if admitErr == nil {
			owner, asset, resolved := r.dir.ResolvedKey(target)
			if !resolved {
				owner, asset = f.Owner, f.Asset
			}
			mgr, _ = r.dir.Realm(owner, asset)
		}
	}

	if admitErr != nil {
		_ = pr.Send(peer.Frame{Kind: peer.FrameLocationChange, Player: f.Player, LocationResponse: locationErrorForAdmission(admitErr)})
		return
	}

	key := visitKey{peerName: peerName, player: f.Player}
	r.mu.Lock()
	r.visits[key] = &remoteVisit{mgr: mgr, out: out}
	r.mu.Unlock()

	go r.pumpRemoteVisit(pr, key, out)
	_ = pr.Send(peer.Frame{Kind: peer.FrameLocationChange, Player: f.Player, LocationResponse: admitted})
}

func locationErrorForAdmission(err error) peer.LocationResponseKind {
	switch err.(type) {
	case *destination.MissingCapabilitiesError, *destination.PermissionDeniedError:
		return peer.LocationPermissionError
	default:
		return peer.LocationResolutionError
	}
}

// pumpRemoteVisit fans one remote visitor's destination control outputs
// back over the peer link as frames, until the destination releases them
// (spec.md §4.5 Dispatch, relayed per §4.7's visitor proxy).
//
// ControlResponse is only ever produced by SelfHostedAdapter's
// forwardDeliveries (a RealmAdapter's Handle answers synchronously in
// handleInboundRequest and never pushes onto this channel at all), so it
// always carries the owner's opaque guest payload, never a realm.RealmResponse.
func (r *FrameRouter) pumpRemoteVisit(pr *peer.Peer, key visitKey, out <-chan destination.ControlOutput) {
	for co := range out {
		switch co.Kind {
		case destination.ControlBroadcast:
			_ = pr.Send(peer.Frame{Kind: peer.FrameAvatarSet, Player: key.player, Avatar: co.Payload})
		case destination.ControlResponse:
			_ = pr.Send(peer.Frame{Kind: peer.FrameGuestResponse, Player: key.player, GuestPayload: co.Response, RequestID: co.RequestID})
		case destination.ControlQuit, destination.ControlMove, destination.ControlMoveTrain:
			_ = pr.Send(peer.Frame{Kind: peer.FrameVisitorRelease, Player: key.player, Target: ""})
			r.endVisit(key)
			return
		}
	}
}

func (r *FrameRouter) endVisit(key visitKey) {
	r.mu.Lock()
	visit, ok := r.visits[key]
	if ok {
		delete(r.visits, key)
	}
	r.mu.Unlock()
	if ok {
		visit.mgr.Remove(key.player)
	}
}

// handleInboundRequest serves a RealmRequest/GuestRequest frame from a
// remote visitor we have already admitted, mirroring
// internal/session.Session's handleRealmRequest/handleGuestRequest for a
// local player.
func (r *FrameRouter) handleInboundRequest(peerName string, f peer.Frame, guest bool) {
	r.mu.Lock()
	visit, ok := r.visits[visitKey{peerName: peerName, player: f.Player}]
	r.mu.Unlock()
	if !ok {
		return
	}

	if guest {
		adapter, ok := visit.mgr.Destination().(*destination.SelfHostedAdapter)
		if !ok {
			return
		}
		payload, err := msgpack.Marshal(f.RealmRequest)
		if err != nil {
			return
		}
		_, _ = adapter.Controller.Request(f.Player, payload)
		return
	}

	adapter, ok := visit.mgr.Destination().(*destination.RealmAdapter)
	if !ok {
		return
	}
	req := f.RealmRequest
	req.Caller = f.Player
	resp, err := adapter.Handle(req, false, time.Now())
	connector, ok := r.dir.Lookup(peerName)
	if !ok {
		return
	}
	if pr, ok := connector.(*peer.Peer); ok && err == nil {
		_ = pr.Send(peer.Frame{Kind: peer.FrameRealmResponse, Player: f.Player, RealmResponse: resp})
	}
}

// deliverToTunnel looks up a local player's open visitor tunnel over the
// named peer link and applies fn, used for every frame kind that answers
// one of our own local players' remote visit rather than admitting one.
func (r *FrameRouter) deliverToTunnel(peerName string, player model.Principal, fn func(*peer.VisitorTunnel)) {
	connector, ok := r.dir.Lookup(peerName)
	if !ok {
		return
	}
	pr, ok := connector.(*peer.Peer)
	if !ok {
		return
	}
	t, ok := pr.Tunnel(player)
	if !ok {
		return
	}
	fn(t)
}

// handleDirectMessage records an inbound DM batch as received (spec.md
// §4.7 "Inbound DMs write state='r' (received) and fan out to any online
// recipient session").
func (r *FrameRouter) handleDirectMessage(f peer.Frame) {
	if r.dm == nil {
		return
	}
	if err := r.dm.ReceiveInbound(f.DirectMessages); err != nil {
		slog.Warn("httpapi: recording inbound direct messages", "error", err)
		return
	}
	for _, msg := range f.DirectMessages {
		r.presence.Deliver(msg.Recipient, wire.ClientResponse{Kind: wire.ClientResponseDirectMessages, Messages: []peer.DirectMessage{msg}})
	}
}

// handleDirectMessageReceipt acknowledges a drained outbound batch (spec.md
// §4.7 "on ack batch received, flipped to 'o' (sent)").
func (r *FrameRouter) handleDirectMessageReceipt(f peer.Frame) {
	if r.dm == nil {
		return
	}
	keys := make([]peer.DMKey, 0, len(f.DirectMessages))
	for _, msg := range f.DirectMessages {
		keys = append(keys, peer.DMKey{Sender: msg.Sender, Recipient: msg.Recipient, Created: msg.Created})
	}
	if err := r.dm.AckSent(keys); err != nil {
		slog.Warn("httpapi: marking direct messages sent", "error", err)
	}
}

// handleOnlineStatusRequest answers a peer's batch online-status query for
// our local players (spec.md §4.7 "OnlineStatusRequest/Response").
func (r *FrameRouter) handleOnlineStatusRequest(peerName string, f peer.Frame) {
	connector, ok := r.dir.Lookup(peerName)
	if !ok {
		return
	}
	pr, ok := connector.(*peer.Peer)
	if !ok {
		return
	}
	online := make(map[string]bool, len(f.Players))
	for _, p := range f.Players {
		local := p.Localize(r.localServer)
		_, hosting := r.dir.Hosting(local.Name)
		online[p.String()] = hosting || r.presence.IsOnline(local)
	}
	_ = pr.Send(peer.Frame{Kind: peer.FrameOnlineStatusResponse, Player: f.Player, Online: online})
}

// relayConsentRequest delivers a cross-server follow/consensual-emote offer
// to its local target, if still connected; these flows are pure relay at
// the peer layer since the two participants are never co-located in the
// same destination.Manager (spec.md §4.7 "FollowRequestInitiate/
// FromLocation/Response", "ConsensualEmoteRequestInitiate/FromLocation/
// Response").
func (r *FrameRouter) relayConsentRequest(f peer.Frame) {
	resp := wire.ClientResponse{Kind: wire.ClientResponseFollowRequest, RequestID: f.RequestID, RequestSource: f.Source}
	if f.Kind == peer.FrameConsensualEmoteRequestFromLocation {
		resp = wire.ClientResponse{Kind: wire.ClientResponseConsensualEmoteRequest, RequestID: f.RequestID, RequestSource: f.Source, Emote: f.Emote}
	}
	r.presence.Deliver(f.Player, resp)
}

// relayConsentResponse receives the accept/deny answer to a follow or
// consensual-emote offer our local player made to a player now on a remote
// server. wire.ClientResponse has no dedicated result variant for this yet
// (only the initial offer notification, ClientResponseFollowRequest /
// ClientResponseConsensualEmoteRequest) — the requester finds out by
// whether the expected follow/teleport actually happens, matching how a
// denied local offer is also silent (destination.Manager.DenyFollow has no
// response either). Recorded as a scope decision, not a forgotten frame.
func (r *FrameRouter) relayConsentResponse(f peer.Frame) {}
