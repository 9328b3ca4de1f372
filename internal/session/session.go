// Package session implements the client session (spec.md §4.8, component
// C8): one instance per connected player, demultiplexing ClientRequest
// frames into directory/destination/peer operations and multiplexing
// destination pushes and request responses back out as ClientResponse
// frames. Grounded on the original Rust implementation
// (_examples/original_source/server/src/client.rs,
// server/src/client/location.rs) for the Location state machine, and on
// the teacher's per-connection write-queue style
// (internal/gameserver/client.go) for the inbound/outbound channel pump
// shape — a single outbound queue fed by whatever goroutine currently
// owns delivering to this player, regardless of which destination they're
// attached to.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/directory"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
	"github.com/udisondev/la2go/internal/realm"
	"github.com/udisondev/la2go/internal/wire"
)

// BookmarkStore is the persistence contract for a player's saved
// destinations (spec.md §6 "bookmark(player, kind, asset)").
type BookmarkStore interface {
	AddBookmark(player model.Principal, kind, name string) error
	RemoveBookmark(player model.Principal, kind, name string) error
	ListBookmarks(player model.Principal) ([]wire.Bookmark, error)
}

// DirectMessageStore is the persistence contract for one player's sent and
// received direct messages, distinct from peer.DMStore (which serves the
// federation sync queue between two servers rather than one player's
// inbox/outbox view).
type DirectMessageStore interface {
	SendDirectMessage(msg peer.DirectMessage) error
	DirectMessagesBetween(player model.Principal, from, to int64) ([]peer.DirectMessage, error)
}

// PeerDialer opens (or reuses) a connection to a remote server by name,
// wired by internal/httpapi over a real gorilla/websocket dial; handed to
// Directory.Peer to upsert the connection.
type PeerDialer func(name string) directory.PeerConnector

// Session is one connected player's fan-in/fan-out state (spec.md §4.8).
// ClientRequests arrive on Inbound; Outbound carries everything the player
// needs written back to their socket, whether it is a direct response to
// one of their own requests or an asynchronous push from their current
// destination.
type Session struct {
	Principal    model.Principal
	IsSuperuser  bool
	capabilities map[string]bool
	avatar       []byte

	dir         *directory.Directory
	localServer string
	dialPeer    PeerDialer
	bookmarks   BookmarkStore
	messages    DirectMessageStore

	mu       sync.Mutex
	location Location

	inbound  chan wire.ClientRequest
	outbound chan wire.ClientResponse
	closeCh  chan struct{}
	closeOnce sync.Once
}

// New creates a session for an already-authenticated player. Capabilities
// and avatar are fixed for the lifetime of the session (spec.md §4.5
// "capabilities declared at login"); bookmarks/messages may be nil if the
// caller has no persistence wired yet (every request against them then
// fails fast rather than panicking).
func New(p model.Principal, isSuperuser bool, capabilities map[string]bool, avatar []byte, dir *directory.Directory, localServer string, dialPeer PeerDialer, bookmarks BookmarkStore, messages DirectMessageStore) *Session {
	return &Session{
		Principal:    p,
		IsSuperuser:  isSuperuser,
		capabilities: capabilities,
		avatar:       avatar,
		dir:          dir,
		localServer:  localServer,
		dialPeer:     dialPeer,
		bookmarks:    bookmarks,
		messages:     messages,
		inbound:      make(chan wire.ClientRequest, 32),
		outbound:     make(chan wire.ClientResponse, 32),
		closeCh:      make(chan struct{}),
	}
}

// Inbound is where the connection's read pump delivers decoded requests.
func (s *Session) Inbound() chan<- wire.ClientRequest { return s.inbound }

// Outbound is where the connection's write pump drains responses to send.
func (s *Session) Outbound() <-chan wire.ClientResponse { return s.outbound }

// Done closes once the session has been closed, so a write pump blocked on
// Outbound can unblock and tear down the socket without waiting for its
// next write error.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// Run processes inbound requests until the connection's read pump closes
// Inbound or the session is closed some other way (e.g. kicked). It
// returns once draining is complete; the caller's write pump should then
// close the socket.
func (s *Session) Run() {
	defer s.Close()
	for {
		select {
		case req, ok := <-s.inbound:
			if !ok {
				return
			}
			s.handle(req)
		case <-s.closeCh:
			return
		}
	}
}

// Close detaches from the current destination (if any) and stops Run.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.detach()
		close(s.closeCh)
	})
}

func (s *Session) deliver(resp wire.ClientResponse) {
	select {
	case s.outbound <- resp:
	case <-s.closeCh:
	}
}

func (s *Session) handle(req wire.ClientRequest) {
	switch req.Kind {
	case wire.ClientRequestLocationChange:
		s.handleLocationChange(req.Target)
	case wire.ClientRequestRealm:
		s.handleRealmRequest(req.RealmRequest)
	case wire.ClientRequestGuest:
		s.handleGuestRequest(req.RealmRequest)
	case wire.ClientRequestBookmarkAdd:
		s.handleBookmarkAdd(req)
	case wire.ClientRequestBookmarkRemove:
		s.handleBookmarkRemove(req)
	case wire.ClientRequestBookmarkList:
		s.handleBookmarkList()
	case wire.ClientRequestOnlineStatus:
		s.handleOnlineStatus(req.Players)
	case wire.ClientRequestDirectMessageSend:
		s.handleDirectMessageSend(req)
	case wire.ClientRequestDirectMessagesGet:
		s.handleDirectMessagesGet(req)
	case wire.ClientRequestFollowRequest:
		s.handleFollowRequest(req)
	case wire.ClientRequestFollowResponse:
		s.handleFollowResponse(req)
	case wire.ClientRequestConsensualEmoteRequest:
		s.handleConsensualEmoteRequest(req)
	case wire.ClientRequestConsensualEmoteResponse:
		s.handleConsensualEmoteResponse(req)
	case wire.ClientRequestNoOperation:
	default:
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: fmt.Sprintf("session: unknown request kind %d", req.Kind)})
	}
}

// Location returns a snapshot of the session's current attachment.
func (s *Session) Location() Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *Session) setLocation(loc Location) {
	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()
}

// detach leaves whatever destination the session currently occupies
// (spec.md §4.8 "transitions are one of NoWhere -> Realm | Hosting |
// Guest"; leaving always passes back through NoWhere first).
func (s *Session) detach() {
	s.mu.Lock()
	loc := s.location
	s.location = Location{}
	s.mu.Unlock()

	switch loc.Kind {
	case LocationRealm, LocationHosting:
		if loc.Manager != nil {
			loc.Manager.Remove(s.Principal)
		}
		if loc.Out != nil {
			close(loc.Out)
		}
	case LocationGuest:
		if loc.Tunnel != nil {
			loc.Tunnel.Release("")
		}
	}
}

func (s *Session) handleLocationChange(target wire.LocationTarget) {
	s.detach()

	switch target.Kind {
	case wire.LocationTargetNoWhere:
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationNoWhere})
		return
	case wire.LocationTargetHome:
		s.attachHome()
	case wire.LocationTargetRealmByAsset:
		s.attachRealm(directory.LaunchTarget{Kind: directory.LaunchByAsset, Owner: target.Owner, Asset: target.Asset})
	case wire.LocationTargetRealmByTrain:
		s.attachRealm(directory.LaunchTarget{Kind: directory.LaunchByTrain, Owner: target.Owner, Train: target.Train})
	default:
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
	}
}

func (s *Session) attachHome() {
	mgr, ok := s.dir.Hosting(s.Principal.Name)
	if !ok {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
		return
	}
	s.admitToLocal(mgr, s.Principal.Name, "", true)
}

func (s *Session) attachRealm(launch directory.LaunchTarget) {
	owner, err := model.ParsePrincipal(launch.Owner)
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
		return
	}
	if !owner.IsLocal() && !strings.EqualFold(owner.Server, s.localServer) {
		s.attachGuest(owner.Server, launch)
		return
	}
	launch.Owner = owner.Name

	out := make(chan destination.ControlOutput, 32)
	err = s.dir.Move(directory.AdmissionRequest{Player: s.Principal, Capabilities: s.capabilities, Avatar: s.avatar, Out: out}, launch, time.Now())
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: locationErrorFor(err)})
		return
	}

	resolvedOwner, resolvedAsset, ok := s.dir.ResolvedKey(launch)
	if !ok {
		resolvedOwner, resolvedAsset = launch.Owner, launch.Asset
	}
	mgr, _ := s.dir.Realm(resolvedOwner, resolvedAsset)

	s.setLocation(Location{Kind: LocationRealm, Out: out, Manager: mgr, DestOwner: resolvedOwner, DestAsset: resolvedAsset})
	go s.pumpControl(out)
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationRealm})
}

// admitToLocal runs the admission protocol against an already-resolved
// local manager, used by both Home and (a future) directly-addressed
// self-hosted guest visits.
func (s *Session) admitToLocal(mgr *destination.Manager, owner, asset string, selfHosted bool) {
	out := make(chan destination.ControlOutput, 32)
	if err := mgr.Add(s.Principal, s.capabilities, s.avatar, out, time.Now()); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: locationErrorFor(err)})
		return
	}
	kind := LocationHosting
	respLoc := wire.LocationHosting
	if !selfHosted {
		kind = LocationRealm
		respLoc = wire.LocationRealm
	}
	s.setLocation(Location{Kind: kind, Out: out, Manager: mgr, DestOwner: owner, DestAsset: asset, IsSelfHosted: selfHosted})
	go s.pumpControl(out)
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: respLoc})
}

func locationErrorFor(err error) wire.LocationResponseKind {
	switch err.(type) {
	case *destination.MissingCapabilitiesError, *destination.PermissionDeniedError:
		return wire.LocationPermissionError
	default:
		return wire.LocationResolutionError
	}
}

func (s *Session) attachGuest(server string, launch directory.LaunchTarget) {
	if s.dialPeer == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
		return
	}
	var connector directory.PeerConnector
	s.dir.Peer(server, s.dialPeer, func(pc directory.PeerConnector) { connector = pc })
	pr, ok := connector.(*peer.Peer)
	if !ok {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
		return
	}
	tunnel, err := peer.OpenVisitorTunnel(pr, s.Principal, launch.Owner, launch.Asset, func(target string) { s.handleVisitorReleased(target, launch) })
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationResolutionError})
		return
	}
	s.setLocation(Location{Kind: LocationGuest, Tunnel: tunnel, HostServer: server, DestOwner: launch.Owner, DestAsset: launch.Asset})
	go s.pumpTunnel(tunnel)
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationGuest, Server: server})
}

// handleVisitorReleased reacts to the remote host tearing the tunnel down
// itself (spec.md §4.7 step 4 "VisitorRelease tears down the tunnel and
// redirects the player locally"): an empty target sends the player home,
// a non-empty one retries the same destination through that peer instead.
func (s *Session) handleVisitorReleased(target string, launch directory.LaunchTarget) {
	s.mu.Lock()
	if s.location.Kind == LocationGuest {
		s.location = Location{}
	}
	s.mu.Unlock()

	if target == "" {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationNoWhere})
		return
	}
	s.attachGuest(target, launch)
}

// pumpControl fans a destination manager's control pushes out to this
// player's outbound queue until the manager closes the channel (on
// detach) or the session is closed.
func (s *Session) pumpControl(out <-chan destination.ControlOutput) {
	for co := range out {
		switch co.Kind {
		case destination.ControlBroadcast:
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseBroadcast, Broadcast: co.Payload})
		case destination.ControlResponse:
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseGuest, GuestPayload: co.Response, RequestID: co.RequestID})
		case destination.ControlMove, destination.ControlMoveTrain:
			s.moveTo(co.Move)
		case destination.ControlQuit:
			s.detach()
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseLocationChange, Location: wire.LocationNoWhere})
			return
		case destination.ControlSendMessage:
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseBroadcast, Broadcast: co.Payload})
		}
	}
}

// moveTo reacts to a controller-driven relocation (e.g. a gate/portal
// piece firing) the same way a client-issued LocationChange would.
func (s *Session) moveTo(link model.RealmLink) {
	s.detach()
	if link.Train != nil {
		s.attachRealm(directory.LaunchTarget{Kind: directory.LaunchByTrain, Owner: link.Owner, Train: *link.Train})
		return
	}
	s.attachRealm(directory.LaunchTarget{Kind: directory.LaunchByAsset, Owner: link.Owner, Asset: link.Asset})
}

// pumpTunnel fans a remote visitor tunnel's responses out to this
// player's outbound queue until the tunnel closes.
func (s *Session) pumpTunnel(t *peer.VisitorTunnel) {
	for {
		select {
		case resp := <-t.Responses():
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseRealm, RealmResponse: resp})
		case payload := <-t.Broadcasts():
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseBroadcast, Broadcast: payload})
		case <-t.Done():
			return
		}
	}
}

// Deliver writes one response onto this session's outbound queue; exported
// for internal/httpapi's peer frame router, which delivers DM/online-status
// pushes to whichever local session currently represents their principal.
func (s *Session) Deliver(resp wire.ClientResponse) { s.deliver(resp) }

func (s *Session) handleRealmRequest(req realm.RealmRequest) {
	loc := s.Location()
	req.Caller = s.Principal
	switch loc.Kind {
	case LocationRealm:
		adapter, ok := loc.Manager.Destination().(*destination.RealmAdapter)
		if !ok {
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a realm"})
			return
		}
		resp, err := adapter.Handle(req, s.IsSuperuser, time.Now())
		if err != nil {
			s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
			return
		}
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseRealm, RealmResponse: resp})
	case LocationGuest:
		loc.Tunnel.Forward(req)
	default:
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: no realm request can be served here"})
	}
}

// handleGuestRequest forwards an opaque request to a self-hosted owner's
// client (spec.md §4.4 "guest requests are opaque payloads the owner's
// client alone interprets"); the response arrives later, asynchronously,
// via pumpControl's ControlResponse case.
func (s *Session) handleGuestRequest(req realm.RealmRequest) {
	loc := s.Location()
	if loc.Kind != LocationHosting {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a self-hosted destination"})
		return
	}
	adapter, ok := loc.Manager.Destination().(*destination.SelfHostedAdapter)
	if !ok {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: destination does not accept guest requests"})
		return
	}
	payload, err := msgpack.Marshal(req)
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	if _, err := adapter.Controller.Request(s.Principal, payload); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
	}
}

func (s *Session) handleBookmarkAdd(req wire.ClientRequest) {
	if s.bookmarks == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: bookmarks unavailable"})
		return
	}
	if err := s.bookmarks.AddBookmark(s.Principal, req.BookmarkKind, req.BookmarkName); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.handleBookmarkList()
}

func (s *Session) handleBookmarkRemove(req wire.ClientRequest) {
	if s.bookmarks == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: bookmarks unavailable"})
		return
	}
	if err := s.bookmarks.RemoveBookmark(s.Principal, req.BookmarkKind, req.BookmarkName); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.handleBookmarkList()
}

func (s *Session) handleBookmarkList() {
	if s.bookmarks == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: bookmarks unavailable"})
		return
	}
	list, err := s.bookmarks.ListBookmarks(s.Principal)
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseBookmarks, Bookmarks: list})
}

// handleOnlineStatus answers for every local player directly; remote
// players would require a peer OnlineStatusRequest round trip, left to
// the federation bring-up in internal/httpapi since it needs a live peer
// connection per distinct remote server named in the batch.
func (s *Session) handleOnlineStatus(players []model.Principal) {
	online := make(map[string]bool, len(players))
	for _, p := range players {
		if !p.IsLocal() {
			continue
		}
		_, hosting := s.dir.Hosting(p.Name)
		online[p.String()] = hosting || s.isPresentAnywhere(p)
	}
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseOnlineStatus, Online: online})
}

func (s *Session) isPresentAnywhere(p model.Principal) bool {
	loc := s.Location()
	return loc.Manager != nil && containsPrincipal(loc.Manager.Players(), p)
}

func containsPrincipal(players []model.Principal, p model.Principal) bool {
	for _, q := range players {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

func (s *Session) handleDirectMessageSend(req wire.ClientRequest) {
	if s.messages == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: direct messages unavailable"})
		return
	}
	msg := peer.DirectMessage{Sender: s.Principal, Recipient: req.Recipient, Body: req.Body, Created: time.Now(), State: peer.DMOutboundPending}
	if req.Recipient.IsLocal() || strings.EqualFold(req.Recipient.Server, s.localServer) {
		msg.State = peer.DMReceived
	}
	if err := s.messages.SendDirectMessage(msg); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
	}
}

func (s *Session) handleDirectMessagesGet(req wire.ClientRequest) {
	if s.messages == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: direct messages unavailable"})
		return
	}
	msgs, err := s.messages.DirectMessagesBetween(s.Principal, req.From, req.To)
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseDirectMessages, Messages: msgs})
}

func (s *Session) handleFollowRequest(req wire.ClientRequest) {
	loc := s.Location()
	if loc.Manager == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a destination"})
		return
	}
	id, err := loc.Manager.RequestFollow(s.Principal, req.RequestTarget, time.Now())
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseFollowRequest, RequestID: id, RequestSource: s.Principal})
}

func (s *Session) handleFollowResponse(req wire.ClientRequest) {
	loc := s.Location()
	if loc.Manager == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a destination"})
		return
	}
	if !req.Accept {
		loc.Manager.DenyFollow(s.Principal, req.RequestID)
		return
	}
	if _, err := loc.Manager.AcceptFollow(s.Principal, req.RequestID, time.Now()); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
	}
}

func (s *Session) handleConsensualEmoteRequest(req wire.ClientRequest) {
	loc := s.Location()
	if loc.Manager == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a destination"})
		return
	}
	id, err := loc.Manager.RequestConsensualEmote(s.Principal, req.RequestTarget, req.Emote, time.Now())
	if err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
		return
	}
	s.deliver(wire.ClientResponse{Kind: wire.ClientResponseConsensualEmoteRequest, RequestID: id, RequestSource: s.Principal, Emote: req.Emote})
}

func (s *Session) handleConsensualEmoteResponse(req wire.ClientRequest) {
	loc := s.Location()
	if loc.Manager == nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: "session: not attached to a destination"})
		return
	}
	if !req.Accept {
		loc.Manager.DenyConsensualEmote(s.Principal, req.RequestID)
		return
	}
	if _, _, err := loc.Manager.AcceptConsensualEmote(s.Principal, req.RequestID, time.Now()); err != nil {
		s.deliver(wire.ClientResponse{Kind: wire.ClientResponseError, ErrorMessage: err.Error()})
	}
}
