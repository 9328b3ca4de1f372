// Package wire implements the client<->server and server<->server wire
// message sum types (spec.md §6 "Wire message encoding... Binary WebSocket
// messages carry msgpack-encoded ClientRequest/ClientResponse... or
// PeerMessage"), and their msgpack codec. Grounded on spec.md §6/§4.7/§4.8
// for the variant vocabulary, and on the teacher's packet-kind-byte
// dispatch style (internal/gslistener/protocol.go) for keeping the wire
// format a single flat tagged struct rather than an interface hierarchy.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
	"github.com/udisondev/la2go/internal/realm"
)

// ClientRequestKind discriminates the closed set of messages a client
// socket may send (spec.md §9 "Message body sum types for
// ClientRequest/ClientResponse/PeerMessage are closed enumerations").
type ClientRequestKind int

const (
	ClientRequestLocationChange ClientRequestKind = iota
	ClientRequestRealm
	ClientRequestGuest
	ClientRequestBookmarkAdd
	ClientRequestBookmarkRemove
	ClientRequestBookmarkList
	ClientRequestOnlineStatus
	ClientRequestDirectMessageSend
	ClientRequestDirectMessagesGet
	ClientRequestFollowRequest
	ClientRequestFollowResponse
	ClientRequestConsensualEmoteRequest
	ClientRequestConsensualEmoteResponse
	ClientRequestNoOperation
)

// LocationTargetKind discriminates where a LocationChange request wants to
// go (spec.md §4.6 "ByAsset{owner,asset} / ByTrain{owner,train}" plus the
// player's own home destinations).
type LocationTargetKind int

const (
	LocationTargetHome LocationTargetKind = iota // the caller's own self-hosted destination
	LocationTargetRealmByAsset
	LocationTargetRealmByTrain
	LocationTargetNoWhere // disconnect from any current destination
)

// LocationTarget is the payload of a LocationChange request.
type LocationTarget struct {
	Kind  LocationTargetKind
	Owner string
	Asset string // LocationTargetRealmByAsset
	Train int32  // LocationTargetRealmByTrain
}

// ClientRequest is one message read from a client's WebSocket (spec.md §6,
// §4.8).
type ClientRequest struct {
	Kind ClientRequestKind

	// ClientRequestLocationChange
	Target LocationTarget

	// ClientRequestRealm / ClientRequestGuest
	RealmRequest realm.RealmRequest

	// ClientRequestBookmarkAdd / Remove
	BookmarkKind string
	BookmarkName string

	// ClientRequestOnlineStatus
	Players []model.Principal

	// ClientRequestDirectMessageSend
	Recipient model.Principal
	Body      string

	// ClientRequestDirectMessagesGet
	From int64
	To   int64

	// Follow / consensual emote requests and responses
	RequestTarget model.Principal
	RequestID     uint64
	Accept        bool
	Emote         string
}

// ClientResponseKind discriminates the closed set of messages the server
// sends back to a client.
type ClientResponseKind int

const (
	ClientResponseLocationChange ClientResponseKind = iota
	ClientResponseRealm
	ClientResponseGuest
	ClientResponseBroadcast
	ClientResponseBookmarks
	ClientResponseOnlineStatus
	ClientResponseDirectMessages
	ClientResponseFollowRequest
	ClientResponseConsensualEmoteRequest
	ClientResponseError
	ClientResponseNoOperation
)

// LocationResponseKind mirrors peer.LocationResponseKind for the
// client-facing side of a location change (spec.md §7 "Location change").
type LocationResponseKind = peer.LocationResponseKind

const (
	LocationResolving        = peer.LocationResolving
	LocationRealm            = peer.LocationRealm
	LocationHosting          = peer.LocationHosting
	LocationGuest            = peer.LocationGuest
	LocationNoWhere          = peer.LocationNoWhere
	LocationPermissionError  = peer.LocationPermissionError
	LocationResolutionError  = peer.LocationResolutionError
)

// ClientResponse is one message written to a client's WebSocket.
type ClientResponse struct {
	Kind ClientResponseKind

	// ClientResponseLocationChange
	Location LocationResponseKind
	Server   string // non-empty when Location addresses a remote server

	// ClientResponseRealm / ClientResponseGuest (live realm traffic); for a
	// self-hosted Guest round trip the owner's client defines its own
	// opaque schema instead, carried in GuestPayload/RequestID.
	RealmResponse realm.RealmResponse
	GuestPayload  []byte
	RequestID     uint64

	// ClientResponseBroadcast: an asynchronous push from the player's
	// current destination not tied to one of their own requests (an
	// avatar update or another player's realm state change, spec.md §4.5
	// "Dispatch... Broadcast"). The client interprets Payload per its
	// existing destination protocol.
	Broadcast []byte

	// ClientResponseBookmarks
	Bookmarks []Bookmark

	// ClientResponseOnlineStatus
	Online map[string]bool

	// ClientResponseDirectMessages
	Messages []peer.DirectMessage

	// ClientResponseFollowRequest / ClientResponseConsensualEmoteRequest:
	// a consent request notification, or its resolution.
	RequestSource model.Principal
	Emote         string

	// ClientResponseError
	ErrorMessage string
}

// Bookmark is one of a player's saved destinations (spec.md §6
// "bookmark(player, kind, asset)").
type Bookmark struct {
	Kind string
	Name string
}

// EncodeClientResponse serializes a response for transport.
func EncodeClientResponse(r ClientResponse) ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding client response: %w", err)
	}
	return data, nil
}

// DecodeClientRequest parses a request received from a client.
func DecodeClientRequest(data []byte) (ClientRequest, error) {
	var r ClientRequest
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return ClientRequest{}, fmt.Errorf("wire: decoding client request: %w", err)
	}
	return r, nil
}

// DecodeClientRequestJSON parses a request from a text-frame JSON fallback
// (spec.md §6 "Text frames are accepted as JSON fallback").
func DecodeClientRequestJSON(data []byte) (ClientRequest, error) {
	var r ClientRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return ClientRequest{}, fmt.Errorf("wire: decoding JSON client request: %w", err)
	}
	return r, nil
}

// EncodeClientResponseJSON serializes a response as JSON, for clients that
// negotiated the text-frame fallback.
func EncodeClientResponseJSON(r ClientResponse) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding JSON client response: %w", err)
	}
	return data, nil
}

// NoOperation is the canonical response to a dropped/unrecognized frame
// (spec.md §6 "Non-text/binary frames are silently dropped (reported as
// NoOperation)").
var NoOperation = ClientResponse{Kind: ClientResponseNoOperation}
