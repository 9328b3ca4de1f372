// Package peer implements the federation peer layer (spec.md §4.7,
// component C7): the bidirectional opportunistic WebSocket handshake
// between two Spadina servers, frame encoding, visitor proxy tunneling,
// and the direct-message queue. Grounded on the original Rust
// implementation (_examples/original_source/server/src/peer/stream.rs)
// for the frame vocabulary and handshake protocol, and on the teacher's
// gslistener connection (internal/gslistener/connection.go) for the
// mutex-guarded connection-state-machine shape.
package peer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

// FrameKind discriminates the peer wire protocol's message union (spec.md
// §4.7 "Frames... Selected messages").
type FrameKind int

const (
	FrameAvatarSet FrameKind = iota
	FrameLocationChange
	FrameLocationMessagePosted
	FrameLocationMessages
	FrameLocationMessagesGet
	FrameLocationMessageSend
	FrameRealmRequest
	FrameRealmResponse
	FrameGuestRequest
	FrameGuestResponse
	FrameVisitorRelease
	FrameSendPlayerTrain
	FrameConsensualEmoteRequestInitiate
	FrameConsensualEmoteRequestFromLocation
	FrameConsensualEmoteResponse
	FrameFollowRequestInitiate
	FrameFollowRequestFromLocation
	FrameFollowResponse
	FrameOnlineStatusRequest
	FrameOnlineStatusResponse
	FrameDirectMessage
	FrameDirectMessageReceipt
	FrameRealmsList
	FrameRealmIDs
)

// LocationResponseKind mirrors the closed set of location-change outcomes
// a peer reports back about one of its local players (spec.md §4.7
// "LocationChange{player, response}").
type LocationResponseKind int

const (
	LocationResolving LocationResponseKind = iota
	LocationRealm
	LocationHosting
	LocationGuest
	LocationNoWhere
	LocationPermissionError
	LocationResolutionError
)

// ChatMessage is one line of realm or hosting chat exchanged over a peer
// link (spec.md §4.7 "LocationMessages{player, from, to, messages}").
type ChatMessage struct {
	Sender  model.Principal
	Body    string
	Created int64 // unix nanoseconds; avoids time.Time's monotonic reading across the wire
}

// Frame is one message exchanged between two peered servers, msgpack-coded
// for transport (spec.md §4.7 "Length-prefixed binary... the transport's
// message framing is used directly").
type Frame struct {
	Kind FrameKind

	Player model.Principal

	// FrameAvatarSet
	Avatar []byte

	// FrameLocationChange
	LocationResponse LocationResponseKind

	// FrameLocationMessagePosted / FrameLocationMessageSend
	Message ChatMessage

	// FrameLocationMessages / FrameLocationMessagesGet
	From     int64
	To       int64
	Messages []ChatMessage

	// FrameRealmRequest / FrameGuestRequest
	RealmRequest realm.RealmRequest

	// FrameRealmResponse
	RealmResponse realm.RealmResponse

	// FrameGuestResponse: self-hosted responses are an opaque payload the
	// owner's own client defines (spec.md §4.4), not a realm.RealmResponse.
	GuestPayload []byte

	// FrameVisitorRelease
	Target string // destination server name, empty means "send home"

	// FrameSendPlayerTrain; Owner/Asset also address the destination named
	// by an initiating FrameLocationChange{Resolving} (spec.md §4.7 step 2
	// "P opens a local channel pair; on the peer socket it sends
	// LocationChange{player, Resolving}" — the remote side needs to know
	// which of its destinations that announcement is for).
	Owner string
	Asset string
	Train int32

	// Consensual emote / follow request frames
	RequestID uint64
	Source    model.Principal
	Emote     string

	// FrameOnlineStatusRequest / Response
	Players []model.Principal
	Online  map[string]bool

	// FrameDirectMessage / FrameDirectMessageReceipt
	DirectMessages []DirectMessage
	ReceiptUpTo    int64

	// FrameRealmsList / FrameRealmIDs
	RealmNames []string
	RealmIDs   []int64
}

// Encode serializes a frame for transport.
func Encode(f Frame) ([]byte, error) {
	data, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("peer: encoding frame: %w", err)
	}
	return data, nil
}

// Decode parses a frame received from a peer.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("peer: decoding frame: %w", err)
	}
	return f, nil
}
