package peer

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// DMState is a direct message's delivery state (spec.md §4.7
// "Direct-message queue... state='O' (outbound-pending)... flipped to 'o'
// (sent)... Inbound DMs write state='r' (received)").
type DMState byte

const (
	DMOutboundPending DMState = 'O'
	DMSent            DMState = 'o'
	DMReceived        DMState = 'r'
)

// DirectMessage is one persisted DM row, keyed by (Sender, Recipient,
// Created) to prevent duplicate delivery (spec.md §4.7 "Duplicate delivery
// is prevented by an (sender,recipient,timestamp) natural key").
type DirectMessage struct {
	Sender    model.Principal
	Recipient model.Principal
	Body      string
	Created   time.Time
	State     DMState
}

// Key returns the natural key used to deduplicate delivery.
func (m DirectMessage) Key() (sender, recipient model.Principal, created time.Time) {
	return m.Sender, m.Recipient, m.Created
}

// DMStore is the persistence contract for the direct-message queue,
// implemented by internal/db.
type DMStore interface {
	// PendingFor returns every outbound-pending DM addressed to peer's
	// players, in creation order.
	PendingFor(peerServer string) ([]DirectMessage, error)
	// MarkSent flips a batch of outbound DMs to DMSent once the peer has
	// acknowledged receipt.
	MarkSent(keys []DMKey) error
	// Insert records a new DM; duplicates (same natural key) are silently
	// ignored rather than erroring, matching "duplicate delivery is
	// prevented by a natural key".
	Insert(msg DirectMessage) error
}

// DMKey is the natural key of one direct message.
type DMKey struct {
	Sender    model.Principal
	Recipient model.Principal
	Created   time.Time
}

// DMQueue drains the outbound-pending batch for one peer once it
// transitions online, and records inbound DMs as received (spec.md §4.7
// "On peer online transition, the pending batch for that peer is drained
// and sent; on ack batch received, flipped to 'o' (sent)").
type DMQueue struct {
	store DMStore
}

// NewDMQueue wraps a DM store for one server's outbound/inbound traffic.
func NewDMQueue(store DMStore) *DMQueue {
	return &DMQueue{store: store}
}

// DrainOutbound loads a peer's pending batch and sends it as a single
// DirectMessage frame, returning the keys so the caller can mark them sent
// once the peer acknowledges.
func (q *DMQueue) DrainOutbound(peerServer string) (Frame, []DMKey, error) {
	pending, err := q.store.PendingFor(peerServer)
	if err != nil {
		return Frame{}, nil, err
	}
	keys := make([]DMKey, len(pending))
	for i, m := range pending {
		keys[i] = DMKey{Sender: m.Sender, Recipient: m.Recipient, Created: m.Created}
	}
	return Frame{Kind: FrameDirectMessage, DirectMessages: pending}, keys, nil
}

// AckSent marks a drained batch as sent once the peer's receipt frame
// arrives.
func (q *DMQueue) AckSent(keys []DMKey) error {
	if len(keys) == 0 {
		return nil
	}
	return q.store.MarkSent(keys)
}

// ReceiveInbound records an inbound DM batch as received, deduplicating on
// each message's natural key via the store's Insert semantics.
func (q *DMQueue) ReceiveInbound(messages []DirectMessage) error {
	for _, m := range messages {
		m.State = DMReceived
		if err := q.store.Insert(m); err != nil {
			return err
		}
	}
	return nil
}
