package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

type memDMStore struct {
	pending []DirectMessage
	sent    []DMKey
	stored  map[DMKey]DirectMessage
}

func newMemDMStore() *memDMStore { return &memDMStore{stored: map[DMKey]DirectMessage{}} }

func (s *memDMStore) PendingFor(peerServer string) ([]DirectMessage, error) {
	var out []DirectMessage
	for _, m := range s.pending {
		if m.Recipient.Server == peerServer {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memDMStore) MarkSent(keys []DMKey) error {
	s.sent = append(s.sent, keys...)
	return nil
}

func (s *memDMStore) Insert(msg DirectMessage) error {
	key := DMKey{Sender: msg.Sender, Recipient: msg.Recipient, Created: msg.Created}
	if _, dup := s.stored[key]; dup {
		return nil
	}
	s.stored[key] = msg
	return nil
}

func TestDMQueue_DrainOutboundBuildsFrameAndKeys(t *testing.T) {
	store := newMemDMStore()
	now := time.Unix(100, 0)
	store.pending = []DirectMessage{
		{Sender: model.Local("alice"), Recipient: model.Remote("bob", "remote.example"), Body: "hi", Created: now, State: DMOutboundPending},
	}
	q := NewDMQueue(store)

	frame, keys, err := q.DrainOutbound("remote.example")
	require.NoError(t, err)
	assert.Equal(t, FrameDirectMessage, frame.Kind)
	assert.Len(t, frame.DirectMessages, 1)
	require.Len(t, keys, 1)

	require.NoError(t, q.AckSent(keys))
	assert.Equal(t, keys, store.sent)
}

func TestDMQueue_ReceiveInboundDeduplicatesByNaturalKey(t *testing.T) {
	store := newMemDMStore()
	q := NewDMQueue(store)
	now := time.Unix(200, 0)
	msg := DirectMessage{Sender: model.Remote("bob", "remote.example"), Recipient: model.Local("alice"), Body: "hey", Created: now}

	require.NoError(t, q.ReceiveInbound([]DirectMessage{msg, msg}))
	assert.Len(t, store.stored, 1)
	stored := store.stored[DMKey{Sender: msg.Sender, Recipient: msg.Recipient, Created: msg.Created}]
	assert.Equal(t, DMReceived, stored.State)
}
