package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
)

func TestDirectMessageRepository_PendingAndMarkSent(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewDirectMessageRepository(pool)

	created := time.Now().Truncate(time.Microsecond)
	msg := peer.DirectMessage{
		Sender:    model.Local("alice"),
		Recipient: model.Remote("bob", "remote.example"),
		Body:      "hi bob",
		Created:   created,
		State:     peer.DMOutboundPending,
	}
	require.NoError(t, repo.Insert(msg))
	require.NoError(t, repo.Insert(msg)) // duplicate natural key, silently ignored

	pending, err := repo.PendingFor("remote.example")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "hi bob", pending[0].Body)

	require.NoError(t, repo.MarkSent([]peer.DMKey{{Sender: msg.Sender, Recipient: msg.Recipient, Created: msg.Created}}))

	pending, err = repo.PendingFor("remote.example")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDirectMessageRepository_DirectMessagesBetween(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewDirectMessageRepository(pool)

	now := time.Now().Truncate(time.Microsecond)
	require.NoError(t, repo.SendDirectMessage(peer.DirectMessage{
		Sender: model.Local("alice"), Recipient: model.Local("carol"),
		Body: "within range", Created: now, State: peer.DMReceived,
	}))
	require.NoError(t, repo.SendDirectMessage(peer.DirectMessage{
		Sender: model.Local("carol"), Recipient: model.Local("alice"),
		Body: "out of range", Created: now.Add(-48 * time.Hour), State: peer.DMReceived,
	}))

	msgs, err := repo.DirectMessagesBetween(model.Local("alice"), now.Add(-time.Hour).UnixMilli(), now.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "within range", msgs[0].Body)
}
