package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
)

// DirectMessageRepository persists direct messages (spec.md §6
// "localplayerchat"/"remoteplayerchat", collapsed into one
// direct_messages table keyed on Principal fields). Implements
// peer.DMStore (the federation outbound-pending drain queue) and
// internal/session's DirectMessageStore (one player's inbox/outbox view).
type DirectMessageRepository struct {
	pool *pgxpool.Pool
}

func NewDirectMessageRepository(pool *pgxpool.Pool) *DirectMessageRepository {
	return &DirectMessageRepository{pool: pool}
}

func scanDirectMessage(rows interface {
	Scan(dest ...any) error
}) (peer.DirectMessage, error) {
	var msg peer.DirectMessage
	var senderServer, recipientServer string
	var state byte
	if err := rows.Scan(&msg.Sender.Name, &senderServer, &msg.Recipient.Name, &recipientServer, &msg.Body, &msg.Created, &state); err != nil {
		return peer.DirectMessage{}, err
	}
	msg.Sender.Server = senderServer
	msg.Recipient.Server = recipientServer
	msg.State = peer.DMState(state)
	return msg, nil
}

// Insert records a new DM; a duplicate natural key is silently ignored
// (peer.DMStore; spec.md §4.7 "Duplicate delivery is prevented by a
// natural key").
func (r *DirectMessageRepository) Insert(msg peer.DirectMessage) error {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO direct_messages (sender_name, sender_server, recipient_name, recipient_server, body, created, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (sender_name, sender_server, recipient_name, recipient_server, created) DO NOTHING`,
		msg.Sender.Name, msg.Sender.Server, msg.Recipient.Name, msg.Recipient.Server, msg.Body, msg.Created, byte(msg.State))
	if err != nil {
		return fmt.Errorf("inserting direct message %s->%s: %w", msg.Sender, msg.Recipient, err)
	}
	return nil
}

// PendingFor returns every outbound-pending DM addressed to peerServer's
// players, in creation order (peer.DMStore).
func (r *DirectMessageRepository) PendingFor(peerServer string) ([]peer.DirectMessage, error) {
	rows, err := r.pool.Query(context.Background(),
		`SELECT sender_name, sender_server, recipient_name, recipient_server, body, created, state
		 FROM direct_messages WHERE recipient_server = $1 AND state = 'O' ORDER BY created ASC`, peerServer)
	if err != nil {
		return nil, fmt.Errorf("querying pending direct messages for %s: %w", peerServer, err)
	}
	defer rows.Close()

	var out []peer.DirectMessage
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pending direct message for %s: %w", peerServer, err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkSent flips a batch of outbound DMs to DMSent once the peer has
// acknowledged receipt (peer.DMStore).
func (r *DirectMessageRepository) MarkSent(keys []peer.DMKey) error {
	for _, key := range keys {
		_, err := r.pool.Exec(context.Background(),
			`UPDATE direct_messages SET state = $1
			 WHERE sender_name = $2 AND sender_server = $3 AND recipient_name = $4 AND recipient_server = $5 AND created = $6`,
			byte(peer.DMSent), key.Sender.Name, key.Sender.Server, key.Recipient.Name, key.Recipient.Server, key.Created)
		if err != nil {
			return fmt.Errorf("marking direct message %s->%s sent: %w", key.Sender, key.Recipient, err)
		}
	}
	return nil
}

// SendDirectMessage records a player-originated DM (session.DirectMessageStore).
func (r *DirectMessageRepository) SendDirectMessage(msg peer.DirectMessage) error {
	return r.Insert(msg)
}

// DirectMessagesBetween returns every DM involving player created within
// [from, to] (Unix millis), in creation order (session.DirectMessageStore).
func (r *DirectMessageRepository) DirectMessagesBetween(player model.Principal, from, to int64) ([]peer.DirectMessage, error) {
	rows, err := r.pool.Query(context.Background(),
		`SELECT sender_name, sender_server, recipient_name, recipient_server, body, created, state
		 FROM direct_messages
		 WHERE ((sender_name = $1 AND sender_server = $2) OR (recipient_name = $1 AND recipient_server = $2))
		   AND created BETWEEN $3 AND $4
		 ORDER BY created ASC`,
		player.Name, player.Server, time.UnixMilli(from), time.UnixMilli(to))
	if err != nil {
		return nil, fmt.Errorf("querying direct messages for %s: %w", player, err)
	}
	defer rows.Close()

	var out []peer.DirectMessage
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning direct message for %s: %w", player, err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
