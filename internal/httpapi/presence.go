package httpapi

import (
	"sync"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/wire"
)

// LocalSession is the narrow slice of internal/session.Session the frame
// router and online-status queries need: enough to push a response onto a
// connected player's socket without internal/httpapi depending on every
// session detail.
type LocalSession interface {
	Deliver(resp wire.ClientResponse)
}

// Presence is the process-wide registry of locally-connected players
// (spec.md §4.8 session lifecycle), keyed by principal so a peer frame
// addressed to one of them (DM fan-out, online-status answers, follow/emote
// relay) can be delivered without walking every open socket.
type Presence struct {
	mu       sync.Mutex
	sessions map[model.Principal]LocalSession
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{sessions: map[model.Principal]LocalSession{}}
}

// Register records a connected player's session, replacing any prior one
// under the same principal (a reconnect supersedes the old socket).
func (p *Presence) Register(player model.Principal, s LocalSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[player] = s
}

// Unregister removes a player's session, only if it still matches the one
// passed (a stale Close from a superseded connection must not evict the
// connection that replaced it).
func (p *Presence) Unregister(player model.Principal, s LocalSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.sessions[player]; ok && current == s {
		delete(p.sessions, player)
	}
}

// Deliver pushes a response to a locally-connected player, if present.
func (p *Presence) Deliver(player model.Principal, resp wire.ClientResponse) bool {
	p.mu.Lock()
	s, ok := p.sessions[player]
	p.mu.Unlock()
	if !ok {
		return false
	}
	s.Deliver(resp)
	return true
}

// IsOnline reports whether a local player currently has a connected
// session (spec.md §6 "online_status... local players answered directly").
func (p *Presence) IsOnline(player model.Principal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[player]
	return ok
}
