package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// State is a peer connection's lifecycle (spec.md §4.7 "Liveness. A peer
// has an explicit lifecycle: Idle -> Connecting -> Online ->
// Offline(retry_backoff)").
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOnline
	StateOffline
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 2 * time.Minute
)

// Conn is the minimal transport contract a live peer socket provides;
// satisfied by a thin wrapper over *websocket.Conn so the state machine
// below never imports gorilla/websocket directly and stays unit-testable
// against an in-memory fake.
type Conn interface {
	WriteFrame(f Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// Peer is one federation connection to a remote Spadina server (spec.md
// §4.7). Exactly one *Peer exists per remote server name at a time; the
// directory's peer map upserts it on demand (internal/directory.Peer).
type Peer struct {
	mu sync.Mutex

	name  string
	state State
	conn  Conn

	attempt int // consecutive failed (re)connect attempts, drives backoff
	retryAt time.Time

	outgoing chan Frame

	handler Handler

	// capabilities is the capability set negotiated once per link via the
	// handshake's capability header (spec.md §4.7 handshake); every
	// remote visitor routed through this link is admitted with this same
	// set, since nothing in the frame vocabulary carries capabilities
	// per-visit.
	capabilities map[string]bool

	// tunnels indexes this server's own open visitor tunnels over this
	// link by the local player visiting through it, so a frame arriving
	// for that player (RealmResponse, AvatarSet, VisitorRelease) can be
	// routed without a separate lookup table in the caller.
	tunnels map[model.Principal]*VisitorTunnel

	onOnline func()
}

// Handler processes frames arriving from a peer connection; implemented
// by the directory/session layer that knows how to route a visitor
// request, chat post, or DM batch once it crosses the wire.
type Handler interface {
	HandleFrame(peerName string, f Frame)
	HandleDisconnect(peerName string)
}

// NewPeer creates a peer entry in StateIdle; call Dial or Adopt to bring it
// online.
func NewPeer(name string, handler Handler) *Peer {
	return &Peer{name: name, state: StateIdle, handler: handler, outgoing: make(chan Frame, 256), tunnels: map[model.Principal]*VisitorTunnel{}}
}

func (p *Peer) Name() string { return p.name }

// SetCapabilities records the capability set this link negotiated at
// handshake time (spec.md §4.7 "a capability header"). Called once, before
// the connection is adopted.
func (p *Peer) SetCapabilities(capabilities map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capabilities = capabilities
}

// Capabilities reports this link's negotiated capability set.
func (p *Peer) Capabilities() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capabilities
}

// SetOnOnline registers a callback invoked every time this peer transitions
// to StateOnline, e.g. to drain the outbound direct-message queue (spec.md
// §4.7 "On peer online transition, the pending batch for that peer is
// drained and sent").
func (p *Peer) SetOnOnline(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOnline = fn
}

// registerTunnel records an open visitor tunnel for player, so a later
// frame addressed to them can be routed to it.
func (p *Peer) registerTunnel(player model.Principal, t *VisitorTunnel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tunnels[player] = t
}

func (p *Peer) unregisterTunnel(player model.Principal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tunnels, player)
}

// Tunnel looks up this link's open visitor tunnel for player, if any.
func (p *Peer) Tunnel(player model.Principal) (*VisitorTunnel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tunnels[player]
	return t, ok
}

// Dead reports whether this peer's connection task has exited terminally
// (spec.md §4.6 "clean_peer(name) removes a peer whose connection task has
// exited"); only StateKilled is terminal, Offline still has a live retry
// loop.
func (p *Peer) Dead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateKilled
}

// State reports the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Adopt installs a live connection, e.g. once a handshake (either
// direction) completes (spec.md §4.7 "whichever completes first adopts
// the socket").
func (p *Peer) Adopt(conn Conn) {
	p.mu.Lock()
	if p.state == StateKilled {
		p.mu.Unlock()
		conn.Close()
		return
	}
	if p.conn != nil {
		// a connection has already been adopted from the other direction;
		// the later one loses the race and is closed.
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.state = StateOnline
	p.attempt = 0
	onOnline := p.onOnline
	p.mu.Unlock()

	if onOnline != nil {
		go onOnline()
	}
	go p.readLoop(conn)
	go p.writeLoop(conn)
}

func (p *Peer) readLoop(conn Conn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			p.disconnect(conn, err)
			return
		}
		p.handler.HandleFrame(p.name, f)
	}
}

func (p *Peer) writeLoop(conn Conn) {
	for f := range p.outgoing {
		p.mu.Lock()
		live := p.conn == conn
		p.mu.Unlock()
		if !live {
			return
		}
		if err := conn.WriteFrame(f); err != nil {
			p.disconnect(conn, err)
			return
		}
	}
}

func (p *Peer) disconnect(conn Conn, err error) {
	p.mu.Lock()
	if p.conn != conn || p.state == StateKilled {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	p.state = StateOffline
	p.attempt++
	p.retryAt = time.Now().Add(backoffDuration(p.attempt))
	p.mu.Unlock()

	slog.Warn("peer: connection lost", "peer", p.name, "error", err)
	p.handler.HandleDisconnect(p.name)
}

// backoffDuration is exponential with jitter, capped at backoffMax
// (spec.md §4.7 "Retry is exponential with jitter, capped").
func backoffDuration(attempt int) time.Duration {
	d := backoffBase * time.Duration(1<<min(attempt, 10))
	if d > backoffMax {
		d = backoffMax
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 2))
	return d/2 + jitter
}

// ReadyToRetry reports whether enough backoff time has elapsed to attempt
// reconnecting an offline peer.
func (p *Peer) ReadyToRetry(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateOffline && !now.Before(p.retryAt)
}

// Send enqueues a frame for delivery; frames sent while offline with no DB
// fallback are dropped (spec.md §4.7 "Messages sent while Offline with no
// DB fallback (e.g., location tunnels) are dropped after notifying the
// originator via VisitorRelease").
func (p *Peer) Send(f Frame) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StateOnline {
		return fmt.Errorf("peer: %s is not online (state=%s)", p.name, state)
	}
	select {
	case p.outgoing <- f:
		return nil
	default:
		return errors.New("peer: outgoing queue full")
	}
}

// Close gracefully closes the live connection without killing the peer
// entry; a future Adopt can bring it back online.
func (p *Peer) Close() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	if p.state != StateKilled {
		p.state = StateOffline
	}
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Kill terminates the peer permanently (spec.md §4.7 "kill() is
// terminal"); no further reconnect attempts should be made and the entry
// should be removed from the directory's peer map.
func (p *Peer) Kill() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.state = StateKilled
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	close(p.outgoing)
}
