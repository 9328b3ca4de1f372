// Package destination implements the generic Destination Manager (spec.md
// §4.5, component C5): a supervisor parameterized over a Destination
// controller (internal/realm.Controller or internal/selfhosted.Controller)
// that owns player admission, avatar broadcast, consent flows (follow,
// consensual emote), and dispatch of controller control outputs to
// players. Grounded on the original Rust implementation
// (_examples/original_source/server/src/destination/manager.rs, mod.rs)
// for the admission protocol and consent-request bookkeeping, and on the
// teacher's per-connection channel pump style
// (internal/gameserver/client.go) for how player output queues are shaped.
package destination

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// followExpiry and activityGCInterval are the two fixed timings governing
// consent-request bookkeeping (spec.md §4.5 "expiry=5min... garbage
// collected each activity tick (15 min default)").
const (
	followExpiry      = 5 * time.Minute
	activityGCInterval = 15 * time.Minute
)

// ControlKind discriminates a Destination controller's outgoing control
// output (spec.md §4.5 "Dispatch. Controller control outputs (Broadcast,
// Move, MoveTrain, Quit, Response, SendMessage)").
type ControlKind int

const (
	ControlBroadcast ControlKind = iota
	ControlMove
	ControlMoveTrain
	ControlQuit
	ControlResponse
	ControlSendMessage
)

// ControlOutput is one message a Destination controller wants delivered to
// one or more players.
type ControlOutput struct {
	Kind ControlKind

	Targets []model.Principal
	Payload []byte

	Move model.RealmLink // ControlMove

	// ControlResponse
	RequestID uint64
	Response  []byte
}

// Destination is the controller contract the manager wraps: both
// internal/realm.Controller and internal/selfhosted.Controller are adapted
// to satisfy it (spec.md §4.5 "parameterized by a controller (Destination)
// trait").
type Destination interface {
	// TryAdd admits a player, returning an error if the controller's own
	// ACL denies them (spec.md §4.5 step 3). out is the player's control
	// output channel, already registered with the Manager; a
	// Destination that itself pushes asynchronously (e.g. selfhosted's
	// owner pipe) bridges its own delivery channel into out.
	TryAdd(p model.Principal, isSuperuser bool, out chan<- ControlOutput, now time.Time) error
	RemovePlayer(p model.Principal)
	// Capabilities lists the capability tags this destination's content
	// requires; admission fails if the player lacks any of them (spec.md
	// §4.5 step 1).
	Capabilities() map[string]bool
}

// PlayerInfo is the manager's bookkeeping for one present player (spec.md
// §4.5 "players: map<PlayerKey, PlayerInfo{avatar_watch, capabilities,
// is_superuser, principal, tx, rx}>").
type PlayerInfo struct {
	Principal    model.Principal
	Capabilities map[string]bool
	IsSuperuser  bool
	Avatar       []byte
	Out          chan<- ControlOutput
}

type followRequest struct {
	source model.Principal
	expiry time.Time
}

type emoteRequest struct {
	source model.Principal
	emote  string
	expiry time.Time
}

// Manager wraps one live Destination, handling admission, avatar
// broadcast, consent flows, and control-output dispatch (spec.md §4.5).
type Manager struct {
	mu sync.Mutex

	controller Destination
	owner      model.Principal

	players map[model.Principal]*PlayerInfo
	avatars map[model.Principal][]byte

	followRequests          map[followKey]followRequest
	consensualEmoteRequests map[followKey]emoteRequest
	nextRequestID           uint64

	lastActivityGC time.Time
}

// followKey addresses one pending consent request by (target, request id).
type followKey struct {
	target model.Principal
	id     uint64
}

// New creates a manager wrapping an already-initialized controller.
func New(controller Destination, owner model.Principal) *Manager {
	return &Manager{
		controller:              controller,
		owner:                   owner,
		players:                 map[model.Principal]*PlayerInfo{},
		avatars:                 map[model.Principal][]byte{},
		followRequests:          map[followKey]followRequest{},
		consensualEmoteRequests: map[followKey]emoteRequest{},
	}
}

// MissingCapabilitiesError reports that a player lacks a capability the
// destination's content requires.
type MissingCapabilitiesError struct{ Capabilities []string }

func (e *MissingCapabilitiesError) Error() string {
	return fmt.Sprintf("destination: player missing capabilities %v", e.Capabilities)
}

// PermissionDeniedError reports that the controller's own ACL rejected the
// player (spec.md §4.5 step 3 "On Err -> PermissionDenied").
type PermissionDeniedError struct{ Cause error }

func (e *PermissionDeniedError) Error() string { return fmt.Sprintf("destination: permission denied: %v", e.Cause) }
func (e *PermissionDeniedError) Unwrap() error  { return e.Cause }

// Add runs the admission protocol for one player (spec.md §4.5 "Admission
// protocol"): capability check, owner auto-elevation, controller
// delegation, then avatar broadcast.
func (m *Manager) Add(p model.Principal, capabilities map[string]bool, avatar []byte, out chan<- ControlOutput, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []string
	for cap := range m.controller.Capabilities() {
		if !capabilities[cap] {
			missing = append(missing, cap)
		}
	}
	if len(missing) > 0 {
		return &MissingCapabilitiesError{Capabilities: missing}
	}

	isSuperuser := p.Equal(m.owner)
	if err := m.controller.TryAdd(p, isSuperuser, out, now); err != nil {
		return &PermissionDeniedError{Cause: err}
	}

	info := &PlayerInfo{Principal: p, Capabilities: capabilities, IsSuperuser: isSuperuser, Avatar: avatar, Out: out}
	m.players[p] = info
	m.avatars[p] = avatar

	m.broadcastAvatar(p, avatar)
	return nil
}

// Remove evicts a player from both the manager and the wrapped controller.
func (m *Manager) Remove(p model.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(p)
}

func (m *Manager) removeLocked(p model.Principal) {
	delete(m.players, p)
	delete(m.avatars, p)
	m.controller.RemovePlayer(p)
}

// broadcastAvatar sends a player's avatar to every other present player
// (spec.md §4.5 "Broadcast the player's initial avatar to peers").
func (m *Manager) broadcastAvatar(p model.Principal, avatar []byte) {
	for target, info := range m.players {
		if target.Equal(p) {
			continue
		}
		m.send(target, info, ControlOutput{Kind: ControlBroadcast, Targets: []model.Principal{p}, Payload: avatar})
	}
}

func (m *Manager) send(target model.Principal, info *PlayerInfo, out ControlOutput) {
	select {
	case info.Out <- out:
	default:
		slog.Warn("destination: player output channel full, marking dead", "player", target)
		m.removeLocked(target)
	}
}

// Dispatch forwards one controller control output to its targets,
// dropping (and removing) any player whose channel is full (spec.md §4.5
// "Dispatch... on channel-send failure the player is marked dead and
// removed").
func (m *Manager) Dispatch(out ControlOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if out.Kind == ControlQuit {
		for target := range m.players {
			m.removeLocked(target)
		}
		return
	}
	for _, target := range out.Targets {
		info, ok := m.players[target]
		if !ok {
			continue
		}
		m.send(target, info, out)
	}
}

// Destination returns the wrapped controller, letting a caller type-assert
// for capabilities beyond the Destination interface (e.g. internal/directory
// asserting AdminDeleter to route a delete to a live realm controller).
func (m *Manager) Destination() Destination {
	return m.controller
}

// Players returns a snapshot of present player principals.
func (m *Manager) Players() []model.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Principal, 0, len(m.players))
	for p := range m.players {
		out = append(out, p)
	}
	return out
}
