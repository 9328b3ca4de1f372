// Package selfhosted implements the self-hosted controller (spec.md §4.4,
// component C4): the same external contract as internal/realm (C3), except
// the puzzle engine is replaced by a pipe to the owning player's own
// client. Grounded on the original Rust implementation
// (_examples/original_source/server/src/client/hosting.rs) for the
// HostEvent/HostCommand protocol, and on the teacher's per-connection
// send-queue style (internal/gameserver/client.go) for the owner pump.
package selfhosted

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// HostEventKind discriminates what the controller tells the owning
// player's client (spec.md §4.4 "HostEvent::PlayerEntered/Left/Request").
type HostEventKind int

const (
	HostEventPlayerEntered HostEventKind = iota
	HostEventPlayerLeft
	HostEventRequest
)

// HostEvent is one message sent to the owner's client.
type HostEvent struct {
	Kind   HostEventKind
	Player model.Principal
	Avatar []byte // opaque avatar blob, interpreted by the client
	IsAdmin bool

	// HostEventRequest
	RequestID uint64
	Request   []byte // opaque serialized player request, owner interprets and replies
}

// HostCommandKind discriminates what the owner's client tells the
// controller (spec.md §4.4 "HostCommand::{Broadcast, Drop, Move, Quit,
// RequestError, Response}").
type HostCommandKind int

const (
	HostCommandBroadcast HostCommandKind = iota
	HostCommandDrop
	HostCommandMove
	HostCommandQuit
	HostCommandRequestError
	HostCommandResponse
)

// HostCommand is one command the owner's client issues back to the
// controller.
type HostCommand struct {
	Kind HostCommandKind

	// HostCommandBroadcast
	Targets []model.Principal
	Payload []byte

	// HostCommandDrop / HostCommandMove
	Target model.Principal
	Move   model.RealmLink // HostCommandMove

	// HostCommandRequestError / HostCommandResponse
	RequestID uint64
	Error     string
	Response  []byte
}

// Store is the persistence contract a self-hosted controller writes
// through to: the same cells as internal/realm.Store, minus puzzle state
// (there is no puzzle graph to serialize).
type Store interface {
	SaveAccessACL(ownerName string, acl model.AccessList[model.Privilege]) error
	SaveAdminACL(ownerName string, acl model.AccessList[model.SimpleAccess]) error
	SaveAnnouncements(ownerName string, announcements []model.Announcement) error
	SaveNameAndDirectory(ownerName string, name string, inDirectory bool) error
	SaveHostChat(ownerName string, sender model.Principal, body string, created time.Time) error
}

// hostedPlayer is one present guest's live bookkeeping.
type hostedPlayer struct {
	principal model.Principal
	isAdmin   bool
	out       chan<- HostCommandDelivery
}

// HostCommandDelivery is what a guest's connection handler receives: either
// a broadcast payload, a forced drop, a move order, or a direct response to
// one of its own requests.
type HostCommandDelivery struct {
	Kind HostCommandKind

	Payload   []byte
	Move      model.RealmLink
	RequestID uint64
	Error     string
	Response  []byte
}

// Controller owns one self-hosted destination's live state: ACLs,
// announcements, name, and the set of present guests, all relayed to/from
// the owner's own client connection rather than a puzzle graph (spec.md
// §4.4).
type Controller struct {
	mu sync.Mutex

	ownerName   string
	localServer string

	accessACL model.AccessList[model.Privilege]
	adminACL  model.AccessList[model.SimpleAccess]
	announcements []model.Announcement
	name          string
	inDirectory   bool

	players map[model.Principal]*hostedPlayer

	toOwner   chan<- HostEvent
	fromOwner <-chan HostCommand

	store  Store
	closed bool

	nextRequestID uint64
	pending       map[uint64]model.Principal
}

// New creates a self-hosted controller. toOwner/fromOwner are the
// connection handler's channels to the owning player's own client; the
// caller is responsible for running the owner's network pump and for
// calling Run once to drive outgoing HostCommands.
func New(ownerName, localServer string, acl model.AccessList[model.Privilege], adminACL model.AccessList[model.SimpleAccess], toOwner chan<- HostEvent, fromOwner <-chan HostCommand, store Store) *Controller {
	return &Controller{
		ownerName:   ownerName,
		localServer: localServer,
		accessACL:   acl,
		adminACL:    adminACL,
		players:     map[model.Principal]*hostedPlayer{},
		toOwner:     toOwner,
		fromOwner:   fromOwner,
		store:       store,
		pending:     map[uint64]model.Principal{},
	}
}

// Run drains fromOwner until it closes or a Quit command arrives,
// dispatching each HostCommand to the appropriate guest (spec.md §4.4
// "Owner-side disconnect => controller quits => all guests ejected").
// Intended to run in its own goroutine, mirroring the teacher's
// one-goroutine-per-connection pump (internal/gameserver/client.go).
func (c *Controller) Run() {
	for cmd := range c.fromOwner {
		if cmd.Kind == HostCommandQuit {
			c.quit()
			return
		}
		c.dispatch(cmd)
	}
	c.quit()
}

func (c *Controller) dispatch(cmd HostCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Kind {
	case HostCommandBroadcast:
		for _, target := range cmd.Targets {
			c.deliver(target, HostCommandDelivery{Kind: HostCommandBroadcast, Payload: cmd.Payload})
		}
	case HostCommandDrop:
		c.deliver(cmd.Target, HostCommandDelivery{Kind: HostCommandDrop})
		delete(c.players, cmd.Target)
	case HostCommandMove:
		c.deliver(cmd.Target, HostCommandDelivery{Kind: HostCommandMove, Move: cmd.Move})
		delete(c.players, cmd.Target)
	case HostCommandRequestError:
		c.replyPending(cmd.RequestID, HostCommandDelivery{Kind: HostCommandRequestError, RequestID: cmd.RequestID, Error: cmd.Error})
	case HostCommandResponse:
		c.replyPending(cmd.RequestID, HostCommandDelivery{Kind: HostCommandResponse, RequestID: cmd.RequestID, Response: cmd.Response})
	}
}

func (c *Controller) replyPending(requestID uint64, delivery HostCommandDelivery) {
	principal, ok := c.pending[requestID]
	if !ok {
		return
	}
	delete(c.pending, requestID)
	c.deliver(principal, delivery)
}

func (c *Controller) deliver(target model.Principal, delivery HostCommandDelivery) {
	player, ok := c.players[target]
	if !ok {
		return
	}
	select {
	case player.out <- delivery:
	default:
		slog.Warn("selfhosted: guest output channel full, dropping delivery", "owner", c.ownerName, "target", target)
	}
}

// quit ejects every present guest and marks the controller closed (spec.md
// §4.4 "Owner-side disconnect => controller quits => all guests ejected").
func (c *Controller) quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for target := range c.players {
		c.deliver(target, HostCommandDelivery{Kind: HostCommandDrop})
	}
	c.players = map[model.Principal]*hostedPlayer{}
}

// Closed reports whether the owner has disconnected and every guest has
// been ejected.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// TryAdd admits a guest, checking the access ACL and notifying the owner
// (spec.md §4.4, mirrors realm.Controller.TryAdd's external contract).
func (c *Controller) TryAdd(p model.Principal, isSuperuser bool, avatar []byte, out chan<- HostCommandDelivery, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("selfhosted: controller is shutting down")
	}
	verdict := c.accessACL.Check(p, c.localServer, now)
	if !isSuperuser && verdict == model.PrivilegeDeny {
		return fmt.Errorf("selfhosted: access denied for %s", p)
	}
	isAdmin := isSuperuser || verdict == model.PrivilegeAdmin
	c.players[p] = &hostedPlayer{principal: p, isAdmin: isAdmin, out: out}

	select {
	case c.toOwner <- HostEvent{Kind: HostEventPlayerEntered, Player: p, Avatar: avatar, IsAdmin: isAdmin}:
	default:
		delete(c.players, p)
		return fmt.Errorf("selfhosted: owner channel full, admission rejected")
	}
	return nil
}

// RemovePlayer evicts a guest and notifies the owner (spec.md §4.4
// "HostEvent::PlayerLeft").
func (c *Controller) RemovePlayer(p model.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.players[p]; !ok {
		return
	}
	delete(c.players, p)
	select {
	case c.toOwner <- HostEvent{Kind: HostEventPlayerLeft, Player: p}:
	default:
	}
}

// Request forwards a guest's opaque request payload to the owner's client
// and registers the assigned request id so the eventual HostCommand
// response routes back to the right guest.
func (c *Controller) Request(p model.Principal, payload []byte) (requestID uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.players[p]; !ok {
		return 0, fmt.Errorf("selfhosted: %s is not present", p)
	}
	c.nextRequestID++
	id := c.nextRequestID
	c.pending[id] = p

	select {
	case c.toOwner <- HostEvent{Kind: HostEventRequest, Player: p, RequestID: id, Request: payload}:
	default:
		delete(c.pending, id)
		return 0, fmt.Errorf("selfhosted: owner channel full")
	}
	return id, nil
}
