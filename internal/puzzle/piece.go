package puzzle

import (
	"encoding/json"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// PlayerKey identifies a player for the purposes of puzzle-graph bookkeeping
// (mark mutation, move emission, walk notification).
type PlayerKey = model.Principal

// CommandName and EventName are the piece vocabulary: a propagation rule
// fires `sender.Trigger` into `recipient.Cause`.
type CommandName string
type EventName string

// InteractionKind is how a player touched a piece (spec.md §4.1 "Button:
// interact(Click, mark)").
type InteractionKind int

const (
	InteractClick InteractionKind = iota
	InteractRealmTarget
)

// LinkOutKind discriminates the LinkOut union a piece can emit via a Send
// output event (spec.md §4.1, §4.3 "Solve propagation").
type LinkOutKind int

const (
	LinkOutRealm LinkOutKind = iota
	LinkOutTrainNext
	LinkOutSpawn
)

// LinkOut is a destination change a piece requests for one or more players.
type LinkOut struct {
	Kind  LinkOutKind
	Realm model.RealmLink // LinkOutRealm
	Spawn *string          // LinkOutSpawn: named spawn point, nil for default
}

// MarkOpKind discriminates the per-player mark mutation a piece can emit.
type MarkOpKind int

const (
	MarkSet MarkOpKind = iota
	MarkUnset
	MarkBitSet
	MarkBitClear
	MarkBitToggle
)

// OutputEventKind discriminates what a piece produced from Accept/Interact/
// Tick/Walk (spec.md §4.1 "The piece emits zero or more OutputEvents").
type OutputEventKind int

const (
	OutputKindEvent OutputEventKind = iota // re-enqueue Name/Value as a new graph event
	OutputKindSend                         // record moves[player] = LinkOut (first writer wins)
	OutputKindMark                         // mutate active_players[player].mark
)

// OutputEvent is what a piece's Accept/Interact/Tick/Walk/Reset call
// produces; Graph.Process drains these to a fixed point.
type OutputEvent struct {
	Kind OutputEventKind

	// OutputEvent
	Name  EventName
	Value Value

	// Sender overrides which piece index this OutputKindEvent is attributed
	// to once re-enqueued as a graph event; -1 means "use the index of the
	// piece whose method produced this output" (the common case — only
	// RadioButton sets this explicitly, for its loser's Deselected event).
	Sender int

	// OutputSend and OutputMark both address a set of players.
	Players []PlayerKey

	// OutputSend
	Link LinkOut

	// OutputMark
	MarkOp MarkOpKind
	Mark   uint8
	Bit    uint8
}

// Piece is the polymorphic stateful node in the puzzle graph (spec.md §3
// "Puzzle piece"). Every concrete piece type in pieces_*.go implements this.
type Piece interface {
	// Accept delivers a command (the transformed output of some
	// propagation rule, or a directly-dispatched interaction) to the
	// piece.
	Accept(cause CommandName, value Value, now time.Time) []OutputEvent

	// Interact handles a direct player touch, gated by the navigation
	// layer's InteractionKey resolution.
	Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent

	// Tick lets time-driven pieces (clocks, metronomes, timers) produce
	// output without an incoming command.
	Tick(now time.Time) []OutputEvent

	// NextWake reports when this piece next wants a Tick call.
	NextWake(now time.Time) (time.Duration, bool)

	// Walk notifies proximity-tracking pieces that a player entered or
	// left the piece's tile region.
	Walk(player PlayerKey, mark *uint8, entering bool) []OutputEvent

	// UpdateCheck reports this piece's current published state, if it
	// publishes one (sinks do; most pieces don't).
	UpdateCheck(activeMarks map[uint8]bool) (model.PropertyKey, model.Multi, bool)

	// Reset returns the piece to its blank, newly-initialized state
	// (spec.md §4.3 step 4, "Run piece.reset() over every piece").
	Reset() []OutputEvent

	// Serialize captures persistable state as a JSON value (spec.md
	// §4.1 "Serialization").
	Serialize() (json.RawMessage, error)

	// Load restores state from a previously-serialized JSON value.
	Load(data json.RawMessage) error
}
