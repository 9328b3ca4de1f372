package puzzle

import (
	"encoding/json"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// Base supplies no-op defaults for every Piece method; concrete pieces
// embed it and override only the handful of methods their behaviour needs
// (spec.md §3 "Puzzle piece" lists the full method set, but most pieces
// only use a few of them — e.g. a Switch never ticks).
type Base struct{}

func (Base) Accept(cause CommandName, value Value, now time.Time) []OutputEvent { return nil }
func (Base) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	return nil
}
func (Base) Tick(now time.Time) []OutputEvent                { return nil }
func (Base) NextWake(now time.Time) (time.Duration, bool)    { return 0, false }
func (Base) Walk(player PlayerKey, mark *uint8, entering bool) []OutputEvent { return nil }
func (Base) UpdateCheck(activeMarks map[uint8]bool) (model.PropertyKey, model.Multi, bool) {
	return model.PropertyKey{}, model.Multi{}, false
}
func (Base) Reset() []OutputEvent                       { return nil }
func (Base) Serialize() (json.RawMessage, error)        { return json.RawMessage("null"), nil }
func (Base) Load(data json.RawMessage) error            { return nil }

func emit(name EventName, v Value) OutputEvent {
	return OutputEvent{Kind: OutputKindEvent, Name: name, Value: v, Sender: -1}
}

// emitFrom is like emit but attributes the re-enqueued event to a piece
// index other than the one whose method produced it — used when a piece
// acts on behalf of another member of a shared-state group (spec.md §4.1
// "Radio button group": the loser, resolved only through the group's
// shared state, still needs to emit its own Deselected).
func emitFrom(sender int, name EventName, v Value) OutputEvent {
	return OutputEvent{Kind: OutputKindEvent, Name: name, Value: v, Sender: sender}
}
