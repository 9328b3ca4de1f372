package puzzle

import (
	"encoding/json"
	"time"
)

const (
	EventSelected   EventName = "Selected"
	EventDeselected EventName = "Deselected"
)

// RadioButton is one member of a named group sharing a RadioSharedState;
// clicking it makes it the sole active member via a lock-free CAS, with
// the loser (the previously-active member, resolved through the shared
// state rather than direct piece-to-piece reference) implicitly
// deselected (spec.md §4.1 "Radio button group", §9 "pieces own Arc to
// shared state cells... holding only indices to each other through
// propagation rules").
type RadioButton struct {
	Base
	Index int // this piece's own index, needed to compare against RadioSharedState.Active()
	Shared *RadioSharedState
}

func NewRadioButton(index int, shared *RadioSharedState) *RadioButton {
	return &RadioButton{Index: index, Shared: shared}
}

func (r *RadioButton) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	if kind != InteractClick {
		return nil
	}
	became, previous := r.Shared.Select(r.Index)
	if !became {
		return nil
	}
	return selectOutputs(r.Index, previous)
}

// Accept lets an external CommandSet(Bool) force selection/deselection,
// used by propagation rules that want to drive a radio group
// programmatically.
func (r *RadioButton) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueBool {
		return nil
	}
	if value.Bool {
		became, previous := r.Shared.Select(r.Index)
		if became {
			return selectOutputs(r.Index, previous)
		}
		return nil
	}
	if r.Shared.Active() == r.Index {
		r.Shared.Select(-1)
		return []OutputEvent{emit(EventDeselected, Empty())}
	}
	return nil
}

// selectOutputs builds the output pair a winning CAS produces: the winner's
// own Selected, plus — since the loser is resolved only through the shared
// group state and never invoked directly — a Deselected attributed to the
// loser's own piece index (spec.md §4.1 "losers emit Deselected, winner
// emits Selected"). previous < 0 means the group had no prior member.
func selectOutputs(winner, previous int) []OutputEvent {
	outs := []OutputEvent{emit(EventSelected, Empty())}
	if previous >= 0 && previous != winner {
		outs = append(outs, emitFrom(previous, EventDeselected, Empty()))
	}
	return outs
}

type radioButtonState struct {
	Selected bool `json:"selected"`
}

func (r *RadioButton) Serialize() (json.RawMessage, error) {
	return json.Marshal(radioButtonState{Selected: r.Shared.Active() == r.Index})
}
func (r *RadioButton) Load(data json.RawMessage) error {
	var s radioButtonState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Selected {
		r.Shared.Select(r.Index)
	}
	return nil
}
