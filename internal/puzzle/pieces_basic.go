package puzzle

import (
	"encoding/json"
	"time"
)

// EventClicked, EventChanged, etc. are the event names pieces in this file
// emit; propagation rules reference these by value (spec.md §3).
const (
	EventClicked EventName = "Clicked"
	EventChanged EventName = "Changed"
	EventAtMax   EventName = "AtMax"
	EventAtMin   EventName = "AtMin"
)

// CommandSet, CommandUp, CommandDown, CommandReset are the commands this
// file's pieces accept.
const (
	CommandSet   CommandName = "Set"
	CommandUp    CommandName = "Up"
	CommandDown  CommandName = "Down"
	CommandReset CommandName = "Reset"
)

// MarkMatcher is a closed predicate over an optional player mark, used by
// Button to gate who may click it (spec.md §4.1 "Button... matcher over
// marks").
type MarkMatcher struct {
	Any   bool
	Marks map[uint8]bool
}

func AnyMark() MarkMatcher        { return MarkMatcher{Any: true} }
func OneOfMarks(m ...uint8) MarkMatcher {
	set := make(map[uint8]bool, len(m))
	for _, v := range m {
		set[v] = true
	}
	return MarkMatcher{Marks: set}
}

func (m MarkMatcher) matches(mark *uint8) bool {
	if m.Any {
		return true
	}
	if mark == nil {
		return false
	}
	return m.Marks[*mark]
}

// Button emits Clicked(Empty) on interaction, when enabled and the
// interacting player's mark satisfies Matcher (spec.md §4.1 "Button").
type Button struct {
	Base
	Enabled bool
	Matcher MarkMatcher
}

func NewButton(enabled bool, matcher MarkMatcher) *Button {
	return &Button{Enabled: enabled, Matcher: matcher}
}

func (b *Button) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	if kind != InteractClick || !b.Enabled || !b.Matcher.matches(mark) {
		return nil
	}
	return []OutputEvent{emit(EventClicked, Empty())}
}

func (b *Button) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause == CommandSet && value.Kind == ValueBool {
		b.Enabled = value.Bool
	}
	return nil
}

type buttonState struct {
	Enabled bool `json:"enabled"`
}

func (b *Button) Serialize() (json.RawMessage, error) {
	return json.Marshal(buttonState{Enabled: b.Enabled})
}

func (b *Button) Load(data json.RawMessage) error {
	var s buttonState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.Enabled = s.Enabled
	return nil
}

// Switch holds a bool state, toggled by Click, overridable by Set, emitting
// Changed(Bool) whenever the value actually changes (spec.md §4.1
// "Switch").
type Switch struct {
	Base
	On bool
}

func NewSwitch(initial bool) *Switch { return &Switch{On: initial} }

func (s *Switch) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	if kind != InteractClick {
		return nil
	}
	s.On = !s.On
	return []OutputEvent{emit(EventChanged, BoolVal(s.On))}
}

func (s *Switch) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueBool {
		return nil
	}
	if value.Bool == s.On {
		return nil
	}
	s.On = value.Bool
	return []OutputEvent{emit(EventChanged, BoolVal(s.On))}
}

type switchState struct {
	On bool `json:"on"`
}

func (s *Switch) Serialize() (json.RawMessage, error) { return json.Marshal(switchState{On: s.On}) }
func (s *Switch) Load(data json.RawMessage) error {
	var st switchState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.On = st.On
	return nil
}

// Counter is a saturating counter over [0, Max] (spec.md §4.1
// "Counter(max)").
type Counter struct {
	Base
	Max   int64
	Value int64
}

func NewCounter(max int64) *Counter { return &Counter{Max: max} }

func (c *Counter) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	before := c.Value
	switch cause {
	case CommandUp:
		if c.Value < c.Max {
			c.Value++
		}
	case CommandDown:
		if c.Value > 0 {
			c.Value--
		}
	case CommandReset:
		c.Value = 0
	default:
		return nil
	}
	var out []OutputEvent
	if c.Value != before {
		out = append(out, emit(EventChanged, NumVal(float64(c.Value))))
	}
	if c.Value == c.Max {
		out = append(out, emit(EventAtMax, Empty()))
	}
	if c.Value == 0 {
		out = append(out, emit(EventAtMin, Empty()))
	}
	return out
}

type counterState struct {
	Value int64 `json:"value"`
}

func (c *Counter) Serialize() (json.RawMessage, error) {
	return json.Marshal(counterState{Value: c.Value})
}
func (c *Counter) Load(data json.RawMessage) error {
	var s counterState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.Value = s.Value
	return nil
}
