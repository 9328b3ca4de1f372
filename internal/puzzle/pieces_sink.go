package puzzle

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
)

// MapSink writes its Set(Bool) input to a shared navigation.GateState,
// which GatedObstacle tiles inspect directly: toggling the gate is
// instantaneous and never requires rewalking players (spec.md §4.1 "Map
// sink(gate_ref)", §4.2, §9).
type MapSink struct {
	Base
	Gate *navigation.GateState
}

func NewMapSink(gate *navigation.GateState) *MapSink { return &MapSink{Gate: gate} }

func (m *MapSink) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueBool {
		return nil
	}
	m.Gate.SetOpen(value.Bool)
	return nil
}

// PropertySink is the canonical publisher of a single (BoolSink|NumSink)
// PropertyKey: it consumes Set commands and reports the latest value via
// UpdateCheck (spec.md §4.1 "Sink(BoolSink name | NumSink name)").
type PropertySink struct {
	Base
	Key   model.PropertyKey
	value model.PropertyValue
	has   bool
}

func NewPropertySink(key model.PropertyKey) *PropertySink {
	return &PropertySink{Key: key}
}

func (p *PropertySink) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet {
		return nil
	}
	switch value.Kind {
	case ValueBool:
		p.value, p.has = model.BoolValue(value.Bool), true
	case ValueNum:
		p.value, p.has = model.NumValue(value.Num), true
	}
	return nil
}

func (p *PropertySink) UpdateCheck(activeMarks map[uint8]bool) (model.PropertyKey, model.Multi, bool) {
	if !p.has {
		return model.PropertyKey{}, model.Multi{}, false
	}
	return p.Key, model.SingleMulti(p.value), true
}

// EventSink is the canonical publisher of an EventSink PropertyKey: every
// Set delivery is appended as a tick timestamp, reported as
// model.PropertyValueTicks (spec.md §3 "EventSink").
type EventSink struct {
	Base
	Key   model.PropertyKey
	ticks []int64
}

func NewEventSink(key model.PropertyKey) *EventSink { return &EventSink{Key: key} }

func (e *EventSink) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet {
		return nil
	}
	e.ticks = append(e.ticks, now.UnixNano())
	return nil
}

func (e *EventSink) UpdateCheck(activeMarks map[uint8]bool) (model.PropertyKey, model.Multi, bool) {
	if len(e.ticks) == 0 {
		return model.PropertyKey{}, model.Multi{}, false
	}
	return e.Key, model.SingleMulti(model.TicksValue(e.ticks)), true
}

// MultiSink publishes a masked value: a default plus per-mark overrides
// (spec.md §3 "Multi::Multi", §4.1 "MultiSink... publishes a Multi based on
// per-mark overrides"). The default and the overrides change only through
// SetForMark; MultiSink has no Accept of its own, so commands delivered by
// propagation rules leave it unchanged.
type MultiSink struct {
	Base
	Key      model.PropertyKey
	Default  model.PropertyValue
	overrides map[uint8]model.PropertyValue
}

func NewMultiSink(key model.PropertyKey, def model.PropertyValue) *MultiSink {
	return &MultiSink{Key: key, Default: def, overrides: map[uint8]model.PropertyValue{}}
}

// SetForMark applies an override for one mark; a nil mark changes the
// broadcast default for players without an override.
func (m *MultiSink) SetForMark(mark *uint8, value model.PropertyValue) {
	if mark == nil {
		m.Default = value
		return
	}
	m.overrides[*mark] = value
}

func (m *MultiSink) UpdateCheck(activeMarks map[uint8]bool) (model.PropertyKey, model.Multi, bool) {
	return m.Key, model.MaskedMulti(m.Default, m.overrides), true
}
