package model

import (
	"slices"
	"strconv"
)

// PropertyKeyKind discriminates the PropertyKey union (spec.md §3).
type PropertyKeyKind int

const (
	PropertyKeyBoolSink PropertyKeyKind = iota
	PropertyKeyNumSink
	PropertyKeyEventSink
)

// PropertyKey names a published realm state slot.
type PropertyKey struct {
	Kind PropertyKeyKind
	Name string
}

func BoolSinkKey(name string) PropertyKey  { return PropertyKey{Kind: PropertyKeyBoolSink, Name: name} }
func NumSinkKey(name string) PropertyKey   { return PropertyKey{Kind: PropertyKeyNumSink, Name: name} }
func EventSinkKey(name string) PropertyKey { return PropertyKey{Kind: PropertyKeyEventSink, Name: name} }

// PropertyValueKind discriminates the PropertyValue union.
type PropertyValueKind int

const (
	PropertyValueBool PropertyValueKind = iota
	PropertyValueNum
	PropertyValueTicks
)

// PropertyValue is the value published under a PropertyKey.
type PropertyValue struct {
	Kind  PropertyValueKind
	Bool  bool
	Num   float64
	Ticks []int64 // unix nanoseconds, for PropertyValueTicks
}

func BoolValue(v bool) PropertyValue  { return PropertyValue{Kind: PropertyValueBool, Bool: v} }
func NumValue(v float64) PropertyValue { return PropertyValue{Kind: PropertyValueNum, Num: v} }
func TicksValue(v []int64) PropertyValue {
	return PropertyValue{Kind: PropertyValueTicks, Ticks: v}
}

// Equal compares two property values structurally.
func (v PropertyValue) Equal(other PropertyValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case PropertyValueBool:
		return v.Bool == other.Bool
	case PropertyValueNum:
		return v.Num == other.Num
	case PropertyValueTicks:
		if len(v.Ticks) != len(other.Ticks) {
			return false
		}
		for i := range v.Ticks {
			if v.Ticks[i] != other.Ticks[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Multi is either a single value shared by all players, or a default plus
// per-mark overrides (spec.md §3 "Publication may be masked").
type Multi struct {
	Single     *PropertyValue
	Default    PropertyValue
	PerMark    map[uint8]PropertyValue
	IsMulti    bool
}

// SingleMulti builds a Multi publishing the same value to everyone.
func SingleMulti(v PropertyValue) Multi {
	return Multi{Single: &v}
}

// MaskedMulti builds a Multi publishing defaultValue to players without an
// override, and perMark[mark] to players whose mark has one.
func MaskedMulti(defaultValue PropertyValue, perMark map[uint8]PropertyValue) Multi {
	return Multi{IsMulti: true, Default: defaultValue, PerMark: perMark}
}

// ForMark resolves the value a player with the given mark (or no mark, via
// hasMark=false) observes.
func (m Multi) ForMark(mark uint8, hasMark bool) PropertyValue {
	if !m.IsMulti {
		if m.Single != nil {
			return *m.Single
		}
		return PropertyValue{}
	}
	if hasMark {
		if v, ok := m.PerMark[mark]; ok {
			return v
		}
	}
	return m.Default
}

// Convolve produces the set of distinct broadcast frames this Multi
// requires: one frame per distinct observed value, each tagged with the set
// of marks that see it (nil marks means "everyone without a more specific
// override"). Convolve is idempotent: convolving twice over the same
// PerMark/Default contents yields the same plan (spec.md §8). Marks are
// walked in sorted order so two calls produce structurally identical output,
// not merely set-equal output — Go map iteration order is randomized and
// would otherwise make the frame order (and each frame's Marks order) vary
// from call to call.
func (m Multi) Convolve() []ConvolvedFrame {
	if !m.IsMulti {
		v := PropertyValue{}
		if m.Single != nil {
			v = *m.Single
		}
		return []ConvolvedFrame{{Value: v, Marks: nil, IsDefault: true}}
	}
	marks := make([]uint8, 0, len(m.PerMark))
	for mark := range m.PerMark {
		marks = append(marks, mark)
	}
	slices.Sort(marks)

	byValue := map[string]*ConvolvedFrame{}
	order := make([]string, 0, len(marks)+1)
	key := func(v PropertyValue) string {
		return propertyValueKey(v)
	}
	def := key(m.Default)
	byValue[def] = &ConvolvedFrame{Value: m.Default, IsDefault: true}
	order = append(order, def)
	for _, mark := range marks {
		v := m.PerMark[mark]
		if v.Equal(m.Default) {
			continue
		}
		k := key(v)
		f, ok := byValue[k]
		if !ok {
			f = &ConvolvedFrame{Value: v}
			byValue[k] = f
			order = append(order, k)
		}
		f.Marks = append(f.Marks, mark)
	}
	out := make([]ConvolvedFrame, 0, len(order))
	for _, k := range order {
		out = append(out, *byValue[k])
	}
	return out
}

// ConvolvedFrame is one distinct broadcast frame produced by Multi.Convolve:
// Value is sent to every player whose mark is in Marks, or to everyone with
// no more specific frame when IsDefault is true.
type ConvolvedFrame struct {
	Value     PropertyValue
	Marks     []uint8
	IsDefault bool
}

func propertyValueKey(v PropertyValue) string {
	switch v.Kind {
	case PropertyValueBool:
		if v.Bool {
			return "b:1"
		}
		return "b:0"
	case PropertyValueNum:
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case PropertyValueTicks:
		s := "t:"
		for _, t := range v.Ticks {
			s += strconv.FormatInt(t, 10) + ","
		}
		return s
	default:
		return "?"
	}
}
