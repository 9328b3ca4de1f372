package puzzle

import (
	"encoding/json"
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
)

// LogicOp is the closed set of boolean combinators a LogicGate applies
// (spec.md §4.1 "Logic gate(op)").
type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
	LogicXor
	LogicNot
)

// LogicGate combines up to two Set(Bool) inputs (In1/In2; In2 unused for
// Not) and republishes the combination on every update, emitting
// Changed(Bool) whenever the output flips.
type LogicGate struct {
	Base
	Op       LogicOp
	in1, in2 bool
	out      bool
}

func NewLogicGate(op LogicOp) *LogicGate { return &LogicGate{Op: op} }

const (
	CommandSetIn1 CommandName = "SetIn1"
	CommandSetIn2 CommandName = "SetIn2"
)

func (g *LogicGate) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if value.Kind != ValueBool {
		return nil
	}
	switch cause {
	case CommandSetIn1, CommandSet:
		g.in1 = value.Bool
	case CommandSetIn2:
		g.in2 = value.Bool
	default:
		return nil
	}
	before := g.out
	switch g.Op {
	case LogicAnd:
		g.out = g.in1 && g.in2
	case LogicOr:
		g.out = g.in1 || g.in2
	case LogicXor:
		g.out = g.in1 != g.in2
	case LogicNot:
		g.out = !g.in1
	}
	if g.out == before {
		return nil
	}
	return []OutputEvent{emit(EventChanged, BoolVal(g.out))}
}

type logicGateState struct {
	In1 bool `json:"in1"`
	In2 bool `json:"in2"`
	Out bool `json:"out"`
}

func (g *LogicGate) Serialize() (json.RawMessage, error) {
	return json.Marshal(logicGateState{In1: g.in1, In2: g.in2, Out: g.out})
}
func (g *LogicGate) Load(data json.RawMessage) error {
	var s logicGateState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	g.in1, g.in2, g.out = s.In1, s.In2, s.Out
	return nil
}

// Comparator republishes NumCompare applied to a single Set(Num) input
// against a fixed threshold, as Changed(Bool) (spec.md §4.1 "Comparator").
// Distinct from a Matcher: this is a standing piece with persisted state,
// not a stateless rule transform.
type Comparator struct {
	Base
	Compare   NumCompare
	Threshold float64
	value     float64
	out       bool
	has       bool
}

func NewComparator(cmp NumCompare, threshold float64) *Comparator {
	return &Comparator{Compare: cmp, Threshold: threshold}
}

func (c *Comparator) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueNum {
		return nil
	}
	c.value = value.Num
	c.has = true
	before := c.out
	c.out = c.Compare.apply(c.value, c.Threshold)
	if c.out == before {
		return nil
	}
	return []OutputEvent{emit(EventChanged, BoolVal(c.out))}
}

type comparatorState struct {
	Value float64 `json:"value"`
	Out   bool    `json:"out"`
	Has   bool    `json:"has"`
}

func (c *Comparator) Serialize() (json.RawMessage, error) {
	return json.Marshal(comparatorState{Value: c.value, Out: c.out, Has: c.has})
}
func (c *Comparator) Load(data json.RawMessage) error {
	var s comparatorState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.value, c.out, c.has = s.Value, s.Out, s.Has
	return nil
}

// ArithmeticOp is the closed set of binary numeric operations an
// Arithmetic piece applies (spec.md §4.1 "Arithmetic(op)").
type ArithmeticOp int

const (
	ArithAdd ArithmeticOp = iota
	ArithSub
	ArithMul
	ArithDiv
)

// Arithmetic combines two Set(Num) inputs, republishing Changed(Num)
// whenever the result changes. Division by zero yields 0 rather than
// propagating an error, keeping piece transforms total (spec.md §9, mirrors
// Matcher's total-function discipline).
type Arithmetic struct {
	Base
	Op       ArithmeticOp
	in1, in2 float64
	out      float64
}

func NewArithmetic(op ArithmeticOp) *Arithmetic { return &Arithmetic{Op: op} }

func (a *Arithmetic) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if value.Kind != ValueNum {
		return nil
	}
	switch cause {
	case CommandSetIn1, CommandSet:
		a.in1 = value.Num
	case CommandSetIn2:
		a.in2 = value.Num
	default:
		return nil
	}
	before := a.out
	switch a.Op {
	case ArithAdd:
		a.out = a.in1 + a.in2
	case ArithSub:
		a.out = a.in1 - a.in2
	case ArithMul:
		a.out = a.in1 * a.in2
	case ArithDiv:
		if a.in2 == 0 {
			a.out = 0
		} else {
			a.out = a.in1 / a.in2
		}
	}
	if a.out == before {
		return nil
	}
	return []OutputEvent{emit(EventChanged, NumVal(a.out))}
}

type arithmeticState struct {
	In1, In2, Out float64
}

func (a *Arithmetic) Serialize() (json.RawMessage, error) {
	return json.Marshal(arithmeticState{In1: a.in1, In2: a.in2, Out: a.out})
}
func (a *Arithmetic) Load(data json.RawMessage) error {
	var s arithmeticState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	a.in1, a.in2, a.out = s.In1, s.In2, s.Out
	return nil
}

// Buffer holds the last value it was Set to and republishes it verbatim on
// request (CommandReset clears it to Empty); used to decouple a fast
// producer from a slower propagation chain (spec.md §4.1 "Buffer").
type Buffer struct {
	Base
	value Value
}

func NewBuffer() *Buffer { return &Buffer{value: Empty()} }

func (b *Buffer) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	switch cause {
	case CommandSet:
		b.value = value
		return []OutputEvent{emit(EventChanged, b.value)}
	case CommandReset:
		b.value = Empty()
		return []OutputEvent{emit(EventChanged, b.value)}
	}
	return nil
}

type bufferState struct {
	Kind     ValueKind `json:"kind"`
	Bool     bool      `json:"bool,omitempty"`
	Num      float64   `json:"num,omitempty"`
	NumList  []float64 `json:"num_list,omitempty"`
	BoolList []bool    `json:"bool_list,omitempty"`
}

func (b *Buffer) Serialize() (json.RawMessage, error) {
	return json.Marshal(bufferState{
		Kind: b.value.Kind, Bool: b.value.Bool, Num: b.value.Num,
		NumList: b.value.NumList, BoolList: b.value.BoolList,
	})
}
func (b *Buffer) Load(data json.RawMessage) error {
	var s bufferState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.value = Value{Kind: s.Kind, Bool: s.Bool, Num: s.Num, NumList: s.NumList, BoolList: s.BoolList}
	return nil
}

// CycleButton advances through a fixed list of states on each click,
// wrapping around, and emits Changed(Num) with the new index (spec.md §4.1
// "Cycle button(states)").
type CycleButton struct {
	Base
	States int
	index  int64
}

func NewCycleButton(states int) *CycleButton { return &CycleButton{States: states} }

func (c *CycleButton) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	if kind != InteractClick || c.States <= 0 {
		return nil
	}
	c.index = (c.index + 1) % int64(c.States)
	return []OutputEvent{emit(EventChanged, NumVal(float64(c.index)))}
}

type cycleButtonState struct {
	Index int64 `json:"index"`
}

func (c *CycleButton) Serialize() (json.RawMessage, error) {
	return json.Marshal(cycleButtonState{Index: c.index})
}
func (c *CycleButton) Load(data json.RawMessage) error {
	var s cycleButtonState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.index = s.Index
	return nil
}

// Proximity tracks how many players currently occupy the navigation tiles
// it is registered against, publishing Changed(Num) with the live count
// whenever a player enters or leaves (spec.md §4.1 "Proximity"; wired to
// navigation.Manifold.ActiveProximity/Walk via the shared PieceRef index;
// the manifold refers to this piece only by that index).
type Proximity struct {
	Base
	occupants map[model.Principal]bool
}

func NewProximity() *Proximity { return &Proximity{occupants: map[model.Principal]bool{}} }

func (p *Proximity) Walk(player PlayerKey, mark *uint8, entering bool) []OutputEvent {
	before := len(p.occupants)
	if entering {
		p.occupants[player] = true
	} else {
		delete(p.occupants, player)
	}
	if len(p.occupants) == before {
		return nil
	}
	return []OutputEvent{emit(EventChanged, NumVal(float64(len(p.occupants))))}
}

type proximityState struct {
	Occupants []model.Principal `json:"occupants"`
}

func (p *Proximity) Serialize() (json.RawMessage, error) {
	s := proximityState{Occupants: make([]model.Principal, 0, len(p.occupants))}
	for occ := range p.occupants {
		s.Occupants = append(s.Occupants, occ)
	}
	return json.Marshal(s)
}
func (p *Proximity) Load(data json.RawMessage) error {
	var s proximityState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.occupants = make(map[model.Principal]bool, len(s.Occupants))
	for _, occ := range s.Occupants {
		p.occupants[occ] = true
	}
	return nil
}

// RealmSelector is the puzzle-graph side of a navigation.InteractionRealmSelector
// tile: interacting with it (carrying a realm-target payload) emits a Send
// output to the interacting player, requesting a link-out to the chosen
// realm (spec.md §4.1 "Realm selector", §3 "InteractRealmTarget").
type RealmSelector struct {
	Base
	Gate *navigation.GateState // optional: selector disabled while gate closed
}

func NewRealmSelector(gate *navigation.GateState) *RealmSelector {
	return &RealmSelector{Gate: gate}
}

func (r *RealmSelector) Interact(kind InteractionKind, mark *uint8, payload Value) []OutputEvent {
	if kind != InteractRealmTarget || payload.Kind != ValueRealm {
		return nil
	}
	if r.Gate != nil && !r.Gate.Open() {
		return nil
	}
	return []OutputEvent{{
		Kind: OutputKindSend,
		Link: LinkOut{Kind: LinkOutRealm, Realm: payload.Realm},
	}}
}

// Permutation republishes a fixed rearrangement of a BoolList/NumList input,
// applied positionally (spec.md §4.1 "Permutation(order)").
type Permutation struct {
	Base
	Order []int
}

func NewPermutation(order []int) *Permutation { return &Permutation{Order: order} }

func (p *Permutation) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet {
		return nil
	}
	switch value.Kind {
	case ValueBoolList:
		out := make([]bool, len(p.Order))
		for i, src := range p.Order {
			if src >= 0 && src < len(value.BoolList) {
				out[i] = value.BoolList[src]
			}
		}
		return []OutputEvent{emit(EventChanged, BoolListVal(out))}
	case ValueNumList:
		out := make([]float64, len(p.Order))
		for i, src := range p.Order {
			if src >= 0 && src < len(value.NumList) {
				out[i] = value.NumList[src]
			}
		}
		return []OutputEvent{emit(EventChanged, NumListVal(out))}
	default:
		return nil
	}
}

// Index selects one element of a Set(NumList) input by a fixed position,
// republishing it as Changed(Num) (spec.md §4.1 "Index(position)").
type Index struct {
	Base
	Position int
}

func NewIndex(position int) *Index { return &Index{Position: position} }

func (x *Index) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueNumList {
		return nil
	}
	if x.Position < 0 || x.Position >= len(value.NumList) {
		return nil
	}
	return []OutputEvent{emit(EventChanged, NumVal(value.NumList[x.Position]))}
}

// IndexList selects several elements of a Set(NumList) input by fixed
// positions, republishing the sublist as Changed(NumList) (spec.md §4.1
// "IndexList(positions)").
type IndexList struct {
	Base
	Positions []int
}

func NewIndexList(positions []int) *IndexList { return &IndexList{Positions: positions} }

func (x *IndexList) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueNumList {
		return nil
	}
	out := make([]float64, 0, len(x.Positions))
	for _, pos := range x.Positions {
		if pos >= 0 && pos < len(value.NumList) {
			out = append(out, value.NumList[pos])
		}
	}
	return []OutputEvent{emit(EventChanged, NumListVal(out))}
}
