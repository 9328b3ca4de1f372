// Package puzzle implements the declarative dataflow engine that drives one
// realm's puzzle graph (spec.md §4.1, component C1): pieces, propagation
// rules, and per-player marks. Grounded on the original Rust implementation
// (_examples/original_source/server/src/puzzle/mod.rs,
// server/src/realm/puzzle/mod.rs) for piece/rule semantics, and on the
// teacher's visitor-dispatch style (internal/game/*handler*.go) for the
// polymorphic piece table.
package puzzle

import "github.com/udisondev/la2go/internal/model"

// ValueKind discriminates the Value union flowing along propagation rules.
// Distinct from model.PropertyValue, which is the narrower type published
// to clients: Value additionally carries Empty (a pure signal with no
// payload), NumList/BoolList (used by bit-decomposition matchers), and
// Realm (a link-out payload).
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueBool
	ValueNum
	ValueNumList
	ValueBoolList
	ValueRealm
)

// Value is one datum flowing between pieces along a propagation rule.
type Value struct {
	Kind     ValueKind
	Bool     bool
	Num      float64
	NumList  []float64
	BoolList []bool
	Realm    model.RealmLink
}

func Empty() Value                 { return Value{Kind: ValueEmpty} }
func BoolVal(v bool) Value         { return Value{Kind: ValueBool, Bool: v} }
func NumVal(v float64) Value       { return Value{Kind: ValueNum, Num: v} }
func NumListVal(v []float64) Value { return Value{Kind: ValueNumList, NumList: v} }
func BoolListVal(v []bool) Value   { return Value{Kind: ValueBoolList, BoolList: v} }
func RealmVal(v model.RealmLink) Value { return Value{Kind: ValueRealm, Realm: v} }
