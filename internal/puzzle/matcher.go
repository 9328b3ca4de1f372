package puzzle

import "github.com/udisondev/la2go/internal/model"

// NumCompare is the comparison predicate NumToBool uses.
type NumCompare int

const (
	CompareEq NumCompare = iota
	CompareNe
	CompareLt
	CompareLe
	CompareGt
	CompareGe
)

func (c NumCompare) apply(v, threshold float64) bool {
	switch c {
	case CompareEq:
		return v == threshold
	case CompareNe:
		return v != threshold
	case CompareLt:
		return v < threshold
	case CompareLe:
		return v <= threshold
	case CompareGt:
		return v > threshold
	case CompareGe:
		return v >= threshold
	default:
		return false
	}
}

// MatcherKind enumerates the closed set of value-transforming matchers a
// propagation rule may use (spec.md §3 "Propagation rule", §4.1 "Matcher
// semantics"). Every matcher is a total function: a non-matching input
// yields no output, never an error (the rule is "silently inert").
type MatcherKind int

const (
	MatchIdentity MatcherKind = iota
	MatchEmptyToBool            // Empty -> Bool(Const)
	MatchBoolToNumList          // Bool -> NumList (true/false each map to a fixed list)
	MatchNumToBool               // Num -> Bool(cmp threshold)
	MatchAnyToEmpty               // any input -> Empty
	MatchBoolInvert                // Bool -> Bool(!v); only accepts Bool
	MatchEmptyToSettingRealm      // Empty -> Realm(settings[Setting]), only if that setting is a realm link
	MatchNumToBoolList            // Num -> BoolList (bit-decompose an unsigned integer)
)

// Matcher transforms a piece's output Value into a recipient's input Value.
// Const/Threshold/Setting/Bits/LowToHigh parameterize the matchers that need
// them; irrelevant fields are ignored for other Kinds.
type Matcher struct {
	Kind       MatcherKind
	Const      bool       // MatchEmptyToBool
	Threshold  float64    // MatchNumToBool
	Compare    NumCompare // MatchNumToBool
	TrueList   []float64  // MatchBoolToNumList
	FalseList  []float64  // MatchBoolToNumList
	Setting    string     // MatchEmptyToSettingRealm
	Bits       int        // MatchNumToBoolList
	LowToHigh  bool       // MatchNumToBoolList
}

// Apply transforms v per the matcher's semantics. owner is the realm's
// owning principal name and settings is the realm's current settings map,
// both needed by MatchEmptyToSettingRealm. ok is false when the rule does
// not fire for this input (spec.md §8: "if M.apply(v)=None then the
// recipient's accept is never called").
func (m Matcher) Apply(v Value, owner string, settings map[string]model.SettingValue) (Value, bool) {
	switch m.Kind {
	case MatchIdentity:
		return v, true
	case MatchEmptyToBool:
		if v.Kind != ValueEmpty {
			return Value{}, false
		}
		return BoolVal(m.Const), true
	case MatchBoolToNumList:
		if v.Kind != ValueBool {
			return Value{}, false
		}
		if v.Bool {
			return NumListVal(m.TrueList), true
		}
		return NumListVal(m.FalseList), true
	case MatchNumToBool:
		if v.Kind != ValueNum {
			return Value{}, false
		}
		return BoolVal(m.Compare.apply(v.Num, m.Threshold)), true
	case MatchAnyToEmpty:
		return Empty(), true
	case MatchBoolInvert:
		if v.Kind != ValueBool {
			return Value{}, false
		}
		return BoolVal(!v.Bool), true
	case MatchEmptyToSettingRealm:
		if v.Kind != ValueEmpty {
			return Value{}, false
		}
		setting, ok := settings[m.Setting]
		if !ok || setting.Kind != model.SettingRealmLink {
			return Value{}, false
		}
		return RealmVal(setting.Link), true
	case MatchNumToBoolList:
		if v.Kind != ValueNum {
			return Value{}, false
		}
		n := uint64(v.Num)
		bits := make([]bool, m.Bits)
		for i := 0; i < m.Bits; i++ {
			idx := i
			if !m.LowToHigh {
				idx = m.Bits - 1 - i
			}
			bits[idx] = n&(1<<uint(i)) != 0
		}
		return BoolListVal(bits), true
	default:
		return Value{}, false
	}
}
