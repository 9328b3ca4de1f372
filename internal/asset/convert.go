package asset

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
	"github.com/udisondev/la2go/internal/realm"
)

// Converter implements realm.AssetConverter for asset_type "realm-v1"
// (spec.md §4.3 step 3 "Convert the asset into (pieces, rules, manifold,
// player_effects, settings_defaults)"). Grounded on the piece variant list
// and the navigation manifold described in spec.md §3-4.2; translation
// itself is this collaborator's own design since the spec leaves asset
// encoding external.
type Converter struct{}

func NewConverter() *Converter { return &Converter{} }

// Convert decodes asset.Data as a Document and builds every piece, rule,
// and the navigation manifold it describes.
func (c *Converter) Convert(a model.Asset) (realm.ConvertedRealm, error) {
	var doc Document
	if err := json.Unmarshal(a.Data, &doc); err != nil {
		return realm.ConvertedRealm{}, &model.AssetError{Kind: model.AssetErrorDecodeFailure, Message: err.Error()}
	}

	radioGroups := make(map[string]*puzzle.RadioSharedState, len(doc.RadioGroups))
	for _, name := range doc.RadioGroups {
		radioGroups[name] = puzzle.NewRadioSharedState()
	}

	// Named gates are shared between a GroundGatedObstacle tile and the
	// mapSink/realmSelector piece that controls it (spec.md §4.1 "Map
	// sink(gate_ref)", §9 "lock-free atomics"); collect every name first so
	// either side of the conversion can look the instance up regardless of
	// declaration order.
	gates := make(map[string]*navigation.GateState)
	gateName := func(name string) *navigation.GateState {
		if name == "" {
			return nil
		}
		g, ok := gates[name]
		if !ok {
			g = navigation.NewGateState(false)
			gates[name] = g
		}
		return g
	}

	pieces := make([]puzzle.Piece, len(doc.Pieces))
	for i, pd := range doc.Pieces {
		p, err := buildPiece(pd, radioGroups, gateName)
		if err != nil {
			return realm.ConvertedRealm{}, fmt.Errorf("asset: piece %d (%s): %w", i, pd.Type, err)
		}
		pieces[i] = p
	}

	manifold, err := buildManifold(doc, gateName)
	if err != nil {
		return realm.ConvertedRealm{}, err
	}

	return realm.ConvertedRealm{
		Pieces:           pieces,
		Rules:            doc.Rules,
		RadioGroups:      radioGroups,
		Manifold:         manifold,
		PlayerEffects:    map[model.Principal]string{},
		SettingsDefaults: doc.SettingsDefaults,
	}, nil
}

func buildPiece(pd PieceDoc, radioGroups map[string]*puzzle.RadioSharedState, gateName func(string) *navigation.GateState) (puzzle.Piece, error) {
	switch pd.Type {
	case "button":
		var p struct {
			Enabled bool    `json:"enabled"`
			AnyMark bool    `json:"any_mark"`
			Marks   []uint8 `json:"marks"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		matcher := puzzle.AnyMark()
		if !p.AnyMark {
			matcher = puzzle.OneOfMarks(p.Marks...)
		}
		return puzzle.NewButton(p.Enabled, matcher), nil

	case "switch":
		var p struct {
			Initial bool `json:"initial"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewSwitch(p.Initial), nil

	case "counter":
		var p struct {
			Max int64 `json:"max"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewCounter(p.Max), nil

	case "clock":
		var p struct {
			PeriodMS     int64 `json:"period_ms"`
			Max          int64 `json:"max"`
			ShiftSeconds int64 `json:"shift_seconds"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewClock(msToDuration(p.PeriodMS), p.Max, p.ShiftSeconds), nil

	case "metronome":
		var p struct {
			PeriodMS int64 `json:"period_ms"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewMetronome(msToDuration(p.PeriodMS)), nil

	case "timer":
		return puzzle.NewTimer(), nil

	case "holidayCalendar":
		var p struct {
			Days [][2]int `json:"days"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewHolidayCalendar(p.Days), nil

	case "logicGate":
		var p struct {
			Op string `json:"op"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		op, err := logicOpFromString(p.Op)
		if err != nil {
			return nil, err
		}
		return puzzle.NewLogicGate(op), nil

	case "comparator":
		var p struct {
			Compare   string  `json:"compare"`
			Threshold float64 `json:"threshold"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		cmp, err := numCompareFromString(p.Compare)
		if err != nil {
			return nil, err
		}
		return puzzle.NewComparator(cmp, p.Threshold), nil

	case "arithmetic":
		var p struct {
			Op string `json:"op"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		op, err := arithmeticOpFromString(p.Op)
		if err != nil {
			return nil, err
		}
		return puzzle.NewArithmetic(op), nil

	case "buffer":
		return puzzle.NewBuffer(), nil

	case "cycleButton":
		var p struct {
			States int `json:"states"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewCycleButton(p.States), nil

	case "proximity":
		return puzzle.NewProximity(), nil

	case "realmSelector":
		var p struct {
			Gate string `json:"gate"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewRealmSelector(gateName(p.Gate)), nil

	case "permutation":
		var p struct {
			Order []int `json:"order"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewPermutation(p.Order), nil

	case "index":
		var p struct {
			Position int `json:"position"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewIndex(p.Position), nil

	case "indexList":
		var p struct {
			Positions []int `json:"positions"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewIndexList(p.Positions), nil

	case "radioButton":
		var p struct {
			Index int    `json:"index"`
			Group string `json:"group"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		shared, ok := radioGroups[p.Group]
		if !ok {
			return nil, fmt.Errorf("unknown radio group %q", p.Group)
		}
		return puzzle.NewRadioButton(p.Index, shared), nil

	case "mapSink":
		var p struct {
			Gate string `json:"gate"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewMapSink(gateName(p.Gate)), nil

	case "propertySink":
		var p struct {
			Kind string `json:"kind"` // "bool" or "num"
			Name string `json:"name"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		key, err := propertyKeyFromString(p.Kind, p.Name)
		if err != nil {
			return nil, err
		}
		return puzzle.NewPropertySink(key), nil

	case "eventSink":
		var p struct {
			Name string `json:"name"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		return puzzle.NewEventSink(model.EventSinkKey(p.Name)), nil

	case "multiSink":
		var p struct {
			Kind       string  `json:"kind"`
			Name       string  `json:"name"`
			DefaultNum float64 `json:"default_num"`
			DefaultBool bool   `json:"default_bool"`
		}
		if err := decode(pd.Params, &p); err != nil {
			return nil, err
		}
		key, err := propertyKeyFromString(p.Kind, p.Name)
		if err != nil {
			return nil, err
		}
		var def model.PropertyValue
		if p.Kind == "bool" {
			def = model.BoolValue(p.DefaultBool)
		} else {
			def = model.NumValue(p.DefaultNum)
		}
		return puzzle.NewMultiSink(key, def), nil

	default:
		return nil, fmt.Errorf("unknown piece type %q", pd.Type)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func logicOpFromString(s string) (puzzle.LogicOp, error) {
	switch s {
	case "and":
		return puzzle.LogicAnd, nil
	case "or":
		return puzzle.LogicOr, nil
	case "xor":
		return puzzle.LogicXor, nil
	case "not":
		return puzzle.LogicNot, nil
	default:
		return 0, fmt.Errorf("unknown logic op %q", s)
	}
}

func arithmeticOpFromString(s string) (puzzle.ArithmeticOp, error) {
	switch s {
	case "add":
		return puzzle.ArithAdd, nil
	case "sub":
		return puzzle.ArithSub, nil
	case "mul":
		return puzzle.ArithMul, nil
	case "div":
		return puzzle.ArithDiv, nil
	default:
		return 0, fmt.Errorf("unknown arithmetic op %q", s)
	}
}

func numCompareFromString(s string) (puzzle.NumCompare, error) {
	switch s {
	case "eq":
		return puzzle.CompareEq, nil
	case "ne":
		return puzzle.CompareNe, nil
	case "lt":
		return puzzle.CompareLt, nil
	case "le":
		return puzzle.CompareLe, nil
	case "gt":
		return puzzle.CompareGt, nil
	case "ge":
		return puzzle.CompareGe, nil
	default:
		return 0, fmt.Errorf("unknown comparator %q", s)
	}
}

func propertyKeyFromString(kind, name string) (model.PropertyKey, error) {
	switch kind {
	case "bool":
		return model.BoolSinkKey(name), nil
	case "num":
		return model.NumSinkKey(name), nil
	default:
		return model.PropertyKey{}, fmt.Errorf("unknown property key kind %q", kind)
	}
}
