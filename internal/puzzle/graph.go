package puzzle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// maxRounds is the hard divergence cap on a single Process/Tick batch
// (spec.md §4.1, §5, §8: "process(events,…) halts within 100 rounds").
const maxRounds = 100

// ErrDivergence is returned when a batch exceeds maxRounds; the caller must
// treat the realm state as unchanged past the last fully-completed round
// (spec.md §7 "Puzzle").
var ErrDivergence = fmt.Errorf("puzzle graph: exceeded %d processing rounds", maxRounds)

// PlayerMarkState is a player's current puzzle-assigned mark (spec.md §3
// "Active player").
type PlayerMarkState struct {
	Mark    uint8
	HasMark bool
}

// ProcessResult is the outcome of one Process or Tick batch (spec.md §4.1
// "process(events, now, settings) -> {moves, player_marks}").
type ProcessResult struct {
	Moves       map[PlayerKey]LinkOut
	MarkChanges map[PlayerKey]PlayerMarkState
}

// SeedEvent is an externally-originated event fed into the graph: one a
// piece produced outside the engine's own propagation (e.g. from a direct
// Interact call or a batch of Tick outputs).
type SeedEvent struct {
	SenderIdx int
	Name      EventName
	Value     Value
}

type queuedEvent struct {
	senderIdx int
	name      EventName
	value     Value
}

// Graph holds one realm's puzzle dataflow state: the piece vector, the
// propagation rule vector, and the shared radio-group coordination state
// (spec.md §4.1 "State").
type Graph struct {
	owner string
	pieces []Piece
	rules  []Rule

	radioGroups map[string]*RadioSharedState

	currentStates map[model.PropertyKey]model.Multi
	dirty         bool
}

// NewGraph assembles a graph from a realm's converted pieces and rules.
// radioGroups must contain one entry per distinct radio-button group name
// referenced by the pieces (spec.md §9 "each distinct radio group gets its
// own atomic instance keyed by name in a map populated during asset
// conversion").
func NewGraph(owner string, pieces []Piece, rules []Rule, radioGroups map[string]*RadioSharedState) *Graph {
	if radioGroups == nil {
		radioGroups = map[string]*RadioSharedState{}
	}
	return &Graph{
		owner:         owner,
		pieces:        pieces,
		rules:         rules,
		radioGroups:   radioGroups,
		currentStates: map[model.PropertyKey]model.Multi{},
	}
}

// RadioGroup returns the shared state for a named radio-button group.
func (g *Graph) RadioGroup(name string) *RadioSharedState { return g.radioGroups[name] }

// PieceCount returns the number of pieces in the graph.
func (g *Graph) PieceCount() int { return len(g.pieces) }

// Piece returns the piece at index i.
func (g *Graph) Piece(i int) Piece { return g.pieces[i] }

// Process drains a batch of seed events to a fixed point (spec.md §4.1).
func (g *Graph) Process(seed []SeedEvent, now time.Time, settings map[string]model.SettingValue, marks map[PlayerKey]PlayerMarkState) (ProcessResult, error) {
	queue := make([]queuedEvent, 0, len(seed))
	for _, e := range seed {
		queue = append(queue, queuedEvent{e.SenderIdx, e.Name, e.Value})
	}
	return g.processRounds(queue, now, settings, marks)
}

// Tick lets every piece react to the passage of time, then drains the
// resulting events to a fixed point (spec.md §4.1 "tick(now) -> events").
func (g *Graph) Tick(now time.Time, settings map[string]model.SettingValue, marks map[PlayerKey]PlayerMarkState) (ProcessResult, error) {
	var queue []queuedEvent
	moves := map[PlayerKey]LinkOut{}
	markState := cloneMarks(marks)
	for i, p := range g.pieces {
		outs := p.Tick(now)
		g.applyOutputs(i, outs, &queue, moves, markState)
	}
	return g.finishRounds(queue, now, settings, moves, markState, marks)
}

func (g *Graph) processRounds(queue []queuedEvent, now time.Time, settings map[string]model.SettingValue, marks map[PlayerKey]PlayerMarkState) (ProcessResult, error) {
	moves := map[PlayerKey]LinkOut{}
	markState := cloneMarks(marks)
	return g.finishRounds(queue, now, settings, moves, markState, marks)
}

// finishRounds runs the single 100-count divergence budget that covers
// every event dispatched and every player-left batch alike: pop one event
// and fire its rules, or — once the queue drains — walk(Leave) every piece
// for the players newly present in moves as one batch, or stop once neither
// remains. Each iteration of the loop spends exactly one count, matching
// the original's `while count > 0 { count -= 1; ... }` single global budget
// (_examples/original_source/server/src/puzzle/mod.rs:186-290), so a pure
// event cycle with no player movement still exhausts the cap instead of
// looping forever in an inner unbounded drain (spec.md §8, §5).
func (g *Graph) finishRounds(queue []queuedEvent, now time.Time, settings map[string]model.SettingValue, moves map[PlayerKey]LinkOut, markState, original map[PlayerKey]PlayerMarkState) (ProcessResult, error) {
	announced := map[PlayerKey]bool{}

	for count := maxRounds; count > 0; count-- {
		if len(queue) > 0 {
			ev := queue[0]
			queue = queue[1:]
			for _, rule := range g.rules {
				if rule.Sender != ev.senderIdx || rule.Trigger != ev.name {
					continue
				}
				transformed, ok := rule.Matcher.Apply(ev.value, g.owner, settings)
				if !ok {
					continue
				}
				if rule.Recipient < 0 || rule.Recipient >= len(g.pieces) {
					continue
				}
				outs := g.pieces[rule.Recipient].Accept(rule.Cause, transformed, now)
				g.applyOutputs(rule.Recipient, outs, &queue, moves, markState)
			}
			continue
		}

		var newly []PlayerKey
		for p := range moves {
			if !announced[p] {
				newly = append(newly, p)
				announced[p] = true
			}
		}
		if len(newly) == 0 {
			return ProcessResult{Moves: moves, MarkChanges: marksDiff(original, markState)}, nil
		}
		for _, p := range newly {
			var mk *uint8
			if st, ok := markState[p]; ok && st.HasMark {
				v := st.Mark
				mk = &v
			}
			for i, piece := range g.pieces {
				outs := piece.Walk(p, mk, false)
				g.applyOutputs(i, outs, &queue, moves, markState)
			}
		}
	}

	slog.Warn("puzzle graph: processing diverged", "rounds", maxRounds)
	return ProcessResult{}, ErrDivergence
}

func (g *Graph) applyOutputs(senderIdx int, outs []OutputEvent, queue *[]queuedEvent, moves map[PlayerKey]LinkOut, markState map[PlayerKey]PlayerMarkState) {
	for _, o := range outs {
		switch o.Kind {
		case OutputKindEvent:
			sender := senderIdx
			if o.Sender >= 0 {
				sender = o.Sender
			}
			*queue = append(*queue, queuedEvent{sender, o.Name, o.Value})
		case OutputKindSend:
			for _, p := range o.Players {
				if _, exists := moves[p]; !exists {
					moves[p] = o.Link
				}
			}
		case OutputKindMark:
			for _, p := range o.Players {
				applyMarkOp(markState, p, o.MarkOp, o.Mark, o.Bit)
			}
		}
	}
}

func applyMarkOp(marks map[PlayerKey]PlayerMarkState, player PlayerKey, op MarkOpKind, mark, bit uint8) {
	st := marks[player]
	switch op {
	case MarkSet:
		st.Mark, st.HasMark = mark, true
	case MarkUnset:
		st.Mark, st.HasMark = 0, false
	case MarkBitSet:
		st.Mark |= 1 << bit
		st.HasMark = true
	case MarkBitClear:
		st.Mark &^= 1 << bit
		st.HasMark = true
	case MarkBitToggle:
		st.Mark ^= 1 << bit
		st.HasMark = true
	}
	marks[player] = st
}

func cloneMarks(in map[PlayerKey]PlayerMarkState) map[PlayerKey]PlayerMarkState {
	out := make(map[PlayerKey]PlayerMarkState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func marksDiff(before, after map[PlayerKey]PlayerMarkState) map[PlayerKey]PlayerMarkState {
	diff := map[PlayerKey]PlayerMarkState{}
	for p, st := range after {
		if before[p] != st {
			diff[p] = st
		}
	}
	return diff
}

// WalkPieces notifies a set of pieces (by index) that a player entered or
// left their tile region, draining the resulting events to a fixed point.
// Used by the realm controller to fire Enter/Leave for navigation
// proximity pieces as a player moves (spec.md §4.3 "fire walk(Enter) for
// each piece"); distinct from the internal walk(Leave) broadcast
// finishRounds issues to every piece when a player is moved out of the
// realm entirely.
func (g *Graph) WalkPieces(indices []int, player PlayerKey, mark *uint8, entering bool, now time.Time, settings map[string]model.SettingValue, marks map[PlayerKey]PlayerMarkState) (ProcessResult, error) {
	var queue []queuedEvent
	moves := map[PlayerKey]LinkOut{}
	markState := cloneMarks(marks)
	for _, idx := range indices {
		if idx < 0 || idx >= len(g.pieces) {
			continue
		}
		outs := g.pieces[idx].Walk(player, mark, entering)
		g.applyOutputs(idx, outs, &queue, moves, markState)
	}
	return g.finishRounds(queue, now, settings, moves, markState, marks)
}

// PrepareConsequences calls UpdateCheck on every piece; when a piece's
// published value differs from the cached current_states entry, the cache
// is updated and the graph is marked dirty (spec.md §4.1).
func (g *Graph) PrepareConsequences(activeMarks map[uint8]bool) {
	for _, p := range g.pieces {
		key, value, ok := p.UpdateCheck(activeMarks)
		if !ok {
			continue
		}
		cached, exists := g.currentStates[key]
		if !exists || !multiEqual(cached, value) {
			g.currentStates[key] = value
			g.dirty = true
		}
	}
}

func multiEqual(a, b model.Multi) bool {
	af, bf := a.Convolve(), b.Convolve()
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if af[i].IsDefault != bf[i].IsDefault || !af[i].Value.Equal(bf[i].Value) || len(af[i].Marks) != len(bf[i].Marks) {
			return false
		}
	}
	return true
}

// Dirty reports, and clears, whether current_states changed since the last
// call.
func (g *Graph) Dirty() bool {
	d := g.dirty
	g.dirty = false
	return d
}

// CurrentStates returns the cached published state snapshot.
func (g *Graph) CurrentStates() map[model.PropertyKey]model.Multi {
	return g.currentStates
}

// NextTimer returns the minimum of every piece's NextWake, if any piece
// wants to wake (spec.md §4.1 "next_timer() -> Option<Duration>").
func (g *Graph) NextTimer(now time.Time) (time.Duration, bool) {
	var min time.Duration
	found := false
	for _, p := range g.pieces {
		d, ok := p.NextWake(now)
		if !ok {
			continue
		}
		if !found || d < min {
			min, found = d, true
		}
	}
	return min, found
}

// Reset runs piece.Reset() over every piece, processing the resulting
// events with an empty player set (spec.md §4.3 step 4). Any moves
// emitted at this stage are discarded with a warning: they indicate an
// ill-formed realm.
func (g *Graph) Reset(now time.Time, settings map[string]model.SettingValue) error {
	var queue []queuedEvent
	moves := map[PlayerKey]LinkOut{}
	marks := map[PlayerKey]PlayerMarkState{}
	for i, p := range g.pieces {
		outs := p.Reset()
		g.applyOutputs(i, outs, &queue, moves, marks)
	}
	result, err := g.finishRounds(queue, now, settings, moves, marks, map[PlayerKey]PlayerMarkState{})
	if err != nil {
		return err
	}
	if len(result.Moves) > 0 {
		slog.Warn("puzzle graph: reset produced player moves on an ill-formed realm", "count", len(result.Moves))
	}
	return nil
}

// Serialize captures every piece's state as a JSON array (spec.md §4.1
// "pieces.map(serialize) -> Vec<Value>").
func (g *Graph) Serialize() ([]byte, error) {
	values := make([]json.RawMessage, len(g.pieces))
	for i, p := range g.pieces {
		v, err := p.Serialize()
		if err != nil {
			return nil, fmt.Errorf("serializing piece %d: %w", i, err)
		}
		values[i] = v
	}
	return json.Marshal(values)
}

// LoadState rehydrates every piece from a previously-serialized JSON array.
// The saved vector length must equal the current piece count, else
// deserialization fails as a whole (spec.md §3 invariant, §4.1).
func (g *Graph) LoadState(data []byte) error {
	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding puzzle state vector: %w", err)
	}
	if len(values) != len(g.pieces) {
		return fmt.Errorf("puzzle state vector length %d does not match piece count %d", len(values), len(g.pieces))
	}
	for i, v := range values {
		if err := g.pieces[i].Load(v); err != nil {
			return fmt.Errorf("loading piece %d: %w", i, err)
		}
	}
	return nil
}
