package realm

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// GateKind discriminates a player's ActionGate union (spec.md §4.3 "Each
// player has an action_gate").
type GateKind int

const (
	GateStop GateKind = iota
	GateEnter
	GateTransition
	GateInteract
)

// ActionGate is the player-local action state machine the controller steps
// on every batch.
type ActionGate struct {
	Kind GateKind

	// GateEnter / GateTransition
	Leave, Enter []navigation.PieceRef

	// GateInteract
	InteractKey  navigation.InteractionKey
	InteractKind puzzle.InteractionKind
}

// PlayerSession is the controller's live bookkeeping for one present
// player.
type PlayerSession struct {
	Principal model.Principal
	Mark      *uint8

	Position navigation.Point
	Facing   navigation.Direction
	Effect   string

	Gate             ActionGate
	RemainingActions []Action
	Motion           []Motion

	// cursor is the wall-clock time at which the last-queued motion
	// finishes; new actions are scheduled starting here (spec.md §4.3
	// "increment start-time cursor by duration").
	cursor time.Time

	activeProximity []navigation.PieceRef
}

// stepStop dequeues and commits the next queued action, advancing the
// player's cursor and gate. It returns nothing and never calls into the
// puzzle graph: an Interaction action only sets the gate to GateInteract,
// and the controller dispatches the interaction once the cursor is reached.
func (p *PlayerSession) stepStop(now time.Time, manifold *navigation.Manifold) {
	if p.Gate.Kind != GateStop || len(p.RemainingActions) == 0 {
		return
	}
	action := p.RemainingActions[0]
	p.RemainingActions = p.RemainingActions[1:]

	if p.cursor.Before(now) {
		p.cursor = now
	}

	switch action.Kind {
	case ActionEmote:
		p.Motion = append(p.Motion, Motion{
			Kind: MotionDirectedEmote, Start: p.cursor, Duration: action.Duration,
			Animation: action.Animation, From: p.Position, To: p.Position,
		})
		p.cursor = p.cursor.Add(action.Duration)

	case ActionRotate:
		p.Motion = append(p.Motion, Motion{
			Kind: MotionRotate, Start: p.cursor, Duration: navigation.RotateTime,
			From: p.Position, To: p.Position, Direction: action.RotateDirection,
		})
		p.Facing = action.RotateDirection
		p.cursor = p.cursor.Add(navigation.RotateTime)

	case ActionInteraction:
		p.Gate = ActionGate{Kind: GateInteract, InteractKey: action.InteractionTarget, InteractKind: action.InteractionKind}

	case ActionMove:
		p.stepMove(action, manifold)
	}
}

// stepMove walks up to action.Length steps in the player's current facing
// direction, stopping early if the set of proximity pieces at the new tile
// differs from the current set (spec.md §4.3 "If the set of proximity
// pieces changes, set gate to Transition{leave, enter} and stop emitting
// more motion this pass"). Each step advances one tile toward the facing
// direction (_examples/original_source/server/src/realm/mod.rs:346-351
// `position.neighbour(player_info.current_direction)`); this is distinct
// from Manifold.FindAdjacentOrSame, which only resolves spawn/warp landing
// tiles.
func (p *PlayerSession) stepMove(action Action, manifold *navigation.Manifold) {
	steps := action.Length
	for i := 0; i < steps; i++ {
		next, ok := p.Position.Neighbour(p.Facing)
		if !ok || !manifold.Verify(next) {
			p.RemainingActions = nil
			return
		}
		anim, dur := manifold.Animation(p.Position)
		nextProximity := manifold.ActiveProximity(next)
		if proximityChanged(p.activeProximity, nextProximity) {
			p.Gate = ActionGate{
				Kind:  GateTransition,
				Leave: diffProximity(p.activeProximity, nextProximity),
				Enter: diffProximity(nextProximity, p.activeProximity),
			}
			p.Motion = append(p.Motion, Motion{
				Kind: MotionWalk, Start: p.cursor, Duration: dur,
				Animation: anim, From: p.Position, To: next,
			})
			p.cursor = p.cursor.Add(dur)
			p.Position = next
			p.activeProximity = nextProximity
			return
		}
		p.Motion = append(p.Motion, Motion{
			Kind: MotionWalk, Start: p.cursor, Duration: dur,
			Animation: anim, From: p.Position, To: next,
		})
		p.cursor = p.cursor.Add(dur)
		p.Position = next
	}
}

func proximityChanged(a, b []navigation.PieceRef) bool {
	if len(a) != len(b) {
		return true
	}
	set := make(map[navigation.PieceRef]bool, len(a))
	for _, r := range a {
		set[r] = true
	}
	for _, r := range b {
		if !set[r] {
			return true
		}
	}
	return false
}

func diffProximity(from, to []navigation.PieceRef) []navigation.PieceRef {
	set := make(map[navigation.PieceRef]bool, len(to))
	for _, r := range to {
		set[r] = true
	}
	var out []navigation.PieceRef
	for _, r := range from {
		if !set[r] {
			out = append(out, r)
		}
	}
	return out
}

// drained reports whether the player's motion queue has played past now,
// meaning a pending Enter/Transition/Interact gate should fire.
func (p *PlayerSession) drained(now time.Time) bool {
	return !p.cursor.After(now)
}

// trimMotion discards motion entries older than the 30-second broadcast
// window (spec.md §4.3 "motion filtered to times >= now - 30s").
func (p *PlayerSession) trimMotion(now time.Time) {
	cutoff := now.Add(-30 * time.Second)
	i := 0
	for ; i < len(p.Motion); i++ {
		if !p.Motion[i].Start.Before(cutoff) {
			break
		}
	}
	p.Motion = p.Motion[i:]
}
