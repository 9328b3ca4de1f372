package realm

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// runBatch drives every present player's action gate to a standstill,
// feeding any resulting interactions/proximity transitions into the puzzle
// graph, then computes and persists a broadcast (spec.md §4.3 "Player
// state machine", "Broadcasting", "Persistence cadence").
func (c *Controller) runBatch(now time.Time) (RealmResponse, error) {
	marks := c.currentMarks()
	changed := false

	for _, session := range c.players {
		for {
			switch session.Gate.Kind {
			case GateStop:
				if len(session.RemainingActions) == 0 {
					goto nextPlayer
				}
				session.stepStop(now, c.manifold)
				changed = true

			case GateEnter:
				if !session.drained(now) {
					goto nextPlayer
				}
				result, err := c.graph.WalkPieces(refsToInts(session.Gate.Enter), session.Principal, session.Mark, true, now, c.row.Settings, marks)
				if err != nil {
					return RealmResponse{Kind: ResponseInternalError}, err
				}
				c.applyResult(result, marks)
				session.Gate = ActionGate{Kind: GateStop}
				changed = true

			case GateTransition:
				if !session.drained(now) {
					goto nextPlayer
				}
				leaveResult, err := c.graph.WalkPieces(refsToInts(session.Gate.Leave), session.Principal, session.Mark, false, now, c.row.Settings, marks)
				if err != nil {
					return RealmResponse{Kind: ResponseInternalError}, err
				}
				c.applyResult(leaveResult, marks)
				enterResult, err := c.graph.WalkPieces(refsToInts(session.Gate.Enter), session.Principal, session.Mark, true, now, c.row.Settings, marks)
				if err != nil {
					return RealmResponse{Kind: ResponseInternalError}, err
				}
				c.applyResult(enterResult, marks)
				session.Gate = ActionGate{Kind: GateStop}
				changed = true

			case GateInteract:
				if !session.drained(now) {
					goto nextPlayer
				}
				c.dispatchInteraction(session, now, marks)
				session.Gate = ActionGate{Kind: GateStop}
				changed = true

			default:
				goto nextPlayer
			}
		}
	nextPlayer:
		continue
	}

	c.applyMarkChanges(marks)

	activeMarks := map[uint8]bool{}
	for _, st := range marks {
		if st.HasMark {
			activeMarks[st.Mark] = true
		}
	}
	c.graph.PrepareConsequences(activeMarks)

	if !changed && !c.graph.Dirty() {
		return RealmResponse{}, nil
	}

	return c.broadcast(now)
}

// dispatchInteraction resolves the piece registered at the player's current
// interaction target, calls its Interact method, and feeds the resulting
// events through the graph (spec.md §4.3 "Interact(key,kind): on drain,
// resolve manifold.interaction_target...").
func (c *Controller) dispatchInteraction(session *PlayerSession, now time.Time, marks map[model.Principal]puzzle.PlayerMarkState) {
	ref, ok := c.manifold.InteractionTarget(session.Position, session.Gate.InteractKey)
	if !ok {
		return
	}
	piece := c.graph.Piece(int(ref))
	outs := piece.Interact(session.Gate.InteractKind, session.Mark, puzzle.Empty())
	result, err := c.graph.Process(eventsFromOutputs(int(ref), outs), now, c.row.Settings, marks)
	if err != nil {
		return
	}
	c.applyResult(result, marks)

	anim, dur := c.manifold.Animation(session.Position)
	session.Motion = append(session.Motion, Motion{
		Kind: MotionInteraction, Start: session.cursor, Duration: dur,
		Animation: anim, From: session.Position, To: session.Position,
	})
	session.cursor = session.cursor.Add(dur)
}

// eventsFromOutputs re-seeds a piece's direct Interact/Accept outputs as
// graph seed events, letting Process apply normal propagation rules to
// them.
func eventsFromOutputs(senderIdx int, outs []puzzle.OutputEvent) []puzzle.SeedEvent {
	seeds := make([]puzzle.SeedEvent, 0, len(outs))
	for _, o := range outs {
		if o.Kind == puzzle.OutputKindEvent {
			sender := senderIdx
			if o.Sender >= 0 {
				sender = o.Sender
			}
			seeds = append(seeds, puzzle.SeedEvent{SenderIdx: sender, Name: o.Name, Value: o.Value})
		}
	}
	return seeds
}

func refsToInts(refs []navigation.PieceRef) []int {
	out := make([]int, len(refs))
	for i, r := range refs {
		out[i] = int(r)
	}
	return out
}

func (c *Controller) currentMarks() map[model.Principal]puzzle.PlayerMarkState {
	marks := make(map[model.Principal]puzzle.PlayerMarkState, len(c.players))
	for p, session := range c.players {
		if session.Mark != nil {
			marks[p] = puzzle.PlayerMarkState{Mark: *session.Mark, HasMark: true}
		}
	}
	return marks
}

func (c *Controller) applyMarkChanges(marks map[model.Principal]puzzle.PlayerMarkState) {
	for p, st := range marks {
		session, ok := c.players[p]
		if !ok {
			continue
		}
		if st.HasMark {
			v := st.Mark
			session.Mark = &v
		} else {
			session.Mark = nil
		}
	}
}

// applyResult merges a puzzle-graph batch result into the controller: mark
// changes are folded into the running marks map so subsequent batch steps
// see them, and solve/train link-outs are applied immediately (spec.md
// §4.3 "Solve propagation").
func (c *Controller) applyResult(result puzzle.ProcessResult, marks map[model.Principal]puzzle.PlayerMarkState) {
	for p, st := range result.MarkChanges {
		marks[p] = st
	}
	for p, link := range result.Moves {
		c.applyLinkOut(p, link)
	}
}

// applyLinkOut handles a LinkOutTrainNext by marking the realm solved and
// removing the player from this controller's live state; other link-out
// kinds are reported to the caller (Destination Manager) as a move order
// and are not modeled further here since train/realm resolution belongs to
// internal/destination (spec.md §4.3 "Solve propagation").
func (c *Controller) applyLinkOut(p model.Principal, link puzzle.LinkOut) {
	if link.Kind == puzzle.LinkOutTrainNext && !c.row.Solved {
		c.row.Solved = true
	}
	delete(c.players, p)
}
