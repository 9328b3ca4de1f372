package realm

import (
	"log/slog"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// broadcast computes a RealmResponse::UpdateState frame from the current
// player positions and puzzle state, then persists through (spec.md §4.3
// "Broadcasting", "Persistence cadence"). Called whenever runBatch detects
// any player motion or a puzzle-state change.
func (c *Controller) broadcast(now time.Time) (RealmResponse, error) {
	states := make(map[model.Principal]PlayerStateFrame, len(c.players))
	for p, session := range c.players {
		session.trimMotion(now)
		states[p] = PlayerStateFrame{
			Position: session.Position,
			Facing:   session.Facing,
			Effect:   c.effects[p],
			Motion:   session.Motion,
		}
	}

	convolved := make(map[model.PropertyKey][]model.ConvolvedFrame, len(c.graph.CurrentStates()))
	for key, multi := range c.graph.CurrentStates() {
		convolved[key] = multi.Convolve()
	}

	if err := c.persist(); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}

	return RealmResponse{
		Kind:         ResponseUpdateState,
		Time:         now,
		PlayerStates: states,
		State:        convolved,
	}, nil
}

// persist writes through the puzzle state vector and solved flag, the
// cadence that runs after every processed batch regardless of what else
// changed (spec.md §4.3 "Persistence cadence").
func (c *Controller) persist() error {
	data, err := c.graph.Serialize()
	if err != nil {
		slog.Error("realm: failed to serialize puzzle state", "realm", c.row.DBID, "error", err)
		return err
	}
	c.row.PuzzleState = data
	return c.store.SaveState(c.row.DBID, data, c.row.Solved)
}
