package realm

import "time"

// Tick lets time-driven pieces (clocks, timers, metronomes) react, then
// runs the same broadcast/persistence path as a player-driven batch
// (spec.md §4.1 "tick(now)"). Callers should schedule this via
// NextWakeup.
func (c *Controller) Tick(now time.Time) (RealmResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	marks := c.currentMarks()
	result, err := c.graph.Tick(now, c.row.Settings, marks)
	if err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	c.applyResult(result, marks)
	c.applyMarkChanges(marks)

	activeMarks := map[uint8]bool{}
	for _, st := range marks {
		if st.HasMark {
			activeMarks[st.Mark] = true
		}
	}
	c.graph.PrepareConsequences(activeMarks)

	if len(result.Moves) == 0 && len(result.MarkChanges) == 0 && !c.graph.Dirty() {
		return RealmResponse{}, nil
	}
	return c.broadcast(now)
}

// NextWakeup reports when the controller should next call Tick, driven by
// the puzzle graph's timer pieces.
func (c *Controller) NextWakeup(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.NextTimer(now)
}
