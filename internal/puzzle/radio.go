package puzzle

import "sync/atomic"

// RadioSharedState coordinates a group of radio-button pieces sharing a
// group name: exactly one member is "active" at a time, selected via a
// lock-free compare-and-swap rather than a central arbiter (spec.md §4.1
// "Radio button group", §9 "shared radio state and gates are lock-free
// atomics").
type RadioSharedState struct {
	active atomic.Int64 // piece index of the currently-selected member, -1 if none
	dirty  atomic.Bool
}

// NewRadioSharedState creates an empty (no member selected) group.
func NewRadioSharedState() *RadioSharedState {
	r := &RadioSharedState{}
	r.active.Store(-1)
	return r
}

// Select makes pieceIdx the active member and returns the member that was
// active before (-1 for none). It returns true if this call made the change
// (the caller should emit Selected) and false only if pieceIdx was already
// active. A compare-and-swap lost to a concurrent Select is retried against
// the new active member, so a racing member never makes this call fail.
func (r *RadioSharedState) Select(pieceIdx int) (became bool, previous int) {
	for {
		prev := r.active.Load()
		if prev == int64(pieceIdx) {
			return false, int(prev)
		}
		if r.active.CompareAndSwap(prev, int64(pieceIdx)) {
			r.dirty.Store(true)
			return true, int(prev)
		}
	}
}

// Active returns the currently-selected member index, or -1 if none.
func (r *RadioSharedState) Active() int { return int(r.active.Load()) }
