package puzzle

import (
	"testing"
	"time"
)

// BenchmarkProcess exercises a propagation chain through finishRounds' single
// budget loop, the hot path for every Interact/Tick/Walk batch a realm
// controller drives (spec.md §5 "CPU-bound and runs to completion within a
// batch").
func BenchmarkProcess(b *testing.B) {
	button := NewButton(true, AnyMark())
	sw := NewSwitch(false)
	rules := []Rule{
		{Sender: 0, Trigger: EventClicked, Recipient: 1, Cause: CommandSet, Matcher: Matcher{Kind: MatchEmptyToBool, Const: true}},
	}
	now := time.Unix(0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := NewGraph("owner", []Piece{button, sw}, rules, nil)
		outs := button.Interact(InteractClick, nil, Empty())
		seeds := seedsFrom(0, outs)
		if _, err := g.Process(seeds, now, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}
