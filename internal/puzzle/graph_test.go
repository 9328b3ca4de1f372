package puzzle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/la2go/internal/model"
)

func TestProcess_PropagatesAcrossRule(t *testing.T) {
	button := NewButton(true, AnyMark())
	sw := NewSwitch(false)
	rules := []Rule{
		{Sender: 0, Trigger: EventClicked, Recipient: 1, Cause: CommandSet, Matcher: Matcher{Kind: MatchEmptyToBool, Const: true}},
	}
	g := NewGraph("owner", []Piece{button, sw}, rules, nil)

	outs := button.Interact(InteractClick, nil, Empty())
	require.NotEmpty(t, outs)

	_, err := g.Process(seedsFrom(0, outs), time.Unix(0, 0), nil, nil)
	require.NoError(t, err)

	assert.True(t, sw.On, "propagation rule should have delivered Set(true) to the switch")
}

func TestProcess_MatcherRejectionPreventsAccept(t *testing.T) {
	button := NewButton(true, AnyMark())
	sw := NewSwitch(false)
	rules := []Rule{
		// MatchNumToBool only accepts a ValueNum input; Button emits Empty(),
		// so the matcher rejects every firing and the switch never sees Accept.
		{Sender: 0, Trigger: EventClicked, Recipient: 1, Cause: CommandSet, Matcher: Matcher{Kind: MatchNumToBool, Compare: CompareEq, Threshold: 1}},
	}
	g := NewGraph("owner", []Piece{button, sw}, rules, nil)

	outs := button.Interact(InteractClick, nil, Empty())
	require.NotEmpty(t, outs)

	_, err := g.Process(seedsFrom(0, outs), time.Unix(0, 0), nil, nil)
	require.NoError(t, err)

	assert.False(t, sw.On, "a rejected matcher must never deliver Accept to the recipient")
}

// oscillator is a minimal Piece that always re-emits its configured trigger
// with a strictly-increasing value, modeling the "unstable oscillator" the
// original implementation's 100-round cap exists to catch
// (_examples/original_source/server/src/puzzle/mod.rs:186-290).
type oscillator struct {
	Base
	emit EventName
}

func (o *oscillator) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	return []OutputEvent{emit(o.emit, NumVal(value.Num+1))}
}

func TestProcess_DivergenceCapHaltsPureEventCycle(t *testing.T) {
	a := &oscillator{emit: "AEvent"}
	b := &oscillator{emit: "BEvent"}
	rules := []Rule{
		{Sender: 0, Trigger: "AEvent", Recipient: 1, Cause: "Tick", Matcher: Matcher{Kind: MatchIdentity}},
		{Sender: 1, Trigger: "BEvent", Recipient: 0, Cause: "Tick", Matcher: Matcher{Kind: MatchIdentity}},
	}
	g := NewGraph("owner", []Piece{a, b}, rules, nil)

	done := make(chan error, 1)
	go func() {
		_, err := g.Process([]SeedEvent{{SenderIdx: 1, Name: "BEvent", Value: NumVal(0)}}, time.Unix(0, 0), nil, nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDivergence)
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not halt within the 100-round cap; the inner event drain is unbounded")
	}
}

func TestWalkPieces_ProximityEnterProducesNoMoves(t *testing.T) {
	prox := NewProximity()
	g := NewGraph("owner", []Piece{prox}, nil, nil)

	result, err := g.WalkPieces([]int{0}, model.Local("alice"), nil, true, time.Unix(0, 0), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Moves)
}

func TestRadioButton_LoserEmitsDeselected(t *testing.T) {
	shared := NewRadioSharedState()
	a := NewRadioButton(0, shared)
	b := NewRadioButton(1, shared)
	rules := []Rule{
		// Recipient 1 here is irrelevant to the Deselected edge; what matters
		// is that the event the graph re-queues after A wins is attributed to
		// B's own index (1), not A's (0).
		{Sender: 1, Trigger: EventDeselected, Recipient: 0, Cause: CommandReset, Matcher: Matcher{Kind: MatchAnyToEmpty}},
	}
	g := NewGraph("owner", []Piece{a, b}, rules, nil)

	// B selects first, then A wins the group: A's Interact output must carry
	// a Deselected event attributed to B's index so the rule above can see it.
	_, previous := shared.Select(1)
	assert.Equal(t, -1, previous)

	outs := a.Interact(InteractClick, nil, Empty())
	require.Len(t, outs, 2)
	assert.Equal(t, EventSelected, outs[0].Name)
	assert.Equal(t, EventDeselected, outs[1].Name)
	assert.Equal(t, 1, outs[1].Sender)

	_, err := g.Process(seedsFrom(0, outs), time.Unix(0, 0), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, shared.Active())
}

func TestGraph_SerializeLoadRoundTrip(t *testing.T) {
	g := NewGraph("owner", []Piece{NewButton(true, AnyMark()), NewSwitch(true)}, nil, nil)
	data, err := g.Serialize()
	require.NoError(t, err)

	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)

	g2 := NewGraph("owner", []Piece{NewButton(false, AnyMark()), NewSwitch(false)}, nil, nil)
	require.NoError(t, g2.LoadState(data))
	assert.True(t, g2.Piece(1).(*Switch).On)
}

func seedsFrom(senderIdx int, outs []OutputEvent) []SeedEvent {
	seeds := make([]SeedEvent, 0, len(outs))
	for _, o := range outs {
		if o.Kind != OutputKindEvent {
			continue
		}
		sender := senderIdx
		if o.Sender >= 0 {
			sender = o.Sender
		}
		seeds = append(seeds, SeedEvent{SenderIdx: sender, Name: o.Name, Value: o.Value})
	}
	return seeds
}
