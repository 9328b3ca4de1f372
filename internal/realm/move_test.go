package realm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// buttonSwitchConverter builds a two-piece graph (Button -> Switch via a
// propagation rule) over the same walkable 4x4 platform as
// oneButtonConverter, so tests can exercise Move and a multi-piece
// propagation chain end-to-end through Controller.Handle.
type buttonSwitchConverter struct{}

func (buttonSwitchConverter) Convert(asset model.Asset) (ConvertedRealm, error) {
	manifold := &navigation.Manifold{
		Platforms:    []navigation.Platform{{Width: 4, Length: 4, Terrain: map[[2]uint32]navigation.Ground{}}},
		DefaultSpawn: navigation.SpawnArea{Platform: 0, MinX: 0, MinY: 0, MaxX: 0, MaxY: 0},
	}
	return ConvertedRealm{
		Pieces: []puzzle.Piece{puzzle.NewButton(true, puzzle.AnyMark()), puzzle.NewSwitch(false)},
		Rules: []puzzle.Rule{
			{Sender: 0, Trigger: puzzle.EventClicked, Recipient: 1, Cause: puzzle.CommandSet,
				Matcher: puzzle.Matcher{Kind: puzzle.MatchEmptyToBool, Const: true}},
		},
		Manifold:         manifold,
		SettingsDefaults: map[string]model.SettingValue{},
	}, nil
}

func newButtonSwitchController(t *testing.T) *Controller {
	t.Helper()
	store := newMemStore()
	ctrl, err := New(Launch{Kind: LaunchNew, Owner: "alice", Asset: "hash"},
		stubResolver{asset: model.Asset{Hash: "hash", Capabilities: []string{"basic"}}},
		buttonSwitchConverter{}, store, time.Unix(0, 0))
	require.NoError(t, err)
	return ctrl
}

func TestHandle_Perform_MoveAdvancesPositionTowardFacing(t *testing.T) {
	ctrl := newButtonSwitchController(t)
	now := time.Unix(0, 0)
	require.NoError(t, ctrl.TryAdd(model.Local("alice"), true, now))

	start := ctrl.players[model.Local("alice")].Position

	resp, err := ctrl.Handle(RealmRequest{
		Kind:   RequestPerform,
		Caller: model.Local("alice"),
		Actions: []Action{
			{Kind: ActionRotate, RotateDirection: navigation.DirectionXPos},
			{Kind: ActionMove, Length: 2},
		},
	}, true, now)
	require.NoError(t, err)
	require.Equal(t, ResponseUpdateState, resp.Kind)

	frame := resp.PlayerStates[model.Local("alice")]
	assert.Equal(t, start.X+2, frame.Position.X, "two Move steps facing XPos should land two tiles over")
	assert.Equal(t, start.Y, frame.Position.Y)
}

func TestHandle_Perform_MoveStopsAtObstacle(t *testing.T) {
	ctrl := newButtonSwitchController(t)
	now := time.Unix(0, 0)
	require.NoError(t, ctrl.TryAdd(model.Local("alice"), true, now))
	ctrl.manifold.Platforms[0].Terrain[[2]uint32{1, 0}] = navigation.Ground{Kind: navigation.GroundObstacle}

	resp, err := ctrl.Handle(RealmRequest{
		Kind:   RequestPerform,
		Caller: model.Local("alice"),
		Actions: []Action{
			{Kind: ActionRotate, RotateDirection: navigation.DirectionXPos},
			{Kind: ActionMove, Length: 3},
		},
	}, true, now)
	require.NoError(t, err)

	frame := resp.PlayerStates[model.Local("alice")]
	assert.Equal(t, uint32(0), frame.Position.X, "movement must stop before stepping onto an obstacle tile")
}

func TestHandle_Perform_ButtonClickPropagatesToSwitch(t *testing.T) {
	ctrl := newButtonSwitchController(t)
	now := time.Unix(0, 0)
	require.NoError(t, ctrl.TryAdd(model.Local("alice"), true, now))

	ref := navigation.PieceRef(0)
	ctrl.manifold.Platforms[0].Terrain[[2]uint32{0, 0}] = navigation.Ground{
		Kind: navigation.GroundPieces,
		Interactions: map[navigation.InteractionKey]navigation.Interaction{
			{Kind: navigation.InteractionButton, Name: "btn"}: {Piece: ref},
		},
	}

	_, err := ctrl.Handle(RealmRequest{
		Kind:   RequestPerform,
		Caller: model.Local("alice"),
		Actions: []Action{
			{Kind: ActionInteraction, InteractionTarget: navigation.InteractionKey{Kind: navigation.InteractionButton, Name: "btn"}, InteractionKind: puzzle.InteractClick},
		},
	}, true, now)
	require.NoError(t, err)

	sw, ok := ctrl.graph.Piece(1).(*puzzle.Switch)
	require.True(t, ok)
	assert.True(t, sw.On, "clicking the button must propagate through the rule and flip the switch")
}
