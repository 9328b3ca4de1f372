package asset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/puzzle"
)

func TestConverterConvertsButtonGatedWall(t *testing.T) {
	buttonParams, _ := json.Marshal(map[string]any{"enabled": true, "any_mark": true})
	sinkParams, _ := json.Marshal(map[string]any{"gate": "g"})

	doc := Document{
		Platforms: []PlatformDoc{{
			Width: 3, Length: 1,
			Tiles: []TileDoc{
				{X: 1, Y: 0, Kind: "pieces", Interactions: []InteractionDoc{
					{Kind: "button", Name: "b", Piece: 0, Animation: "push", DurationMS: 300},
				}},
				{X: 2, Y: 0, Kind: "gated", Gate: "g"},
			},
		}},
		DefaultSpawn: SpawnAreaDoc{Platform: 0, MinX: 0, MaxX: 0, MinY: 0, MaxY: 0},
		Pieces: []PieceDoc{
			{Type: "button", Params: json.RawMessage(buttonParams)},
			{Type: "mapSink", Params: json.RawMessage(sinkParams)},
		},
		Rules: []puzzle.Rule{
			{Sender: 0, Trigger: puzzle.EventClicked, Recipient: 1, Cause: puzzle.CommandSet,
				Matcher: puzzle.Matcher{Kind: puzzle.MatchEmptyToBool, Const: true}},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	conv := NewConverter()
	result, err := conv.Convert(model.Asset{Data: data})
	require.NoError(t, err)
	require.Len(t, result.Pieces, 2)
	assert.Len(t, result.Rules, 1)
	require.Len(t, result.Manifold.Platforms, 1)

	gate := result.Manifold.Platforms[0].Terrain[[2]uint32{2, 0}].Gate
	require.NotNil(t, gate)
	assert.False(t, gate.Open())

	graph := puzzle.NewGraph("alice", result.Pieces, result.Rules, result.RadioGroups)
	_ = graph
}

func TestConverterRejectsUnknownPieceType(t *testing.T) {
	doc := Document{Pieces: []PieceDoc{{Type: "nonsense"}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = NewConverter().Convert(model.Asset{Data: data})
	require.Error(t, err)
}
