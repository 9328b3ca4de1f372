package asset

import (
	"fmt"
	"time"

	"github.com/udisondev/la2go/internal/navigation"
)

func buildManifold(doc Document, gateName func(string) *navigation.GateState) (*navigation.Manifold, error) {
	platforms := make([]navigation.Platform, len(doc.Platforms))
	for i, pd := range doc.Platforms {
		terrain := make(map[[2]uint32]navigation.Ground, len(pd.Tiles))
		for _, td := range pd.Tiles {
			g, err := buildGround(td, gateName)
			if err != nil {
				return nil, fmt.Errorf("asset: platform %d tile (%d,%d): %w", i, td.X, td.Y, err)
			}
			terrain[[2]uint32{td.X, td.Y}] = g
		}
		platforms[i] = navigation.Platform{Width: pd.Width, Length: pd.Length, Terrain: terrain}
	}

	spawns := make(map[string]navigation.SpawnArea, len(doc.SpawnPoints))
	for name, sd := range doc.SpawnPoints {
		spawns[name] = toSpawnArea(sd)
	}

	return &navigation.Manifold{
		Platforms:    platforms,
		SpawnPoints:  spawns,
		DefaultSpawn: toSpawnArea(doc.DefaultSpawn),
	}, nil
}

func toSpawnArea(sd SpawnAreaDoc) navigation.SpawnArea {
	return navigation.SpawnArea{
		Platform: sd.Platform,
		MinX:     sd.MinX,
		MinY:     sd.MinY,
		MaxX:     sd.MaxX,
		MaxY:     sd.MaxY,
	}
}

func buildGround(td TileDoc, gateName func(string) *navigation.GateState) (navigation.Ground, error) {
	switch td.Kind {
	case "", "walkable":
		return navigation.Ground{Kind: navigation.GroundWalkable}, nil
	case "obstacle":
		return navigation.Ground{Kind: navigation.GroundObstacle}, nil
	case "gated":
		return navigation.Ground{Kind: navigation.GroundGatedObstacle, Gate: gateName(td.Gate)}, nil
	case "pieces":
		interactions := make(map[navigation.InteractionKey]navigation.Interaction, len(td.Interactions))
		var proximity []navigation.PieceRef
		for _, in := range td.Interactions {
			kind, err := interactionKeyKindFromString(in.Kind)
			if err != nil {
				return navigation.Ground{}, err
			}
			interactions[navigation.InteractionKey{Kind: kind, Name: in.Name}] = navigation.Interaction{
				Piece:     navigation.PieceRef(in.Piece),
				Animation: in.Animation,
				Duration:  time.Duration(in.DurationMS) * time.Millisecond,
			}
		}
		for _, idx := range td.Proximity {
			proximity = append(proximity, navigation.PieceRef(idx))
		}
		return navigation.Ground{Kind: navigation.GroundPieces, Interactions: interactions, Proximity: proximity}, nil
	default:
		return navigation.Ground{}, fmt.Errorf("unknown tile kind %q", td.Kind)
	}
}

func interactionKeyKindFromString(s string) (navigation.InteractionKeyKind, error) {
	switch s {
	case "button":
		return navigation.InteractionButton, nil
	case "switch":
		return navigation.InteractionSwitch, nil
	case "radioButton":
		return navigation.InteractionRadioButton, nil
	case "realmSelector":
		return navigation.InteractionRealmSelector, nil
	default:
		return 0, fmt.Errorf("unknown interaction kind %q", s)
	}
}
