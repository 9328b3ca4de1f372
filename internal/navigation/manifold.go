// Package navigation implements the per-realm tile manifold (spec.md §4.2,
// component C2): movement validation, interaction/proximity lookup, and
// spawn resolution. Generalizes the teacher's world-wide region grid
// (internal/world/{grid,region}.go) down to a single realm's platform grid.
package navigation

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Timing constants (spec.md §4.2).
const (
	RotateTime   = 200 * time.Millisecond
	TouchTime    = 300 * time.Millisecond
	WarpTime     = 500 * time.Millisecond
	DefaultWalk  = 400 * time.Millisecond
)

// GroundKind discriminates a tile's Ground union (spec.md §3).
type GroundKind int

const (
	GroundWalkable GroundKind = iota
	GroundObstacle
	GroundGatedObstacle
	GroundPieces
)

// Interaction identifies one interactable registered at a tile.
type Interaction struct {
	Piece     PieceRef
	Animation string
	Duration  time.Duration
}

// InteractionKeyKind discriminates the InteractionKey union (spec.md §4.2).
type InteractionKeyKind int

const (
	InteractionButton InteractionKeyKind = iota
	InteractionSwitch
	InteractionRadioButton
	InteractionRealmSelector
)

// InteractionKey names one interactable slot at a tile.
type InteractionKey struct {
	Kind InteractionKeyKind
	Name string
}

// PieceRef is an opaque index into the puzzle graph's piece vector; the
// navigation package never touches piece state directly (spec.md §9:
// pieces hold only indices to each other, and the manifold holds only
// PieceRef values, avoiding an import cycle with internal/puzzle).
type PieceRef int

// Ground is one tile's terrain classification.
type Ground struct {
	Kind GroundKind

	// GroundGatedObstacle: shared with the corresponding map-sink piece.
	// Flipping it instantly flips walkability without rewalking players
	// (spec.md §4.2, §9).
	Gate *GateState

	// GroundPieces
	Interactions map[InteractionKey]Interaction
	Proximity    []PieceRef
}

// GateState is the atomic boolean a GatedObstacle shares with a map-sink
// piece.
type GateState struct {
	open atomic.Bool
}

func NewGateState(open bool) *GateState {
	g := &GateState{}
	g.open.Store(open)
	return g
}

func (g *GateState) Open() bool    { return g.open.Load() }
func (g *GateState) SetOpen(v bool) { g.open.Store(v) }

// Point is a location on a platform.
type Point struct {
	Platform int
	X, Y     uint32
}

// Direction is a player's facing (spec.md §3 "current direction (NSEW)").
type Direction int

const (
	DirectionYPos Direction = iota
	DirectionYNeg
	DirectionXPos
	DirectionXNeg
)

// Neighbour returns the tile one step away from p in the given direction. It
// reports false on an unsigned-coordinate underflow (stepping XNeg/YNeg off
// the edge of the grid), matching the original's checked_sub-returns-None
// behaviour (_examples/original_source/core/src/realm/mod.rs Point::neighbour).
func (p Point) Neighbour(d Direction) (Point, bool) {
	x, y := p.X, p.Y
	switch d {
	case DirectionXPos:
		x++
	case DirectionXNeg:
		if x == 0 {
			return Point{}, false
		}
		x--
	case DirectionYPos:
		y++
	case DirectionYNeg:
		if y == 0 {
			return Point{}, false
		}
		y--
	}
	return Point{Platform: p.Platform, X: x, Y: y}, true
}

// Adjacent reports whether two points are neighbours: same platform and
// Chebyshev distance <= 1 (spec.md §3).
func (p Point) Adjacent(q Point) bool {
	if p.Platform != q.Platform {
		return false
	}
	return chebyshev(p.X, q.X) <= 1 && chebyshev(p.Y, q.Y) <= 1
}

func chebyshev(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// SpawnArea is a named rectangular region players may warp into.
type SpawnArea struct {
	Platform   int
	MinX, MinY uint32
	MaxX, MaxY uint32
}

func (a SpawnArea) pick() Point {
	width := a.MaxX - a.MinX + 1
	height := a.MaxY - a.MinY + 1
	return Point{
		Platform: a.Platform,
		X:        a.MinX + uint32(rand.IntN(int(width))),
		Y:        a.MinY + uint32(rand.IntN(int(height))),
	}
}

// Platform is one 2-D tile grid within a realm (spec.md §3).
type Platform struct {
	Width, Length uint32
	Terrain       map[[2]uint32]Ground
}

// Manifold is the navigable structure of a realm: a list of platforms plus
// named spawn points (spec.md §3 "Navigation manifold").
type Manifold struct {
	Platforms     []Platform
	SpawnPoints   map[string]SpawnArea
	DefaultSpawn  SpawnArea
}

// Warp resolves a spawn point by name (or the default, when name is nil) to
// a concrete Point, chosen uniformly at random within the area.
func (m *Manifold) Warp(name *string) (Point, bool) {
	if name == nil {
		return m.DefaultSpawn.pick(), true
	}
	area, ok := m.SpawnPoints[*name]
	if !ok {
		return Point{}, false
	}
	return area.pick(), true
}

func (m *Manifold) groundAt(p Point) (Ground, bool) {
	if p.Platform < 0 || p.Platform >= len(m.Platforms) {
		return Ground{}, false
	}
	plat := m.Platforms[p.Platform]
	if p.X >= plat.Width || p.Y >= plat.Length {
		return Ground{}, false
	}
	g, ok := plat.Terrain[[2]uint32{p.X, p.Y}]
	if !ok {
		// Tiles absent from the sparse terrain map default to walkable.
		return Ground{Kind: GroundWalkable}, true
	}
	return g, true
}

// Verify reports whether a tile is in range and walkable: not an Obstacle,
// and not a closed GatedObstacle (spec.md §4.2).
func (m *Manifold) Verify(p Point) bool {
	g, ok := m.groundAt(p)
	if !ok {
		return false
	}
	switch g.Kind {
	case GroundObstacle:
		return false
	case GroundGatedObstacle:
		return g.Gate != nil && g.Gate.Open()
	default:
		return true
	}
}

// ActiveProximity returns the proximity-tracking pieces registered at a
// tile.
func (m *Manifold) ActiveProximity(p Point) []PieceRef {
	g, ok := m.groundAt(p)
	if !ok || g.Kind != GroundPieces {
		return nil
	}
	return g.Proximity
}

// Animation looks up the (animation, duration) pair for moving from tile
// `from`: the piece entry registered there if present, else a 400ms walk
// (spec.md §4.2).
func (m *Manifold) Animation(from Point) (string, time.Duration) {
	g, ok := m.groundAt(from)
	if ok && g.Kind == GroundPieces {
		for _, inter := range g.Interactions {
			return inter.Animation, inter.Duration
		}
	}
	return "walk", DefaultWalk
}

// InteractionTarget resolves the piece registered at `at` under the given
// key.
func (m *Manifold) InteractionTarget(at Point, key InteractionKey) (PieceRef, bool) {
	g, ok := m.groundAt(at)
	if !ok || g.Kind != GroundPieces {
		return 0, false
	}
	inter, ok := g.Interactions[key]
	return inter.Piece, ok
}

// FindAdjacentOrSame returns any walkable neighbour tile, else the point
// itself. Ties are broken by a deterministic scan order. This is spawn/warp
// fallback resolution only (spec.md §4.2's landing-tile-adjustment step,
// _examples/original_source/server/src/realm/mod.rs:799) — a player's Move
// action steps via Neighbour(direction), never this.
func (m *Manifold) FindAdjacentOrSame(p Point) Point {
	for dy := int64(-1); dy <= 1; dy++ {
		for dx := int64(-1); dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := int64(p.X) + dx
			ny := int64(p.Y) + dy
			if nx < 0 || ny < 0 {
				continue
			}
			cand := Point{Platform: p.Platform, X: uint32(nx), Y: uint32(ny)}
			if m.Verify(cand) {
				return cand
			}
		}
	}
	return p
}
