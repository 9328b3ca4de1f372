package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testManifold() *Manifold {
	return &Manifold{
		Platforms: []Platform{
			{
				Width:  4,
				Length: 4,
				Terrain: map[[2]uint32]Ground{
					{1, 1}: {Kind: GroundObstacle},
					{2, 1}: {Kind: GroundGatedObstacle, Gate: NewGateState(false)},
					{3, 1}: {Kind: GroundGatedObstacle, Gate: NewGateState(true)},
				},
			},
		},
		DefaultSpawn: SpawnArea{Platform: 0, MinX: 0, MinY: 0, MaxX: 0, MaxY: 0},
	}
}

func TestVerify_WalkableTileDefaultsTrue(t *testing.T) {
	m := testManifold()
	assert.True(t, m.Verify(Point{Platform: 0, X: 0, Y: 0}))
}

func TestVerify_ObstacleIsNotWalkable(t *testing.T) {
	m := testManifold()
	assert.False(t, m.Verify(Point{Platform: 0, X: 1, Y: 1}))
}

func TestVerify_ClosedGatedObstacleIsNotWalkable(t *testing.T) {
	m := testManifold()
	assert.False(t, m.Verify(Point{Platform: 0, X: 2, Y: 1}))
}

func TestVerify_OpenGatedObstacleIsWalkable(t *testing.T) {
	m := testManifold()
	assert.True(t, m.Verify(Point{Platform: 0, X: 3, Y: 1}))
}

func TestVerify_OutOfRangeIsNotWalkable(t *testing.T) {
	m := testManifold()
	assert.False(t, m.Verify(Point{Platform: 0, X: 99, Y: 99}))
	assert.False(t, m.Verify(Point{Platform: 7, X: 0, Y: 0}))
}

func TestVerify_GateFlipIsObservedImmediately(t *testing.T) {
	m := testManifold()
	gate := m.Platforms[0].Terrain[[2]uint32{2, 1}].Gate
	require := assert.New(t)
	require.False(m.Verify(Point{Platform: 0, X: 2, Y: 1}))
	gate.SetOpen(true)
	require.True(m.Verify(Point{Platform: 0, X: 2, Y: 1}))
}

func TestPoint_NeighbourStepsInEachDirection(t *testing.T) {
	p := Point{Platform: 0, X: 2, Y: 2}

	next, ok := p.Neighbour(DirectionXPos)
	assert.True(t, ok)
	assert.Equal(t, Point{Platform: 0, X: 3, Y: 2}, next)

	next, ok = p.Neighbour(DirectionXNeg)
	assert.True(t, ok)
	assert.Equal(t, Point{Platform: 0, X: 1, Y: 2}, next)

	next, ok = p.Neighbour(DirectionYPos)
	assert.True(t, ok)
	assert.Equal(t, Point{Platform: 0, X: 2, Y: 3}, next)

	next, ok = p.Neighbour(DirectionYNeg)
	assert.True(t, ok)
	assert.Equal(t, Point{Platform: 0, X: 2, Y: 1}, next)
}

func TestPoint_NeighbourUnderflowReportsFalse(t *testing.T) {
	origin := Point{Platform: 0, X: 0, Y: 0}

	_, ok := origin.Neighbour(DirectionXNeg)
	assert.False(t, ok)

	_, ok = origin.Neighbour(DirectionYNeg)
	assert.False(t, ok)
}

func TestFindAdjacentOrSame_ReturnsSelfWhenFullyBoxedIn(t *testing.T) {
	m := &Manifold{
		Platforms: []Platform{
			{
				Width:  1,
				Length: 1,
				Terrain: map[[2]uint32]Ground{
					{0, 0}: {Kind: GroundWalkable},
				},
			},
		},
	}
	assert.Equal(t, Point{Platform: 0, X: 0, Y: 0}, m.FindAdjacentOrSame(Point{Platform: 0, X: 0, Y: 0}))
}

func TestFindAdjacentOrSame_PrefersAnyWalkableNeighbour(t *testing.T) {
	m := testManifold()
	// (0,0) is walkable (default) with several walkable neighbours present.
	got := m.FindAdjacentOrSame(Point{Platform: 0, X: 0, Y: 0})
	assert.True(t, m.Verify(got))
}
