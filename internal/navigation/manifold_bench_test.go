package navigation

import "testing"

// BenchmarkVerify exercises the tile-lookup hot path every player Move step
// calls once per tile (spec.md §4.3 "stepMove").
func BenchmarkVerify(b *testing.B) {
	m := testManifold()
	p := Point{Platform: 0, X: 0, Y: 0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Verify(p)
	}
}
