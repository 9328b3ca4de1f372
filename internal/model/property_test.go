package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_ConvolveSingleValue(t *testing.T) {
	m := SingleMulti(BoolValue(true))
	frames := m.Convolve()
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsDefault)
	assert.Nil(t, frames[0].Marks)
	assert.True(t, frames[0].Value.Bool)
}

func TestMulti_ConvolveGroupsMarksByDistinctValue(t *testing.T) {
	m := MaskedMulti(NumValue(0), map[uint8]PropertyValue{
		1: NumValue(5),
		2: NumValue(5),
		3: NumValue(9),
	})
	frames := m.Convolve()

	require.Len(t, frames, 3)
	assert.True(t, frames[0].IsDefault)
	assert.Equal(t, NumValue(0), frames[0].Value)

	byValue := map[float64][]uint8{}
	for _, f := range frames {
		if !f.IsDefault {
			byValue[f.Value.Num] = f.Marks
		}
	}
	assert.ElementsMatch(t, []uint8{1, 2}, byValue[5])
	assert.ElementsMatch(t, []uint8{3}, byValue[9])
}

func TestMulti_ConvolveIsDeterministicAcrossCalls(t *testing.T) {
	m := MaskedMulti(NumValue(0), map[uint8]PropertyValue{
		1: NumValue(5), 2: NumValue(5), 3: NumValue(9), 4: NumValue(1), 5: NumValue(9), 6: NumValue(5),
	})

	first := m.Convolve()
	for i := 0; i < 20; i++ {
		again := m.Convolve()
		assert.Equal(t, first, again, "Convolve must produce structurally identical output across repeated calls, not merely set-equal output")
	}
}

func TestMulti_ConvolveOmitsMarksMatchingDefault(t *testing.T) {
	m := MaskedMulti(BoolValue(false), map[uint8]PropertyValue{
		1: BoolValue(false), // equals default, should not get its own frame
		2: BoolValue(true),
	})
	frames := m.Convolve()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].IsDefault)
	assert.Equal(t, []uint8{2}, frames[1].Marks)
}
