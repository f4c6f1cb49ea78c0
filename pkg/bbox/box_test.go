package bbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBox(t *testing.T) {
	b := EmptyBox(3)
	assert.True(t, b.Empty())
	assert.Equal(t, 0, b.Size(0))

	b.Include(5, 6, 7)
	assert.False(t, b.Empty())
	assert.Equal(t, Box{Rank: 3, Min: [3]int{5, 6, 7}, Max: [3]int{5, 6, 7}}, b)
	assert.Equal(t, 1, b.Size(1))
}

func TestBoxInclude(t *testing.T) {
	b := EmptyBox(2)
	b.Include(3, 10)
	b.Include(1, 12)
	b.Include(5, 11)
	assert.Equal(t, Box{Rank: 2, Min: [3]int{1, 10}, Max: [3]int{5, 12}}, b)
	assert.Equal(t, 5, b.Size(0))
	assert.Equal(t, 3, b.Size(1))
}

func TestBoxIncludeAxis(t *testing.T) {
	b := EmptyBox(3)
	b.IncludeAxis(0, 4)
	b.IncludeAxis(0, 9)
	// Other axes have seen nothing, so the box stays empty overall.
	assert.True(t, b.Empty())
	assert.Equal(t, 4, b.Min[0])
	assert.Equal(t, 9, b.Max[0])
}

func TestBoxContains(t *testing.T) {
	outer := Box{Rank: 2, Min: [3]int{0, 0}, Max: [3]int{10, 10}}
	inner := Box{Rank: 2, Min: [3]int{2, 3}, Max: [3]int{5, 7}}
	assert.True(t, outer.Contains(inner))
	assert.False(t, inner.Contains(outer))
	assert.True(t, outer.Contains(EmptyBox(2)))
	assert.False(t, EmptyBox(2).Contains(inner))
}

func TestBoxShift(t *testing.T) {
	b := Box{Rank: 3, Min: [3]int{1, 2, 3}, Max: [3]int{4, 5, 6}}
	shifted := b.Shift(10, 20, 30)
	assert.Equal(t, Box{Rank: 3, Min: [3]int{11, 22, 33}, Max: [3]int{14, 25, 36}}, shifted)
	assert.True(t, EmptyBox(3).Shift(10, 20, 30).Empty())
}

func TestMerge(t *testing.T) {
	a := Box{Rank: 2, Min: [3]int{0, 5}, Max: [3]int{3, 9}}
	b := Box{Rank: 2, Min: [3]int{2, 1}, Max: [3]int{7, 6}}
	want := Box{Rank: 2, Min: [3]int{0, 1}, Max: [3]int{7, 9}}

	assert.Equal(t, want, Merge(a, b))
	assert.Equal(t, want, Merge(b, a))
	assert.Equal(t, a, Merge(a, a))
	assert.Equal(t, a, Merge(a, EmptyBox(2)))
	assert.Equal(t, a, Merge(EmptyBox(2), a))

	merged := Merge(a, b)
	assert.True(t, merged.Contains(a))
	assert.True(t, merged.Contains(b))
}

func TestBoxString(t *testing.T) {
	assert.Equal(t, "bbox(empty)", EmptyBox(2).String())
	b := Box{Rank: 3, Min: [3]int{1, 2, 3}, Max: [3]int{4, 5, 6}}
	assert.Equal(t, "bbox(1:4 2:5 3:6)", b.String())
}

func TestBoxOf2D(t *testing.T) {
	data := []uint32{
		0, 1, 1,
		0, 1, 0,
		2, 0, 0,
	}
	box, count, err := BoxOf(data, []int{3, 3})
	require.NoError(t, err)
	assert.Equal(t, Box{Rank: 2, Min: [3]int{0, 0}, Max: [3]int{2, 2}}, box)
	assert.Equal(t, 4, count)
}

func TestBoxOf3D(t *testing.T) {
	data := make([]uint32, 2*3*4)
	// One voxel per slice.
	data[0*12+1*4+2] = 7
	data[1*12+2*4+1] = 7
	box, count, err := BoxOf(data, []int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Box{Rank: 3, Min: [3]int{0, 1, 1}, Max: [3]int{1, 2, 2}}, box)
	assert.Equal(t, 2, count)
}

func TestBoxOfAllBackground(t *testing.T) {
	box, count, err := BoxOf(make([]uint32, 9), []int{3, 3})
	require.NoError(t, err)
	assert.True(t, box.Empty())
	assert.Equal(t, 0, count)
}

func TestBoxOfBadInput(t *testing.T) {
	_, _, err := BoxOf(make([]uint32, 4), []int{4})
	assert.Error(t, err)
	_, _, err = BoxOf(make([]uint32, 16), []int{2, 2, 2, 2})
	assert.Error(t, err)
	_, _, err = BoxOf(make([]uint32, 5), []int{2, 3})
	assert.Error(t, err)
}
