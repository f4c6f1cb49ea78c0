package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillSlice sets every voxel of z-slice z to val on channel 0.
func fillSlice(v *Volume, z int, val uint32) {
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			v.Set(z, y, x, val)
		}
	}
}

func TestVolumeIndexing(t *testing.T) {
	v := New(2, 3, 4)
	assert.Len(t, v.Data, 24)
	assert.Equal(t, 1, v.Channels)

	v.Set(1, 2, 3, 99)
	assert.Equal(t, uint32(99), v.At(1, 2, 3))
	assert.Equal(t, uint32(99), v.Data[1*12+2*4+3])

	m := NewWithChannels(2, 2, 2, 2)
	m.Data[m.Index(1, 1, 0, 1)] = 7
	assert.Equal(t, 13, m.Index(1, 1, 0, 1))
	assert.Equal(t, uint32(7), m.Data[13])
}

func TestSliceBlankAndMax(t *testing.T) {
	v := New(3, 2, 2)
	assert.True(t, v.SliceBlank(0))
	assert.Equal(t, uint32(0), v.Max())

	v.Set(1, 1, 0, 5)
	assert.True(t, v.SliceBlank(0))
	assert.False(t, v.SliceBlank(1))
	assert.Equal(t, uint32(5), v.Max())

	v.Zero()
	assert.True(t, v.SliceBlank(1))
}

func TestCopyWindow(t *testing.T) {
	src := New(2, 3, 3)
	for i := range src.Data {
		src.Data[i] = uint32(i + 1)
	}
	dst := New(4, 4, 4)
	require.NoError(t, CopyWindow(dst, src, 1, 1, 1, 0, 1, 1, 2, 2, 2))

	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				assert.Equal(t, src.At(z, 1+y, 1+x), dst.At(1+z, 1+y, 1+x))
			}
		}
	}
	// Untouched voxels stay zero.
	assert.Equal(t, uint32(0), dst.At(0, 0, 0))
	assert.Equal(t, uint32(0), dst.At(3, 3, 3))
}

func TestCopyWindowChannelMismatch(t *testing.T) {
	err := CopyWindow(New(1, 1, 1), NewWithChannels(2, 1, 1, 1), 0, 0, 0, 0, 0, 0, 1, 1, 1)
	assert.Error(t, err)
}

func TestRepairBlankSlicesInterior(t *testing.T) {
	v := New(4, 2, 2)
	fillSlice(v, 0, 1)
	fillSlice(v, 2, 3)
	fillSlice(v, 3, 4)

	assert.False(t, RepairBlankSlices(v))
	// The interior blank takes its predecessor.
	assert.Equal(t, uint32(1), v.At(1, 0, 0))
	assert.Equal(t, uint32(3), v.At(2, 0, 0))
}

func TestRepairBlankSlicesEnds(t *testing.T) {
	v := New(5, 2, 2)
	fillSlice(v, 2, 7)

	assert.False(t, RepairBlankSlices(v))
	// Leading and trailing blanks take the nearest non-blank slice.
	for z := 0; z < 5; z++ {
		assert.Equal(t, uint32(7), v.At(z, 0, 0), "slice %d", z)
	}
}

func TestRepairBlankSlicesAllBlank(t *testing.T) {
	v := New(3, 2, 2)
	assert.True(t, RepairBlankSlices(v))
	for _, val := range v.Data {
		assert.Equal(t, uint32(0), val)
	}
}

func TestPadReflect(t *testing.T) {
	v := New(3, 1, 1)
	v.Set(0, 0, 0, 10)
	v.Set(1, 0, 0, 20)
	v.Set(2, 0, 0, 30)

	out, err := Pad(v, [3]int{2, 0, 0}, [3]int{1, 0, 0}, BorderReflect)
	require.NoError(t, err)
	require.Equal(t, 6, out.Depth)

	// Mirror without repeating the edge: [30 20 | 10 20 30 | 20].
	want := []uint32{30, 20, 10, 20, 30, 20}
	for z, w := range want {
		assert.Equal(t, w, out.At(z, 0, 0), "slice %d", z)
	}
}

func TestPadEdge(t *testing.T) {
	v := New(1, 2, 1)
	v.Set(0, 0, 0, 1)
	v.Set(0, 1, 0, 2)

	out, err := Pad(v, [3]int{0, 1, 2}, [3]int{0, 1, 0}, BorderEdge)
	require.NoError(t, err)
	require.Equal(t, 4, out.Height)
	require.Equal(t, 3, out.Width)

	assert.Equal(t, uint32(1), out.At(0, 0, 2))
	assert.Equal(t, uint32(1), out.At(0, 1, 0))
	assert.Equal(t, uint32(2), out.At(0, 2, 2))
	assert.Equal(t, uint32(2), out.At(0, 3, 1))
}

func TestPadZero(t *testing.T) {
	v := New(1, 1, 1)
	v.Set(0, 0, 0, 9)

	out, err := Pad(v, [3]int{1, 1, 1}, [3]int{1, 1, 1}, BorderZero)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), out.At(1, 1, 1))
	assert.Equal(t, uint32(0), out.At(0, 1, 1))
	assert.Equal(t, uint32(0), out.At(2, 2, 2))
}

func TestPadNegativeAmount(t *testing.T) {
	_, err := Pad(New(1, 1, 1), [3]int{-1, 0, 0}, [3]int{0, 0, 0}, BorderReflect)
	assert.Error(t, err)
}

func TestReflectIndex(t *testing.T) {
	// n=4: ... 2 1 | 0 1 2 3 | 2 1 0 ...
	cases := map[int]int{-2: 2, -1: 1, 0: 0, 3: 3, 4: 2, 5: 1, 6: 0}
	for in, want := range cases {
		assert.Equal(t, want, reflectIndex(in, 4), "index %d", in)
	}
	assert.Equal(t, 0, reflectIndex(-3, 1))
}
