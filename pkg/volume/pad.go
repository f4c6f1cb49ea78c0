package volume

import "fmt"

// BorderMode selects how out-of-range margins are filled when a request
// extends past the declared volume bounds.
type BorderMode int

const (
	// BorderReflect mirrors the volume about its edge without repeating
	// the edge voxel (numpy-style reflect). The default.
	BorderReflect BorderMode = iota

	// BorderEdge repeats the nearest edge voxel.
	BorderEdge

	// BorderZero fills the margin with background.
	BorderZero
)

// reflectIndex maps an out-of-range coordinate into [0, n) by mirroring
// about the edges without repeating them: -1 -> 1, n -> n-2.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// edgeIndex clamps an out-of-range coordinate to [0, n).
func edgeIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Pad returns a new volume expanded by lo voxels on the low side and hi
// voxels on the high side of each z/y/x axis, with the margins filled
// according to mode. The input is placed at offset lo.
func Pad(v *Volume, lo, hi [3]int, mode BorderMode) (*Volume, error) {
	for i := 0; i < 3; i++ {
		if lo[i] < 0 || hi[i] < 0 {
			return nil, fmt.Errorf("negative pad amount on axis %d", i)
		}
	}
	out := NewWithChannels(v.Channels,
		v.Depth+lo[0]+hi[0], v.Height+lo[1]+hi[1], v.Width+lo[2]+hi[2])

	idx := func(i, n int) int {
		switch mode {
		case BorderEdge:
			return edgeIndex(i, n)
		default:
			return reflectIndex(i, n)
		}
	}

	for c := 0; c < v.Channels; c++ {
		for z := 0; z < out.Depth; z++ {
			for y := 0; y < out.Height; y++ {
				for x := 0; x < out.Width; x++ {
					sz, sy, sx := z-lo[0], y-lo[1], x-lo[2]
					inside := sz >= 0 && sz < v.Depth &&
						sy >= 0 && sy < v.Height &&
						sx >= 0 && sx < v.Width
					if !inside {
						if mode == BorderZero {
							continue
						}
						sz, sy, sx = idx(sz, v.Depth), idx(sy, v.Height), idx(sx, v.Width)
					}
					out.Data[out.Index(c, z, y, x)] = v.Data[v.Index(c, sz, sy, sx)]
				}
			}
		}
	}
	return out, nil
}
