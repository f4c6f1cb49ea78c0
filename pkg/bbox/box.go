// Package bbox computes and merges per-instance bounding boxes over tiled
// instance-segmentation volumes.
//
// Boxes are axis-aligned and inclusive on both ends. A box that has seen no
// foreground is an explicit empty value distinguished from any valid box, so
// "nothing found" never collides with a zero-sized box at the origin. Tables
// map instance ids to boxes and fold associatively, which lets a caller merge
// tens of thousands of per-tile tables in any order.
package bbox

import (
	"fmt"
	"math"
)

// MaxRank is the highest supported box dimensionality.
const MaxRank = 3

// Box is an axis-aligned bounding box over Rank axes (2 or 3), inclusive on
// both ends. Only the first Rank entries of Min and Max are meaningful.
//
// An empty box carries a sentinel (Min above any coordinate, Max below any
// coordinate) so that tightening with min/max works without special cases
// and the sentinel can never be mistaken for a real coordinate.
type Box struct {
	Rank int
	Min  [MaxRank]int
	Max  [MaxRank]int
}

// EmptyBox returns a box of the given rank with no evidence yet.
func EmptyBox(rank int) Box {
	b := Box{Rank: rank}
	for i := 0; i < rank; i++ {
		b.Min[i] = math.MaxInt
		b.Max[i] = -1
	}
	return b
}

// Empty reports whether the box has seen no foreground on some axis.
func (b Box) Empty() bool {
	for i := 0; i < b.Rank; i++ {
		if b.Max[i] < b.Min[i] {
			return true
		}
	}
	return b.Rank == 0
}

// Include tightens the box to cover the point p.
func (b *Box) Include(p ...int) {
	for i := 0; i < b.Rank && i < len(p); i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// IncludeAxis tightens the box along a single axis only. This is the
// primitive behind the per-axis-slice table extraction.
func (b *Box) IncludeAxis(axis, v int) {
	if v < b.Min[axis] {
		b.Min[axis] = v
	}
	if v > b.Max[axis] {
		b.Max[axis] = v
	}
}

// Size returns the inclusive extent of the box along an axis, 0 when empty.
func (b Box) Size(axis int) int {
	if b.Empty() {
		return 0
	}
	return b.Max[axis] - b.Min[axis] + 1
}

// Contains reports whether b fully contains other.
func (b Box) Contains(other Box) bool {
	if other.Empty() {
		return true
	}
	if b.Empty() || b.Rank != other.Rank {
		return false
	}
	for i := 0; i < b.Rank; i++ {
		if other.Min[i] < b.Min[i] || other.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Shift translates the box by the given per-axis offsets.
func (b Box) Shift(off ...int) Box {
	if b.Empty() {
		return b
	}
	for i := 0; i < b.Rank && i < len(off); i++ {
		b.Min[i] += off[i]
		b.Max[i] += off[i]
	}
	return b
}

// Merge returns the smallest box containing both a and b: elementwise min of
// minimums and max of maximums. An empty operand contributes nothing, so
// merging with an empty box yields the other box unchanged.
func Merge(a, b Box) Box {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	out := a
	for i := 0; i < a.Rank; i++ {
		if b.Min[i] < out.Min[i] {
			out.Min[i] = b.Min[i]
		}
		if b.Max[i] > out.Max[i] {
			out.Max[i] = b.Max[i]
		}
	}
	return out
}

func (b Box) String() string {
	if b.Empty() {
		return "bbox(empty)"
	}
	s := "bbox("
	for i := 0; i < b.Rank; i++ {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d:%d", b.Min[i], b.Max[i])
	}
	return s + ")"
}

// checkRank validates that a label map rank is supported.
func checkRank(shape []int) error {
	if len(shape) != 2 && len(shape) != 3 {
		return fmt.Errorf("input volume should be either 2D or 3D, got rank %d", len(shape))
	}
	return nil
}

// BoxOf computes the tight bounding box of the foreground (values > 0) in a
// binary mask with the given shape, along with the foreground voxel count.
// An all-background mask yields an empty box and count 0. The mask must be
// 2D or 3D.
func BoxOf(data []uint32, shape []int) (Box, int, error) {
	if err := checkRank(shape); err != nil {
		return Box{}, 0, err
	}
	if err := checkLen(data, shape); err != nil {
		return Box{}, 0, err
	}
	rank := len(shape)
	box := EmptyBox(rank)
	count := 0

	if rank == 2 {
		h, w := shape[0], shape[1]
		for y := 0; y < h; y++ {
			row := data[y*w : (y+1)*w]
			for x, v := range row {
				if v > 0 {
					box.Include(y, x)
					count++
				}
			}
		}
		return box, count, nil
	}

	d, h, w := shape[0], shape[1], shape[2]
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			row := data[(z*h+y)*w : (z*h+y+1)*w]
			for x, v := range row {
				if v > 0 {
					box.Include(z, y, x)
					count++
				}
			}
		}
	}
	return box, count, nil
}

func checkLen(data []uint32, shape []int) error {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(data) != n {
		return fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return nil
}
