// Package volume provides the dense voxel buffer shared by the bounding-box
// and assembly code, together with the small raster operations the assemblers
// need: window copies, border padding, blank-slice repair, relabeling and
// masking.
package volume

import (
	"fmt"
)

// Volume is a dense block of voxels stored in row-major order with an
// optional leading channel axis: index = ((c*Depth+z)*Height+y)*Width+x.
//
// A single uint32 element type covers every value domain in the system:
// 8/16-bit image intensities, 24-bit RGB-encoded instance ids and plain
// integer label maps. Output sinks narrow to the on-disk dtype when writing.
type Volume struct {
	// Channels is the length of the leading channel axis. It is 1 for
	// ordinary 3D volumes and only exceeds 1 when a chunked read keeps
	// the channel axis of a 4D source block.
	Channels int

	// Depth, Height and Width are the z/y/x extents in voxels.
	Depth  int
	Height int
	Width  int

	// Data holds the voxels in channel-major, then z/y/x row-major order.
	Data []uint32
}

// New allocates a zero-filled 3D volume (single channel).
func New(depth, height, width int) *Volume {
	return NewWithChannels(1, depth, height, width)
}

// NewWithChannels allocates a zero-filled volume with a leading channel axis.
func NewWithChannels(channels, depth, height, width int) *Volume {
	return &Volume{
		Channels: channels,
		Depth:    depth,
		Height:   height,
		Width:    width,
		Data:     make([]uint32, channels*depth*height*width),
	}
}

// Index returns the linear index of (c, z, y, x).
func (v *Volume) Index(c, z, y, x int) int {
	return ((c*v.Depth+z)*v.Height+y)*v.Width + x
}

// At returns the voxel at (z, y, x) on channel 0.
func (v *Volume) At(z, y, x int) uint32 {
	return v.Data[v.Index(0, z, y, x)]
}

// Set stores a voxel at (z, y, x) on channel 0.
func (v *Volume) Set(z, y, x int, val uint32) {
	v.Data[v.Index(0, z, y, x)] = val
}

// SliceBlank reports whether z-slice z is entirely background (zero) across
// all channels.
func (v *Volume) SliceBlank(z int) bool {
	for c := 0; c < v.Channels; c++ {
		base := v.Index(c, z, 0, 0)
		for _, val := range v.Data[base : base+v.Height*v.Width] {
			if val > 0 {
				return false
			}
		}
	}
	return true
}

// Max returns the largest voxel value in the volume.
func (v *Volume) Max() uint32 {
	var m uint32
	for _, val := range v.Data {
		if val > m {
			m = val
		}
	}
	return m
}

// Zero resets every voxel to background.
func (v *Volume) Zero() {
	clear(v.Data)
}

// CopySlice copies the full z-slice src into slice dst of the same volume.
func (v *Volume) CopySlice(dst, src int) {
	n := v.Height * v.Width
	for c := 0; c < v.Channels; c++ {
		copy(v.Data[v.Index(c, dst, 0, 0):v.Index(c, dst, 0, 0)+n],
			v.Data[v.Index(c, src, 0, 0):v.Index(c, src, 0, 0)+n])
	}
}

// CopyWindow copies an nz*ny*nx window from src at (sz, sy, sx) into dst at
// (dz, dy, dx). Both volumes must have the same channel count; the window
// must lie inside both volumes.
func CopyWindow(dst, src *Volume, dz, dy, dx, sz, sy, sx, nz, ny, nx int) error {
	if dst.Channels != src.Channels {
		return fmt.Errorf("channel mismatch: dst has %d, src has %d", dst.Channels, src.Channels)
	}
	for c := 0; c < src.Channels; c++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				di := dst.Index(c, dz+z, dy+y, dx)
				si := src.Index(c, sz+z, sy+y, sx)
				copy(dst.Data[di:di+nx], src.Data[si:si+nx])
			}
		}
	}
	return nil
}

// RepairBlankSlices replaces blank z-slices in place: leading and trailing
// blanks take the nearest non-blank neighbor propagated inward from both
// ends, and any remaining interior blank slice takes its immediate
// predecessor. Returns true when every slice is blank, in which case the
// volume is left untouched; callers must report that case rather than treat
// it as an ordinary empty result.
func RepairBlankSlices(v *Volume) bool {
	first := 0
	last := v.Depth - 1
	for first <= last && v.SliceBlank(first) {
		first++
	}
	if first > last {
		return true
	}
	for z := first - 1; z >= 0; z-- {
		v.CopySlice(z, first)
	}
	for last >= first && v.SliceBlank(last) {
		last--
	}
	for z := last + 1; z < v.Depth; z++ {
		v.CopySlice(z, last)
	}
	for z := first + 1; z < last; z++ {
		if v.SliceBlank(z) {
			v.CopySlice(z, z-1)
		}
	}
	return false
}
