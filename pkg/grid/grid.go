// Package grid maps world-coordinate regions onto the tile and chunk grids
// of a sharded volume. It owns only index arithmetic (which tiles intersect
// a region, where each tile's footprint sits in world space, and how tile
// names are derived from indices) and performs no I/O.
package grid

// Grid describes a uniform 2D tile grid: per-z flat images of TileRows x
// TileCols pixels, with tile indices starting at (StartRow, StartCol) in the
// file naming scheme.
type Grid struct {
	TileRows int
	TileCols int
	StartRow int
	StartCol int
}

// RowRange returns the inclusive-exclusive range [r0, r1) of tile row
// indices intersecting the y extent [y0, y1): floor for the low edge,
// ceiling for the high edge.
func (g Grid) RowRange(y0, y1 int) (int, int) {
	return y0 / g.TileRows, (y1 + g.TileRows - 1) / g.TileRows
}

// ColRange returns the tile column index range [c0, c1) intersecting the x
// extent [x0, x1).
func (g Grid) ColRange(x0, x1 int) (int, int) {
	return x0 / g.TileCols, (x1 + g.TileCols - 1) / g.TileCols
}

// TileExtent returns the world-space footprint [y0, y1) x [x0, x1) of the
// tile at (row, col).
func (g Grid) TileExtent(row, col int) (y0, y1, x0, x1 int) {
	y0 = row * g.TileRows
	x0 = col * g.TileCols
	return y0, y0 + g.TileRows, x0, x0 + g.TileCols
}

// ChunkGrid describes a uniform 3D chunk grid with optional non-uniform
// boundary extents along z. Chunks are Size[0] x Size[1] x Size[2] blocks in
// z/y/x order, placed at index*Size + Origin in world space.
//
// When adjacent chunks carry overlap ("halo") slices, the z footprints are
// irregular: the first block starts at its nominal offset while every later
// block starts ExtraLead slices later, every block ends ExtraLead slices
// later than nominal, and the block at index LastZ ends a further ExtraTrail
// slices later. LastZ additionally bounds the logical block range; -1 leaves
// it unbounded.
type ChunkGrid struct {
	Size   [3]int
	Origin [3]int

	ExtraLead  int
	ExtraTrail int
	LastZ      int
}

// ZBlockRange returns the z-block index range [d0, d1) intersecting the
// world z extent [z0, z1), clamped to the last logical block when LastZ is
// set.
func (g ChunkGrid) ZBlockRange(z0, z1 int) (int, int) {
	lo := z0 - g.Origin[0] - g.ExtraLead
	if lo < 0 {
		lo = 0
	}
	d0 := lo / g.Size[0]
	d1 := (z1 - g.Origin[0] - g.ExtraLead + g.Size[0] - 1) / g.Size[0]
	if g.LastZ >= 0 && d1 > g.LastZ+1 {
		d1 = g.LastZ + 1
	}
	return d0, d1
}

// RowBlockRange returns the y-block index range [r0, r1) intersecting
// [y0, y1).
func (g ChunkGrid) RowBlockRange(y0, y1 int) (int, int) {
	lo := y0 - g.Origin[1]
	if lo < 0 {
		lo = 0
	}
	return lo / g.Size[1], (y1 - g.Origin[1] + g.Size[1] - 1) / g.Size[1]
}

// ColBlockRange returns the x-block index range [c0, c1) intersecting
// [x0, x1).
func (g ChunkGrid) ColBlockRange(x0, x1 int) (int, int) {
	lo := x0 - g.Origin[2]
	if lo < 0 {
		lo = 0
	}
	return lo / g.Size[2], (x1 - g.Origin[2] + g.Size[2] - 1) / g.Size[2]
}

// ZExtent returns the world z footprint [z0, z1) of z-block zid with the
// halo rules applied.
func (g ChunkGrid) ZExtent(zid int) (int, int) {
	z0 := zid*g.Size[0] + g.Origin[0]
	if zid != 0 {
		z0 += g.ExtraLead
	}
	z1 := (zid+1)*g.Size[0] + g.Origin[0] + g.ExtraLead
	if zid == g.LastZ {
		z1 += g.ExtraTrail
	}
	return z0, z1
}

// YExtent returns the world y footprint [y0, y1) of y-block yid.
func (g ChunkGrid) YExtent(yid int) (int, int) {
	y0 := yid*g.Size[1] + g.Origin[1]
	return y0, y0 + g.Size[1]
}

// XExtent returns the world x footprint [x0, x1) of x-block xid.
func (g ChunkGrid) XExtent(xid int) (int, int) {
	x0 := xid*g.Size[2] + g.Origin[2]
	return x0, x0 + g.Size[2]
}

// MaxSlabDepth returns the largest z footprint any single block can have,
// which sizes the rolling buffer for streamed per-slice output.
func (g ChunkGrid) MaxSlabDepth() int {
	extra := g.ExtraLead
	if g.ExtraTrail > extra {
		extra = g.ExtraTrail
	}
	return g.Size[0] + extra
}

// Intersect clamps [b0, b1) to [a0, a1) and reports whether the overlap is
// non-empty.
func Intersect(a0, a1, b0, b1 int) (int, int, bool) {
	lo, hi := b0, b1
	if a0 > lo {
		lo = a0
	}
	if a1 < hi {
		hi = a1
	}
	return lo, hi, lo < hi
}
