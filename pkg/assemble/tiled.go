package assemble

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/charmbracelet/log"

	"voltile/pkg/grid"
	"voltile/pkg/imageio"
	"voltile/pkg/volume"
)

// Region is a world-coordinate request [Z0,Z1) x [Y0,Y1) x [X0,X1).
type Region struct {
	Z0, Z1, Y0, Y1, X0, X1 int
}

// Depth, Height and Width are the region extents.
func (r Region) Depth() int  { return r.Z1 - r.Z0 }
func (r Region) Height() int { return r.Y1 - r.Y0 }
func (r Region) Width() int  { return r.X1 - r.X0 }

func (r Region) valid() error {
	if r.Z1 <= r.Z0 || r.Y1 <= r.Y0 || r.X1 <= r.X0 {
		return fmt.Errorf("degenerate region %+v", r)
	}
	return nil
}

// TiledParams configures one tiled assembly request.
type TiledParams struct {
	// Patterns holds one tile filename pattern per z slice, indexed by
	// absolute z. Row/column indices are substituted per tile.
	Patterns []string

	// Region is the requested world-coordinate box. It may extend past
	// the declared volume size; the out-of-range extents become padding.
	Region Region

	// TileSize is the tile footprint in pixels (rows, cols), in the same
	// coordinate space as Region (i.e. after any resampling ratio).
	TileSize [2]int

	// TileStart offsets the row/column indices used in tile names, for
	// naming schemes that count tiles from 1.
	TileStart [2]int

	// VolumeSize, when non-nil, declares the whole volume extent (z, y,
	// x) and enables automatic edge padding for out-of-range requests.
	VolumeSize []int

	// Ratio resamples every tile at read time by (row, col); zero values
	// mean 1 (no resampling).
	Ratio [2]float64

	// Interp is the resampling filter for intensity tiles; segmentation
	// tiles always use nearest-neighbor.
	Interp imageio.Interp

	// Kind selects the tile pixel encoding.
	Kind imageio.Kind

	// ZStep subsamples the z range; zero means 1.
	ZStep int

	// Relabel, when non-nil, remaps every tile pixel before compositing.
	// A single relabel pass is how a raw multi-instance label volume
	// becomes a binary or class-specific mask.
	Relabel volume.RelabelTable

	// RepairBlank replaces blank z-slices with their nearest non-blank
	// neighbor after assembly.
	RepairBlank bool

	// Border fills out-of-range margins for in-memory output.
	Border volume.BorderMode

	// Output selects the destination sink.
	Output Output

	// Logger receives per-tile progress; nil uses the package default.
	Logger *log.Logger
}

// Result is the outcome of one assembly request.
type Result struct {
	// Volume is the assembled region for OutputMemory, nil otherwise.
	Volume *volume.Volume

	// AllBackground is set when blank-slice repair found no foreground
	// anywhere. Downstream consumers must be able to tell a genuinely
	// empty region apart from a mis-targeted assembly.
	AllBackground bool
}

// TiledAssembler assembles a world-coordinate region from per-z flat 2D
// tile images on a uniform row/column grid.
type TiledAssembler struct {
	params *TiledParams
	logger *log.Logger
}

// NewTiledAssembler creates an assembler for one request.
func NewTiledAssembler(params *TiledParams) *TiledAssembler {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &TiledAssembler{params: params, logger: logger}
}

// Assemble resolves, reads and stitches every intersecting tile, repairs
// blank slices, applies boundary padding and writes the result to the
// configured sink.
func (a *TiledAssembler) Assemble() (*Result, error) {
	p := a.params
	if err := p.Region.valid(); err != nil {
		return nil, err
	}
	zstep := p.ZStep
	if zstep < 1 {
		zstep = 1
	}
	ratioR, ratioC := p.Ratio[0], p.Ratio[1]
	if ratioR == 0 {
		ratioR = 1
	}
	if ratioC == 0 {
		ratioC = 1
	}

	// Out-of-range extents are tracked as pad amounts, never read.
	region := p.Region
	var padLo, padHi [3]int
	if p.VolumeSize != nil {
		if len(p.VolumeSize) != 3 {
			return nil, fmt.Errorf("volume size must have 3 extents, got %d", len(p.VolumeSize))
		}
		padLo = [3]int{maxInt(-region.Z0, 0), maxInt(-region.Y0, 0), maxInt(-region.X0, 0)}
		padHi = [3]int{
			maxInt(region.Z1-p.VolumeSize[0], 0),
			maxInt(region.Y1-p.VolumeSize[1], 0),
			maxInt(region.X1-p.VolumeSize[2], 0),
		}
		region.Z0, region.Y0, region.X0 = maxInt(region.Z0, 0), maxInt(region.Y0, 0), maxInt(region.X0, 0)
		region.Z1 = minInt(region.Z1, p.VolumeSize[0])
		region.Y1 = minInt(region.Y1, p.VolumeSize[1])
		region.X1 = minInt(region.X1, p.VolumeSize[2])
	}

	depth := (region.Depth() + zstep - 1) / zstep
	height, width := region.Height(), region.Width()
	vol := volume.New(depth, height, width)

	g := grid.Grid{
		TileRows: p.TileSize[0], TileCols: p.TileSize[1],
		StartRow: p.TileStart[0], StartCol: p.TileStart[1],
	}
	r0, r1 := g.RowRange(region.Y0, region.Y1)
	c0, c1 := g.ColRange(region.X0, region.X1)
	zEnd := minInt(region.Z1, len(p.Patterns))

	for i, z := 0, region.Z0; z < zEnd; z, i = z+zstep, i+1 {
		for row := r0; row < r1; row++ {
			for col := c0; col < c1; col++ {
				if err := a.compositeTile(vol, g, p.Patterns[z], region, row, col, i, ratioR, ratioC); err != nil {
					return nil, err
				}
			}
		}
	}

	allBackground := false
	if p.RepairBlank {
		allBackground = volume.RepairBlankSlices(vol)
		if allBackground {
			a.logger.Warn("assembled volume is entirely background", "region", fmt.Sprintf("%+v", p.Region))
		}
	}

	switch p.Output.Mode {
	case OutputMemory:
		if padLo != [3]int{} || padHi != [3]int{} {
			padded, err := volume.Pad(vol, padLo, padHi, p.Border)
			if err != nil {
				return nil, err
			}
			vol = padded
		}
		return &Result{Volume: vol, AllBackground: allBackground}, nil

	case OutputHDF5:
		cr, cc := chunkShape2D(p.Output.chunkVoxels(), height, width)
		cr = minInt(cr, p.TileSize[0])
		cc = minInt(cc, p.TileSize[1])
		sink := NewHDF5Sink(p.Output, 1, depth, height, width, [3]int{1, cr, cc})
		if err := streamSlices(sink, vol); err != nil {
			return nil, err
		}
		if err := sink.Finalize(); err != nil {
			return nil, err
		}
		return &Result{AllBackground: allBackground}, nil

	case OutputSlices:
		sink := NewSliceSink(p.Output, region.Z0, zstep)
		if err := streamSlices(sink, vol); err != nil {
			return nil, err
		}
		if err := sink.Finalize(); err != nil {
			return nil, err
		}
		return &Result{AllBackground: allBackground}, nil

	default:
		return nil, fmt.Errorf("unknown output mode %d", p.Output.Mode)
	}
}

// compositeTile reads one tile and copies its intersection with the region
// into destination slice i. Missing tiles are logged and skipped; their
// footprint keeps the zero fill value.
func (a *TiledAssembler) compositeTile(vol *volume.Volume, g grid.Grid, pattern string, region Region, row, col, i int, ratioR, ratioC float64) error {
	p := a.params
	name := grid.TileName(pattern, row+g.StartRow, col+g.StartCol)
	patch, err := imageio.ReadTile(name, p.Kind, ratioR, ratioC, p.Interp)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("missing tile", "path", name)
			return nil
		}
		return err
	}
	if p.Relabel != nil {
		if err := p.Relabel.Apply(patch); err != nil {
			return err
		}
	}

	// The last tile of a row/column may fall short of the nominal size.
	yp0, yp1, xp0, xp1 := g.TileExtent(row, col)
	yp1 = minInt(yp1, yp0+patch.Height)
	xp1 = minInt(xp1, xp0+patch.Width)
	y0a, y1a, yok := grid.Intersect(region.Y0, region.Y1, yp0, yp1)
	x0a, x1a, xok := grid.Intersect(region.X0, region.X1, xp0, xp1)
	if !yok || !xok {
		return nil
	}
	return volume.CopyWindow(vol, patch,
		i, y0a-region.Y0, x0a-region.X0,
		0, y0a-yp0, x0a-xp0,
		1, y1a-y0a, x1a-x0a)
}

// streamSlices feeds a fully assembled volume to a sink slice by slice.
func streamSlices(sink Sink, vol *volume.Volume) error {
	slab := volume.NewWithChannels(vol.Channels, 1, vol.Height, vol.Width)
	for z := 0; z < vol.Depth; z++ {
		if err := volume.CopyWindow(slab, vol, 0, 0, 0, z, 0, 0, 1, vol.Height, vol.Width); err != nil {
			return err
		}
		if err := sink.WriteSlab(z, slab); err != nil {
			return err
		}
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
