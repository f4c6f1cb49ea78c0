package assemble

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/scigolib/hdf5"

	"voltile/pkg/grid"
	"voltile/pkg/volume"
)

// Channel selector values for 4-axis chunk datasets.
const (
	// ChannelNone marks a 3-axis dataset with no channel axis.
	ChannelNone = -1

	// ChannelAll keeps every channel of a 4-axis dataset, producing a
	// multi-channel result. Only memory and container output can hold it.
	ChannelAll = -2
)

// ChunkTransform rewrites one chunk block in place before compositing, e.g.
// thresholding a probability map into a mask. The block's coordinates are
// given by its grid indices.
type ChunkTransform func(block *volume.Volume, zid, yid, xid int) error

// ChunkedParams configures one chunked assembly request. All coordinates,
// including the grid geometry, are in output space: when Stride or ZStep
// subsample the stored data, a coordinate c addresses stored element c*step.
type ChunkedParams struct {
	// ChunkPath returns the container file for the block at the given
	// grid indices.
	ChunkPath func(zid, yid, xid int) string

	// Dataset names the dataset inside each chunk container; empty means
	// the first dataset found.
	Dataset string

	// Region is the requested output-space box.
	Region Region

	// Grid is the chunk layout, including any z halo extents.
	Grid grid.ChunkGrid

	// Channel selects the channel of 4-axis chunks: a non-negative index,
	// ChannelAll, or ChannelNone for 3-axis chunks. The library exposes
	// dataset shape only as free text, so the caller declares the rank.
	Channel int

	// NumChannels is the channel-axis length, required for ChannelAll.
	NumChannels int

	// ZStep subsamples the stored z axis; zero means 1.
	ZStep int

	// Stride subsamples the stored y/x axes; zero values mean 1.
	Stride [2]int

	// AccumulateIDs offsets each block's foreground labels by the running
	// maximum over all previously composited blocks, so per-chunk local
	// ids stay distinct in the assembled result.
	AccumulateIDs bool

	// Mask, when non-nil, zeroes voxels whose mask voxel is background.
	// The mask covers the full region in output space, one channel.
	Mask *volume.Volume

	// Transform, when non-nil, runs on every block before compositing.
	Transform ChunkTransform

	// Output selects the destination sink.
	Output Output

	// Logger receives per-chunk progress; nil uses the package default.
	Logger *log.Logger
}

// ChunkedAssembler assembles an output-space region from per-block HDF5
// chunk files on a uniform 3D grid.
type ChunkedAssembler struct {
	params *ChunkedParams
	logger *log.Logger
}

// NewChunkedAssembler creates an assembler for one request.
func NewChunkedAssembler(params *ChunkedParams) *ChunkedAssembler {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &ChunkedAssembler{params: params, logger: logger}
}

// Assemble reads every chunk intersecting the region, composites the blocks
// z-layer by z-layer and writes the result to the configured sink.
func (a *ChunkedAssembler) Assemble() (*Result, error) {
	p := a.params
	if err := p.Region.valid(); err != nil {
		return nil, err
	}
	if p.ChunkPath == nil {
		return nil, errors.New("chunk path resolver is required")
	}
	outChannels := 1
	if p.Channel == ChannelAll {
		if p.NumChannels < 1 {
			return nil, errors.New("channel count is required when keeping all channels")
		}
		outChannels = p.NumChannels
	}
	if outChannels > 1 && p.Output.Mode == OutputSlices {
		return nil, errors.New("per-slice output cannot hold a multi-channel result")
	}
	if p.Mask != nil && (p.Mask.Height != p.Region.Height() || p.Mask.Width != p.Region.Width()) {
		return nil, fmt.Errorf("mask shape %dx%d does not match region %dx%d",
			p.Mask.Height, p.Mask.Width, p.Region.Height(), p.Region.Width())
	}

	region := p.Region
	depth, height, width := region.Depth(), region.Height(), region.Width()

	var dest *volume.Volume
	var slab *volume.Volume
	var sliceSink *SliceSink
	if p.Output.Mode == OutputSlices {
		slab = volume.New(p.Grid.MaxSlabDepth(), height, width)
		sliceSink = NewSliceSink(p.Output, region.Z0, 1)
	} else {
		dest = volume.NewWithChannels(outChannels, depth, height, width)
	}

	d0, d1 := p.Grid.ZBlockRange(region.Z0, region.Z1)
	r0, r1 := p.Grid.RowBlockRange(region.Y0, region.Y1)
	c0, c1 := p.Grid.ColBlockRange(region.X0, region.X1)

	var acc uint32
	for zid := d0; zid < d1; zid++ {
		z0b, z1b := p.Grid.ZExtent(zid)
		z0a, z1a, zok := grid.Intersect(region.Z0, region.Z1, z0b, z1b)
		if !zok {
			continue
		}
		nz := z1a - z0a

		// Per-slice output composites one z-layer at a time into a
		// rolling buffer; halos never cross layer boundaries, so each
		// layer is complete when its blocks are done.
		var layer *volume.Volume
		if slab != nil {
			layer = &volume.Volume{
				Channels: 1, Depth: nz, Height: height, Width: width,
				Data: slab.Data[:nz*height*width],
			}
			layer.Zero()
		}

		for yid := r0; yid < r1; yid++ {
			y0b, y1b := p.Grid.YExtent(yid)
			y0a, y1a, yok := grid.Intersect(region.Y0, region.Y1, y0b, y1b)
			if !yok {
				continue
			}
			for xid := c0; xid < c1; xid++ {
				x0b, x1b := p.Grid.XExtent(xid)
				x0a, x1a, xok := grid.Intersect(region.X0, region.X1, x0b, x1b)
				if !xok {
					continue
				}
				block, err := a.loadBlock(zid, yid, xid,
					z0a-z0b, y0a-y0b, x0a-x0b, nz, y1a-y0a, x1a-x0a, outChannels)
				if err != nil {
					return nil, err
				}
				if block == nil {
					continue
				}
				if p.AccumulateIDs {
					acc = accumulateIDs(block, acc)
				}
				var copyErr error
				if layer != nil {
					copyErr = volume.CopyWindow(layer, block,
						0, y0a-region.Y0, x0a-region.X0,
						0, 0, 0, nz, y1a-y0a, x1a-x0a)
				} else {
					copyErr = volume.CopyWindow(dest, block,
						z0a-region.Z0, y0a-region.Y0, x0a-region.X0,
						0, 0, 0, nz, y1a-y0a, x1a-x0a)
				}
				if copyErr != nil {
					return nil, copyErr
				}
			}
		}

		if p.Mask != nil {
			target, vz0 := dest, z0a-region.Z0
			if layer != nil {
				target, vz0 = layer, 0
			}
			if err := volume.ApplyMask(target, vz0, p.Mask, z0a-region.Z0, nz); err != nil {
				return nil, err
			}
		}
		if layer != nil {
			if err := sliceSink.WriteSlab(z0a-region.Z0, layer); err != nil {
				return nil, err
			}
		}
	}

	switch p.Output.Mode {
	case OutputMemory:
		return &Result{Volume: dest}, nil

	case OutputHDF5:
		cz := minInt(p.Grid.Size[0], depth)
		cr, cc := chunkShape2D(p.Output.chunkVoxels()/maxInt(cz, 1), height, width)
		sink := NewHDF5Sink(p.Output, outChannels, depth, height, width, [3]int{cz, cr, cc})
		if err := sink.WriteSlab(0, dest); err != nil {
			return nil, err
		}
		if err := sink.Finalize(); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case OutputSlices:
		return &Result{}, sliceSink.Finalize()

	default:
		return nil, fmt.Errorf("unknown output mode %d", p.Output.Mode)
	}
}

// loadBlock reads the requested sub-block of one chunk and applies the
// per-block transform. Coordinates are output-space offsets within the
// block's footprint. A missing chunk file yields (nil, nil) and its
// footprint keeps the fill value.
func (a *ChunkedAssembler) loadBlock(zid, yid, xid, lz, ly, lx, nz, ny, nx, outChannels int) (*volume.Volume, error) {
	p := a.params
	path := p.ChunkPath(zid, yid, xid)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Debug("missing chunk", "path", path)
			return nil, nil
		}
		return nil, err
	}

	block, err := readChunkBlock(path, p.Dataset, chunkSelection(p, lz, ly, lx, nz, ny, nx), outChannels, nz, ny, nx)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", path, err)
	}
	if p.Transform != nil {
		if err := p.Transform(block, zid, yid, xid); err != nil {
			return nil, fmt.Errorf("transform chunk %s: %w", path, err)
		}
	}
	return block, nil
}

// chunkSelection maps output-space block-local coordinates onto the stored
// array: element c of a strided axis lives at stored index c*step.
func chunkSelection(p *ChunkedParams, lz, ly, lx, nz, ny, nx int) *hdf5.HyperslabSelection {
	zstep := maxInt(p.ZStep, 1)
	sy := maxInt(p.Stride[0], 1)
	sx := maxInt(p.Stride[1], 1)
	sel := &hdf5.HyperslabSelection{
		Start:  []uint64{uint64(lz * zstep), uint64(ly * sy), uint64(lx * sx)},
		Count:  []uint64{uint64(nz), uint64(ny), uint64(nx)},
		Stride: []uint64{uint64(zstep), uint64(sy), uint64(sx)},
	}
	switch {
	case p.Channel >= 0:
		sel.Start = append([]uint64{uint64(p.Channel)}, sel.Start...)
		sel.Count = append([]uint64{1}, sel.Count...)
		sel.Stride = append([]uint64{1}, sel.Stride...)
	case p.Channel == ChannelAll:
		sel.Start = append([]uint64{0}, sel.Start...)
		sel.Count = append([]uint64{uint64(p.NumChannels)}, sel.Count...)
		sel.Stride = append([]uint64{1}, sel.Stride...)
	}
	return sel
}

// readChunkBlock opens a chunk container, locates the dataset and reads the
// selected sub-block into a volume.
func readChunkBlock(path, dataset string, sel *hdf5.HyperslabSelection, channels, nz, ny, nx int) (*volume.Volume, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ds *hdf5.Dataset
	f.Walk(func(_ string, obj hdf5.Object) {
		d, ok := obj.(*hdf5.Dataset)
		if !ok || ds != nil {
			return
		}
		if dataset == "" || d.Name() == dataset {
			ds = d
		}
	})
	if ds == nil {
		return nil, fmt.Errorf("dataset %q not found", dataset)
	}

	raw, err := ds.ReadHyperslab(sel)
	if err != nil {
		return nil, err
	}
	data, err := toUint32(raw)
	if err != nil {
		return nil, err
	}
	block := &volume.Volume{Channels: channels, Depth: nz, Height: ny, Width: nx, Data: data}
	if want := channels * nz * ny * nx; len(data) != want {
		return nil, fmt.Errorf("selection returned %d elements, expected %d", len(data), want)
	}
	return block, nil
}

// toUint32 widens a native dataset slice to the in-memory voxel type.
func toUint32(raw interface{}) ([]uint32, error) {
	switch v := raw.(type) {
	case []uint32:
		return v, nil
	case []uint8:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []uint16:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []uint64:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []int8:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []int16:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []int32:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []int64:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []float32:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	case []float64:
		out := make([]uint32, len(v))
		for i, e := range v {
			out[i] = uint32(e)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dataset element type %T", raw)
	}
}

// accumulateIDs offsets the block's foreground labels by acc and returns the
// new running maximum. Background stays zero.
func accumulateIDs(block *volume.Volume, acc uint32) uint32 {
	localMax := block.Max()
	if acc > 0 {
		for i, v := range block.Data {
			if v > 0 {
				block.Data[i] = v + acc
			}
		}
	}
	return acc + localMax
}
