// Package assemble reconstructs world-coordinate sub-volumes from the tiles
// or chunk files of a sharded image/segmentation stack. Two assemblers share
// the same resolver and sink machinery: TiledAssembler composites per-z flat
// tile images, ChunkedAssembler composites 3D/4D HDF5 chunk files.
package assemble

import (
	"fmt"

	"github.com/scigolib/hdf5"

	"voltile/pkg/grid"
	"voltile/pkg/imageio"
	"voltile/pkg/volume"
)

// OutputMode selects where an assembled region goes.
type OutputMode int

const (
	// OutputMemory keeps the assembled region as an in-memory volume.
	OutputMemory OutputMode = iota

	// OutputHDF5 writes one named, compressed, chunked dataset.
	OutputHDF5

	// OutputSlices writes one flat image file per absolute z index.
	OutputSlices
)

// DType is the on-disk element type for HDF5 output.
type DType int

const (
	DTypeUint8 DType = iota
	DTypeUint16
	DTypeUint32
	DTypeUint64
)

func (d DType) hdf5Type() hdf5.Datatype {
	switch d {
	case DTypeUint8:
		return hdf5.Uint8
	case DTypeUint16:
		return hdf5.Uint16
	case DTypeUint64:
		return hdf5.Uint64
	default:
		return hdf5.Uint32
	}
}

// Output configures the sink for one assembly request. The mode is explicit
// configuration; nothing is inferred from file extensions.
type Output struct {
	Mode OutputMode

	// Path is the container file for OutputHDF5 or the per-slice filename
	// pattern (absolute z substituted) for OutputSlices.
	Path string

	// Dataset names the HDF5 dataset, "main" when empty.
	Dataset string

	// DType is the HDF5 element type. Callers extracting 8-bit imagery
	// or binary masks set DTypeUint8; the zero value is uint8.
	DType DType

	// ChunkVoxels budgets the 2D footprint of one output chunk, 8192
	// when zero.
	ChunkVoxels int

	// Kind selects the per-slice image encoding for OutputSlices.
	Kind imageio.Kind
}

const defaultChunkVoxels = 8192

func (o Output) dataset() string {
	if o.Dataset == "" {
		return "main"
	}
	return o.Dataset
}

func (o Output) chunkVoxels() int {
	if o.ChunkVoxels <= 0 {
		return defaultChunkVoxels
	}
	return o.ChunkVoxels
}

// chunkShape2D splits a voxel budget into a row/column chunk footprint no
// larger than the slice itself.
func chunkShape2D(budget, height, width int) (int, int) {
	if budget < 1 {
		budget = 1
	}
	cc := width
	if cc > budget {
		cc = budget
	}
	cr := budget / cc
	if cr < 1 {
		cr = 1
	}
	if cr > height {
		cr = height
	}
	return cr, cc
}

// Sink receives an assembled region. A sink belongs to exactly one assembly
// request: created at the start, written region by region, finalized on
// every exit path. WriteSlab's z is the slab's offset from the start of the
// requested range.
type Sink interface {
	WriteSlab(z int, slab *volume.Volume) error
	Finalize() error
}

// MemorySink assembles into a dense in-memory volume.
type MemorySink struct {
	vol *volume.Volume
}

// NewMemorySink allocates the destination volume for one request.
func NewMemorySink(channels, depth, height, width int) *MemorySink {
	return &MemorySink{vol: volume.NewWithChannels(channels, depth, height, width)}
}

// WriteSlab copies the slab into the destination at z-offset z.
func (s *MemorySink) WriteSlab(z int, slab *volume.Volume) error {
	return volume.CopyWindow(s.vol, slab, z, 0, 0, 0, 0, 0, slab.Depth, slab.Height, slab.Width)
}

// Finalize is a no-op; the volume stays available through Volume.
func (s *MemorySink) Finalize() error { return nil }

// Volume returns the assembled destination.
func (s *MemorySink) Volume() *volume.Volume { return s.vol }

// HDF5Sink writes one named gzip-compressed chunked dataset. The underlying
// writer takes the dataset payload in a single call, so slabs accumulate in
// a request-sized buffer and the container is written and closed during
// Finalize; a failed request never leaves a half-written container behind.
type HDF5Sink struct {
	path    string
	dataset string
	dtype   DType
	chunk   []uint64
	buf     *volume.Volume
}

// NewHDF5Sink prepares a container sink for a request of the given shape.
// chunk is the dataset chunk shape in z/y/x order.
func NewHDF5Sink(out Output, channels, depth, height, width int, chunk [3]int) *HDF5Sink {
	chunkDims := []uint64{uint64(chunk[0]), uint64(chunk[1]), uint64(chunk[2])}
	if channels > 1 {
		chunkDims = append([]uint64{1}, chunkDims...)
	}
	return &HDF5Sink{
		path:    out.Path,
		dataset: out.dataset(),
		dtype:   out.DType,
		chunk:   chunkDims,
		buf:     volume.NewWithChannels(channels, depth, height, width),
	}
}

// WriteSlab buffers the slab at z-offset z.
func (s *HDF5Sink) WriteSlab(z int, slab *volume.Volume) error {
	return volume.CopyWindow(s.buf, slab, z, 0, 0, 0, 0, 0, slab.Depth, slab.Height, slab.Width)
}

// Finalize creates the container, writes the dataset and closes the file.
func (s *HDF5Sink) Finalize() (err error) {
	fw, err := hdf5.CreateForWrite(s.path, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("create container %s: %w", s.path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close container %s: %w", s.path, cerr)
		}
	}()

	dims := []uint64{uint64(s.buf.Depth), uint64(s.buf.Height), uint64(s.buf.Width)}
	if s.buf.Channels > 1 {
		dims = append([]uint64{uint64(s.buf.Channels)}, dims...)
	}
	ds, err := fw.CreateDataset("/"+s.dataset, s.dtype.hdf5Type(), dims,
		hdf5.WithChunkDims(s.chunk), hdf5.WithGZIPCompression(4))
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", s.dataset, err)
	}
	if err := ds.Write(convertVoxels(s.buf.Data, s.dtype)); err != nil {
		return fmt.Errorf("write dataset %s: %w", s.dataset, err)
	}
	return nil
}

func convertVoxels(data []uint32, dtype DType) interface{} {
	switch dtype {
	case DTypeUint8:
		out := make([]uint8, len(data))
		for i, v := range data {
			out[i] = uint8(v)
		}
		return out
	case DTypeUint16:
		out := make([]uint16, len(data))
		for i, v := range data {
			out[i] = uint16(v)
		}
		return out
	case DTypeUint64:
		out := make([]uint64, len(data))
		for i, v := range data {
			out[i] = uint64(v)
		}
		return out
	default:
		return data
	}
}

// SliceSink writes each completed z-slice as a flat image named by the
// pattern with the absolute z index substituted.
type SliceSink struct {
	pattern string
	kind    imageio.Kind
	zbase   int
	zstep   int
}

// NewSliceSink creates a per-slice image sink. zbase is the absolute z of
// slab offset 0 and zstep the world distance between successive output
// slices.
func NewSliceSink(out Output, zbase, zstep int) *SliceSink {
	if zstep < 1 {
		zstep = 1
	}
	return &SliceSink{pattern: out.Path, kind: out.Kind, zbase: zbase, zstep: zstep}
}

// WriteSlab emits one image per slice in the slab. Slices must be complete
// when written; the assemblers only hand over slabs whose chunks have all
// been composited.
func (s *SliceSink) WriteSlab(z int, slab *volume.Volume) error {
	for zi := 0; zi < slab.Depth; zi++ {
		name := grid.SliceName(s.pattern, s.zbase+(z+zi)*s.zstep)
		if err := imageio.WriteSlice(name, slab, zi, s.kind); err != nil {
			return err
		}
	}
	return nil
}

// Finalize is a no-op; slice files are flushed as they are written.
func (s *SliceSink) Finalize() error { return nil }
