package assemble

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltile/pkg/grid"
	"voltile/pkg/imageio"
	"voltile/pkg/volume"
)

// writeChunk writes one chunk container holding a uint32 dataset named
// "main" with the given dims and data.
func writeChunk(t *testing.T, path string, dims []uint64, data []uint32) {
	t.Helper()
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	require.NoError(t, err)
	ds, err := fw.CreateDataset("/main", hdf5.Uint32, dims)
	require.NoError(t, err)
	require.NoError(t, ds.Write(data))
	require.NoError(t, fw.Close())
}

// rampChunk builds a z*y*x block whose voxel values are base plus the linear
// index, so misplaced reads show up as wrong values rather than zeros.
func rampChunk(z, y, x int, base uint32) []uint32 {
	data := make([]uint32, z*y*x)
	for i := range data {
		data[i] = base + uint32(i)
	}
	return data
}

// chunkPathFunc resolves blocks inside dir as z_y_x.h5.
func chunkPathFunc(dir string) func(zid, yid, xid int) string {
	return func(zid, yid, xid int) string {
		return filepath.Join(dir, fmt.Sprintf("%d_%d_%d.h5", zid, yid, xid))
	}
}

func TestChunkedAssembleSingleBlock(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{2, 3, 4}, rampChunk(2, 3, 4, 1))

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 2, Y0: 0, Y1: 3, X0: 0, X1: 4},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 3, 4}, LastZ: -1},
		Channel:   ChannelNone,
	})
	res, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, rampChunk(2, 3, 4, 1), res.Volume.Data)
}

func TestChunkedAssembleSubRegion(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{2, 4, 4}, rampChunk(2, 4, 4, 0))

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 1, Z1: 2, Y0: 1, Y1: 3, X0: 2, X1: 4},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 4, 4}, LastZ: -1},
		Channel:   ChannelNone,
	})
	res, err := a.Assemble()
	require.NoError(t, err)

	v := res.Volume
	require.Equal(t, 1, v.Depth)
	require.Equal(t, 2, v.Height)
	require.Equal(t, 2, v.Width)
	// Stored value at (z, y, x) is z*16 + y*4 + x.
	assert.Equal(t, uint32(16+4+2), v.At(0, 0, 0))
	assert.Equal(t, uint32(16+8+3), v.At(0, 1, 1))
}

func TestChunkedAssembleMultiBlock(t *testing.T) {
	dir := t.TempDir()
	// Two blocks along x with distinct value ranges.
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{1, 2, 2}, rampChunk(1, 2, 2, 10))
	writeChunk(t, filepath.Join(dir, "0_0_1.h5"), []uint64{1, 2, 2}, rampChunk(1, 2, 2, 50))

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 1, Y0: 0, Y1: 2, X0: 0, X1: 4},
		Grid:      grid.ChunkGrid{Size: [3]int{1, 2, 2}, LastZ: -1},
		Channel:   ChannelNone,
	})
	res, err := a.Assemble()
	require.NoError(t, err)

	v := res.Volume
	assert.Equal(t, uint32(10), v.At(0, 0, 0))
	assert.Equal(t, uint32(50), v.At(0, 0, 2))
	assert.Equal(t, uint32(53), v.At(0, 1, 3))
}

func TestChunkedAssembleMissingBlock(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{1, 2, 2}, rampChunk(1, 2, 2, 10))
	// Block (0,0,1) is never written.

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 1, Y0: 0, Y1: 2, X0: 0, X1: 4},
		Grid:      grid.ChunkGrid{Size: [3]int{1, 2, 2}, LastZ: -1},
		Channel:   ChannelNone,
	})
	res, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), res.Volume.At(0, 0, 0))
	assert.Equal(t, uint32(0), res.Volume.At(0, 0, 2))
	assert.Equal(t, uint32(0), res.Volume.At(0, 1, 3))
}

func TestChunkedAssembleStride(t *testing.T) {
	dir := t.TempDir()
	// Stored at full resolution; the request addresses every 2nd element.
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{4, 4, 4}, rampChunk(4, 4, 4, 0))

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 2, Y0: 0, Y1: 2, X0: 0, X1: 2},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 2, 2}, LastZ: -1},
		Channel:   ChannelNone,
		ZStep:     2,
		Stride:    [2]int{2, 2},
	})
	res, err := a.Assemble()
	require.NoError(t, err)

	// Output (z, y, x) maps to stored (2z, 2y, 2x) = 32z + 8y + 2x.
	v := res.Volume
	assert.Equal(t, uint32(0), v.At(0, 0, 0))
	assert.Equal(t, uint32(2), v.At(0, 0, 1))
	assert.Equal(t, uint32(8), v.At(0, 1, 0))
	assert.Equal(t, uint32(32), v.At(1, 0, 0))
	assert.Equal(t, uint32(42), v.At(1, 1, 1))
}

func TestChunkedAssembleChannelSelect(t *testing.T) {
	dir := t.TempDir()
	// A 2-channel 4D block: channel 0 holds 100+i, channel 1 holds 200+i.
	data := append(rampChunk(1, 2, 2, 100), rampChunk(1, 2, 2, 200)...)
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{2, 1, 2, 2}, data)

	params := &ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 1, Y0: 0, Y1: 2, X0: 0, X1: 2},
		Grid:      grid.ChunkGrid{Size: [3]int{1, 2, 2}, LastZ: -1},
		Channel:   1,
	}
	res, err := NewChunkedAssembler(params).Assemble()
	require.NoError(t, err)
	assert.Equal(t, rampChunk(1, 2, 2, 200), res.Volume.Data)

	params.Channel = ChannelAll
	params.NumChannels = 2
	res, err = NewChunkedAssembler(params).Assemble()
	require.NoError(t, err)
	require.Equal(t, 2, res.Volume.Channels)
	assert.Equal(t, data, res.Volume.Data)
}

func TestChunkedAssembleAccumulateIDs(t *testing.T) {
	dir := t.TempDir()
	// Two blocks with overlapping local label spaces {1, 2}.
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{1, 1, 2}, []uint32{1, 2})
	writeChunk(t, filepath.Join(dir, "0_0_1.h5"), []uint64{1, 1, 2}, []uint32{1, 2})

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath:     chunkPathFunc(dir),
		Region:        Region{Z0: 0, Z1: 1, Y0: 0, Y1: 1, X0: 0, X1: 4},
		Grid:          grid.ChunkGrid{Size: [3]int{1, 1, 2}, LastZ: -1},
		Channel:       ChannelNone,
		AccumulateIDs: true,
	})
	res, err := a.Assemble()
	require.NoError(t, err)

	// The second block's labels are offset past the first block's maximum,
	// so all four stay distinct.
	assert.Equal(t, []uint32{1, 2, 3, 4}, res.Volume.Data)
}

func TestChunkedAssembleMask(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{1, 2, 2}, rampChunk(1, 2, 2, 10))

	mask := volume.New(1, 2, 2)
	mask.Set(0, 0, 1, 1)
	mask.Set(0, 1, 0, 1)

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 1, Y0: 0, Y1: 2, X0: 0, X1: 2},
		Grid:      grid.ChunkGrid{Size: [3]int{1, 2, 2}, LastZ: -1},
		Channel:   ChannelNone,
		Mask:      mask,
	})
	res, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 11, 12, 0}, res.Volume.Data)
}

func TestChunkedAssembleTransform(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{1, 1, 3}, []uint32{10, 120, 240})

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 1, Y0: 0, Y1: 1, X0: 0, X1: 3},
		Grid:      grid.ChunkGrid{Size: [3]int{1, 1, 3}, LastZ: -1},
		Channel:   ChannelNone,
		Transform: func(block *volume.Volume, zid, yid, xid int) error {
			for i, v := range block.Data {
				if v >= 100 {
					block.Data[i] = 1
				} else {
					block.Data[i] = 0
				}
			}
			return nil
		},
	})
	res, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 1}, res.Volume.Data)
}

func TestChunkedAssembleHalo(t *testing.T) {
	dir := t.TempDir()
	// Two z blocks of nominal depth 2 with a 1-slice leading halo: block 0
	// covers z [0,3), block 1 covers z [3,5).
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{3, 1, 1}, []uint32{1, 2, 3})
	writeChunk(t, filepath.Join(dir, "1_0_0.h5"), []uint64{2, 1, 1}, []uint32{4, 5})

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 5, Y0: 0, Y1: 1, X0: 0, X1: 1},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 1, 1}, ExtraLead: 1, LastZ: 1},
		Channel:   ChannelNone,
	})
	res, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, res.Volume.Data)
}

func TestChunkedAssembleSliceOutput(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{2, 1, 1}, []uint32{7, 8})

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 2, Y0: 0, Y1: 1, X0: 0, X1: 1},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 1, 1}, LastZ: -1},
		Channel:   ChannelNone,
		Output: Output{
			Mode: OutputSlices,
			Path: filepath.Join(dir, "out", "z{z}.png"),
		},
	})
	_, err := a.Assemble()
	require.NoError(t, err)

	for z, want := range []uint32{7, 8} {
		slice, err := imageio.ReadTile(filepath.Join(dir, "out", fmt.Sprintf("z%d.png", z)),
			imageio.KindImage, 1, 1, imageio.InterpNearest)
		require.NoError(t, err)
		assert.Equal(t, want, slice.At(0, 0, 0))
	}
}

func TestChunkedAssembleHDF5RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, filepath.Join(dir, "0_0_0.h5"), []uint64{2, 2, 2}, rampChunk(2, 2, 2, 1))
	out := filepath.Join(dir, "out.h5")

	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath: chunkPathFunc(dir),
		Region:    Region{Z0: 0, Z1: 2, Y0: 0, Y1: 2, X0: 0, X1: 2},
		Grid:      grid.ChunkGrid{Size: [3]int{2, 2, 2}, LastZ: -1},
		Channel:   ChannelNone,
		Output:    Output{Mode: OutputHDF5, Path: out, DType: DTypeUint32},
	})
	_, err := a.Assemble()
	require.NoError(t, err)

	sel := chunkSelection(&ChunkedParams{Channel: ChannelNone}, 0, 0, 0, 2, 2, 2)
	block, err := readChunkBlock(out, "main", sel, 1, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, rampChunk(2, 2, 2, 1), block.Data)
}

func TestChunkedAssembleRejectsMultiChannelSlices(t *testing.T) {
	a := NewChunkedAssembler(&ChunkedParams{
		ChunkPath:   chunkPathFunc(t.TempDir()),
		Region:      Region{Z0: 0, Z1: 1, Y0: 0, Y1: 1, X0: 0, X1: 1},
		Grid:        grid.ChunkGrid{Size: [3]int{1, 1, 1}, LastZ: -1},
		Channel:     ChannelAll,
		NumChannels: 2,
		Output:      Output{Mode: OutputSlices, Path: "z{z}.png"},
	})
	_, err := a.Assemble()
	assert.Error(t, err)
}
