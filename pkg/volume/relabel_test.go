package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRelabelTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relabel.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 5 5\n2\n"), 0644))

	table, err := LoadRelabelTable(path)
	require.NoError(t, err)
	assert.Equal(t, RelabelTable{0, 5, 5, 2}, table)
}

func TestLoadRelabelTableErrors(t *testing.T) {
	_, err := LoadRelabelTable(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 x\n"), 0644))
	_, err = LoadRelabelTable(path)
	assert.Error(t, err)
}

func TestRelabelApply(t *testing.T) {
	table := RelabelTable{0, 10, 10, 30}
	v := New(1, 2, 2)
	copy(v.Data, []uint32{0, 1, 2, 3})

	require.NoError(t, table.Apply(v))
	assert.Equal(t, []uint32{0, 10, 10, 30}, v.Data)
}

func TestRelabelApplyOutOfRange(t *testing.T) {
	table := RelabelTable{0, 1}
	v := New(1, 1, 1)
	v.Set(0, 0, 0, 5)
	assert.Error(t, table.Apply(v))
}

func TestBinaryFor(t *testing.T) {
	table := RelabelTable{0, 7, 3, 7, 0}
	bin := table.BinaryFor(7)
	assert.Equal(t, RelabelTable{0, 1, 0, 1, 0}, bin)
	// The source table is untouched.
	assert.Equal(t, RelabelTable{0, 7, 3, 7, 0}, table)
}

func TestApplyMask(t *testing.T) {
	v := New(2, 2, 2)
	for i := range v.Data {
		v.Data[i] = uint32(i + 1)
	}
	mask := New(2, 2, 2)
	mask.Set(0, 0, 0, 1)
	mask.Set(1, 1, 1, 1)

	require.NoError(t, ApplyMask(v, 0, mask, 0, 2))
	assert.Equal(t, []uint32{1, 0, 0, 0, 0, 0, 0, 8}, v.Data)
}

func TestApplyMaskOffsets(t *testing.T) {
	// A 1-deep slab masked against slice 1 of a 2-deep request mask.
	v := New(1, 1, 2)
	v.Set(0, 0, 0, 5)
	v.Set(0, 0, 1, 6)

	mask := New(2, 1, 2)
	mask.Set(1, 0, 1, 1)

	require.NoError(t, ApplyMask(v, 0, mask, 1, 1))
	assert.Equal(t, uint32(0), v.At(0, 0, 0))
	assert.Equal(t, uint32(6), v.At(0, 0, 1))
}

func TestApplyMaskErrors(t *testing.T) {
	assert.Error(t, ApplyMask(New(1, 2, 2), 0, New(1, 2, 3), 0, 1))
	assert.Error(t, ApplyMask(New(1, 2, 2), 0, New(1, 2, 2), 0, 2))
}
