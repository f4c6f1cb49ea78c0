package volume

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RelabelTable maps raw voxel values to a new id space. The table is
// addressed by raw value, so it must be at least max(raw)+1 long; a raw
// value past the end of the table is a usage error, never a silent zero.
type RelabelTable []uint32

// LoadRelabelTable reads a relabel table from a plain text file of
// whitespace-separated integers, one new id per raw value in raw-value
// order.
func LoadRelabelTable(path string) (RelabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relabel table: %w", err)
	}
	defer f.Close()

	var table RelabelTable
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			v, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse relabel table %s: %w", path, err)
			}
			table = append(table, uint32(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read relabel table %s: %w", path, err)
	}
	return table, nil
}

// Apply remaps every voxel of v through the table in place.
func (t RelabelTable) Apply(v *Volume) error {
	for i, val := range v.Data {
		if int(val) >= len(t) {
			return fmt.Errorf("relabel table too short: raw value %d, table length %d", val, len(t))
		}
		v.Data[i] = t[val]
	}
	return nil
}

// BinaryFor derives a mask table from t: raw values mapping to id become 1,
// everything else 0. Used to cut a single instance out of a multi-instance
// label volume in one relabel pass.
func (t RelabelTable) BinaryFor(id uint32) RelabelTable {
	out := make(RelabelTable, len(t))
	for i, v := range t {
		if v == id {
			out[i] = 1
		}
	}
	return out
}

// ApplyMask zeroes every voxel of v whose corresponding mask voxel is zero,
// over nz slices starting at vz0 in the volume and mz0 in the mask. Shapes
// must match exactly on the y/x axes; mismatches are usage errors, never
// broadcast.
func ApplyMask(v *Volume, vz0 int, mask *Volume, mz0, nz int) error {
	if v.Height != mask.Height || v.Width != mask.Width {
		return fmt.Errorf("mask shape %dx%d does not match volume %dx%d",
			mask.Height, mask.Width, v.Height, v.Width)
	}
	if vz0+nz > v.Depth || mz0+nz > mask.Depth {
		return fmt.Errorf("mask z-range of %d slices at %d/%d exceeds depth", nz, vz0, mz0)
	}
	n := v.Height * v.Width
	for c := 0; c < v.Channels; c++ {
		for z := 0; z < nz; z++ {
			base := v.Index(c, vz0+z, 0, 0)
			mbase := mask.Index(0, mz0+z, 0, 0)
			for i := 0; i < n; i++ {
				if mask.Data[mbase+i] == 0 {
					v.Data[base+i] = 0
				}
			}
		}
	}
	return nil
}
