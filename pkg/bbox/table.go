package bbox

import (
	"sort"
)

// Entry is one instance's bounding box with an optional foreground count
// (0 when counting was not requested).
type Entry struct {
	Box   Box
	Count int
}

// Table maps instance ids to their bounding boxes. Id 0 is background and
// never appears. Tables are plain values owned by the caller; the merge
// operations never retain references to their inputs.
type Table map[uint64]Entry

// IDs returns the instance ids in ascending order.
func (t Table) IDs() []uint64 {
	ids := make([]uint64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BoxesOfLabels computes a bounding-box table for an integer label map of
// rank 2 or 3. When ids is nil, every distinct positive id present in the
// map gets an entry; otherwise only the supplied candidates are considered.
// Ids with no foreground anywhere are dropped from the result.
//
// Rather than scanning the full map once per instance, the extraction works
// one axis at a time: for each axis-aligned slice that contains any
// foreground, the set of ids present in that slice tightens each id's
// running min/max along that axis only. Counts, when requested, come from a
// single global value-frequency pass.
func BoxesOfLabels(data []uint32, shape []int, ids []uint64, withCount bool) (Table, error) {
	if err := checkRank(shape); err != nil {
		return nil, err
	}
	if err := checkLen(data, shape); err != nil {
		return nil, err
	}

	candidates := make(map[uint64]bool)
	if ids != nil {
		for _, id := range ids {
			if id > 0 {
				candidates[id] = true
			}
		}
	} else {
		for _, v := range data {
			if v > 0 {
				candidates[uint64(v)] = true
			}
		}
	}
	if len(candidates) == 0 {
		return Table{}, nil
	}

	rank := len(shape)
	boxes := make(map[uint64]*Box, len(candidates))
	for id := range candidates {
		b := EmptyBox(rank)
		boxes[id] = &b
	}

	// tighten updates every candidate id present in one axis slice. The
	// slice is visited through an index walk so the same code serves all
	// axes of both ranks.
	tighten := func(axis, coord int, present map[uint64]bool) {
		for id := range present {
			if b, ok := boxes[id]; ok {
				b.IncludeAxis(axis, coord)
			}
		}
	}

	present := make(map[uint64]bool)
	if rank == 2 {
		h, w := shape[0], shape[1]
		for y := 0; y < h; y++ {
			clear(present)
			for _, v := range data[y*w : (y+1)*w] {
				if v > 0 {
					present[uint64(v)] = true
				}
			}
			if len(present) > 0 {
				tighten(0, y, present)
			}
		}
		for x := 0; x < w; x++ {
			clear(present)
			for y := 0; y < h; y++ {
				if v := data[y*w+x]; v > 0 {
					present[uint64(v)] = true
				}
			}
			if len(present) > 0 {
				tighten(1, x, present)
			}
		}
	} else {
		d, h, w := shape[0], shape[1], shape[2]
		plane := h * w
		for z := 0; z < d; z++ {
			clear(present)
			for _, v := range data[z*plane : (z+1)*plane] {
				if v > 0 {
					present[uint64(v)] = true
				}
			}
			if len(present) > 0 {
				tighten(0, z, present)
			}
		}
		for y := 0; y < h; y++ {
			clear(present)
			for z := 0; z < d; z++ {
				for _, v := range data[z*plane+y*w : z*plane+(y+1)*w] {
					if v > 0 {
						present[uint64(v)] = true
					}
				}
			}
			if len(present) > 0 {
				tighten(1, y, present)
			}
		}
		for x := 0; x < w; x++ {
			clear(present)
			for z := 0; z < d; z++ {
				for y := 0; y < h; y++ {
					if v := data[z*plane+y*w+x]; v > 0 {
						present[uint64(v)] = true
					}
				}
			}
			if len(present) > 0 {
				tighten(2, x, present)
			}
		}
	}

	var counts map[uint64]int
	if withCount {
		counts = make(map[uint64]int, len(candidates))
		for _, v := range data {
			if v > 0 {
				counts[uint64(v)]++
			}
		}
	}

	out := make(Table, len(boxes))
	for id, b := range boxes {
		if b.Empty() {
			continue
		}
		e := Entry{Box: *b}
		if withCount {
			e.Count = counts[id]
		}
		out[id] = e
	}
	return out, nil
}

// MergeTables folds table b into a copy of table a. Ids present in both get
// the smallest box containing both source boxes; ids present in only one
// side are kept as-is, so disjoint id sets degrade to a concatenation.
//
// The operation is associative, order-independent and idempotent: production
// use folds tens of thousands of per-tile tables into one global table and
// must not depend on fold order. Counts merge by maximum, which keeps
// idempotence; a count after merging is per-contribution evidence, not a
// dataset-wide total.
func MergeTables(a, b Table) Table {
	out := make(Table, len(a)+len(b))
	for id, e := range a {
		out[id] = e
	}
	for id, e := range b {
		prev, ok := out[id]
		if !ok {
			out[id] = e
			continue
		}
		merged := Entry{Box: Merge(prev.Box, e.Box), Count: prev.Count}
		if e.Count > merged.Count {
			merged.Count = e.Count
		}
		out[id] = merged
	}
	return out
}

// Lift2DTo3D converts a rank-2 table computed on one tile image into rank-3
// world coordinates: every box gains a z extent of [z, z] and its row/column
// bounds shift by the tile's world offset.
func Lift2DTo3D(t Table, z, yOff, xOff int) Table {
	out := make(Table, len(t))
	for id, e := range t {
		b := Box{Rank: 3}
		b.Min[0], b.Max[0] = z, z
		b.Min[1], b.Max[1] = e.Box.Min[0]+yOff, e.Box.Max[0]+yOff
		b.Min[2], b.Max[2] = e.Box.Min[1]+xOff, e.Box.Max[1]+xOff
		out[id] = Entry{Box: b, Count: e.Count}
	}
	return out
}

// RoundToRatio widens every box to align with a per-axis downsampling ratio:
// minimums floor to a multiple of the ratio and maximums grow to the last
// voxel of their ratio cell. Used before extracting a downsampled region so
// the box survives integer division by the ratio.
func RoundToRatio(t Table, ratio []int) {
	for id, e := range t {
		for i := 0; i < e.Box.Rank && i < len(ratio); i++ {
			r := ratio[i]
			if r <= 1 {
				continue
			}
			e.Box.Min[i] = e.Box.Min[i] / r * r
			e.Box.Max[i] = (e.Box.Max[i]+r)/r*r - 1
		}
		t[id] = e
	}
}
