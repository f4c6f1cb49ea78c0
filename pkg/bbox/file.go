package bbox

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Table files are plain text with one row per instance:
//
//	id min0 max0 min1 max1 [min2 max2] [count]
//
// whitespace separated, integer valued, axes in axis order. An existing but
// empty file means "no foreground found for this tile" and reads back as an
// empty table; a missing file is an error so callers can tell the two apart.

// ReadTable loads a table file. Row width determines rank and whether a
// count column is present: 5 fields = 2D, 6 = 2D with count, 7 = 3D,
// 8 = 3D with count.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open box table: %w", err)
	}
	defer f.Close()

	table := Table{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var rank int
		var withCount bool
		switch len(fields) {
		case 5:
			rank, withCount = 2, false
		case 6:
			rank, withCount = 2, true
		case 7:
			rank, withCount = 3, false
		case 8:
			rank, withCount = 3, true
		default:
			return nil, fmt.Errorf("%s:%d: unexpected column count %d", path, line, len(fields))
		}
		vals := make([]int64, len(fields))
		for i, field := range fields {
			vals[i], err = strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		}
		if vals[0] <= 0 {
			return nil, fmt.Errorf("%s:%d: invalid instance id %d", path, line, vals[0])
		}
		b := Box{Rank: rank}
		for i := 0; i < rank; i++ {
			b.Min[i] = int(vals[1+2*i])
			b.Max[i] = int(vals[2+2*i])
		}
		e := Entry{Box: b}
		if withCount {
			e.Count = int(vals[len(vals)-1])
		}
		table[uint64(vals[0])] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read box table %s: %w", path, err)
	}
	return table, nil
}

// WriteTable writes a table file with rows in ascending id order. An empty
// table produces an empty file, the on-disk marker for "tile processed, no
// foreground".
func WriteTable(path string, t Table, withCount bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create box table: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range t.IDs() {
		e := t[id]
		fmt.Fprintf(w, "%d", id)
		for i := 0; i < e.Box.Rank; i++ {
			fmt.Fprintf(w, " %d %d", e.Box.Min[i], e.Box.Max[i])
		}
		if withCount {
			fmt.Fprintf(w, " %d", e.Count)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write box table %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close box table %s: %w", path, err)
	}
	return nil
}
