package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Tile and slice filenames come from caller-supplied patterns. Two
// substitution styles are supported, selected by which marker characters
// the pattern contains: positional printf verbs ("tiles/%d_%d.png") or
// named fields ("tiles/Y{row}_X{column}.png"). A pattern with neither is
// returned as-is.

// TileName resolves a per-tile filename pattern with the tile's row and
// column indices.
func TileName(pattern string, row, col int) string {
	switch {
	case strings.Contains(pattern, "%"):
		return fmt.Sprintf(pattern, row, col)
	case strings.Contains(pattern, "{"):
		s := strings.ReplaceAll(pattern, "{row}", strconv.Itoa(row))
		return strings.ReplaceAll(s, "{column}", strconv.Itoa(col))
	default:
		return pattern
	}
}

// SliceName resolves a per-slice filename pattern with an absolute z index.
func SliceName(pattern string, z int) string {
	switch {
	case strings.Contains(pattern, "%"):
		return fmt.Sprintf(pattern, z)
	case strings.Contains(pattern, "{"):
		return strings.ReplaceAll(pattern, "{z}", strconv.Itoa(z))
	default:
		return pattern
	}
}

// ChunkName resolves a chunk filename pattern with z/row/column block
// indices.
func ChunkName(pattern string, zid, yid, xid int) string {
	switch {
	case strings.Contains(pattern, "%"):
		return fmt.Sprintf(pattern, zid, yid, xid)
	case strings.Contains(pattern, "{"):
		s := strings.ReplaceAll(pattern, "{z}", strconv.Itoa(zid))
		s = strings.ReplaceAll(s, "{row}", strconv.Itoa(yid))
		return strings.ReplaceAll(s, "{column}", strconv.Itoa(xid))
	default:
		return pattern
	}
}
