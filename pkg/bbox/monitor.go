package bbox

import (
	"gonum.org/v1/gonum/stat"
)

// FoldAnomaly describes a suspiciously large change in one instance's merged
// box between two successive table folds. It is a data-quality signal for
// manual inspection; the merge itself is never altered.
type FoldAnomaly struct {
	// Source identifies the tile table whose fold triggered the jump.
	Source string

	// Before and After are the merged box prior to and after the fold.
	Before, After Box

	// Jump is the largest absolute coordinate change across all bounds.
	Jump int

	// Sigma is the jump's z-score against the jumps seen so far, 0 until
	// enough history exists.
	Sigma float64
}

// FoldMonitor watches one instance's box as per-tile tables are folded in
// ascending tile order and reports jumps beyond Threshold. Correction policy
// stays with the caller: an anomalous tile can be inspected, its table row
// removed and the fold rerun, but the monitor never guesses a fix.
type FoldMonitor struct {
	// Threshold is the coordinate change, in voxels, above which a fold
	// is reported.
	Threshold int

	// OnAnomaly, when set, receives each anomaly as it is detected.
	OnAnomaly func(FoldAnomaly)

	prev    Box
	started bool
	jumps   []float64
}

// Observe records the merged box after folding one tile table and returns a
// non-nil anomaly when the change since the previous fold exceeds the
// threshold. The first observation only seeds the history.
func (m *FoldMonitor) Observe(source string, merged Box) *FoldAnomaly {
	defer func() {
		m.prev = merged
		m.started = true
	}()
	if !m.started || m.prev.Empty() || merged.Empty() {
		return nil
	}

	jump := 0
	for i := 0; i < merged.Rank; i++ {
		if d := abs(merged.Min[i] - m.prev.Min[i]); d > jump {
			jump = d
		}
		if d := abs(merged.Max[i] - m.prev.Max[i]); d > jump {
			jump = d
		}
	}

	var sigma float64
	if len(m.jumps) >= 2 {
		mean, std := stat.MeanStdDev(m.jumps, nil)
		if std > 0 {
			sigma = (float64(jump) - mean) / std
		}
	}
	m.jumps = append(m.jumps, float64(jump))

	if m.Threshold <= 0 || jump <= m.Threshold {
		return nil
	}
	a := &FoldAnomaly{
		Source: source,
		Before: m.prev,
		After:  merged,
		Jump:   jump,
		Sigma:  sigma,
	}
	if m.OnAnomaly != nil {
		m.OnAnomaly(*a)
	}
	return a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
