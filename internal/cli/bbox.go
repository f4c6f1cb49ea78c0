package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"voltile/pkg/bbox"
	"voltile/pkg/config"
	"voltile/pkg/grid"
	"voltile/pkg/imageio"
	"voltile/pkg/volume"
)

// tileNameRe extracts the z/row/column indices from a tile name such as
// "s0322_Y3_X3".
var tileNameRe = regexp.MustCompile(`s(\d+)\D*Y(\d+)\D*X(\d+)`)

// parseTileName returns the z slice and tile row/column encoded in a tile
// name.
func parseTileName(name string) (z, row, col int, err error) {
	m := tileNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("tile name %q does not encode z/row/column indices", name)
	}
	z, _ = strconv.Atoi(m[1])
	row, _ = strconv.Atoi(m[2])
	col, _ = strconv.Atoi(m[3])
	return z, row, col, nil
}

// tileBboxOpts holds the command-line flags for the tile-bbox command.
type tileBboxOpts struct {
	jobID  int
	jobNum int
	count  bool
}

func newTileBboxCmd() *cobra.Command {
	opts := &tileBboxOpts{}
	cmd := &cobra.Command{
		Use:   "tile-bbox",
		Short: "Compute a bounding-box table for each tile image",
		Long: `tile-bbox reads every tile listed in the dataset's tile list, relabels its
RGB-encoded segmentation, and writes one bounding-box table per tile in world
coordinates. Tiles whose table already exists are skipped, so an interrupted
run resumes where it left off. The work shards across jobs with --job-id and
--job-num.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().IntVar(&opts.jobID, "job-id", 0, "index of this job in the shard")
	cmd.Flags().IntVar(&opts.jobNum, "job-num", 1, "total number of jobs in the shard")
	cmd.Flags().BoolVar(&opts.count, "count", false, "record per-instance foreground counts")
	return cmd
}

func (o *tileBboxOpts) run(cmd *cobra.Command) error {
	logger := loggerFromContext(cmd.Context())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if o.jobNum < 1 || o.jobID < 0 || o.jobID >= o.jobNum {
		return fmt.Errorf("invalid job shard %d/%d", o.jobID, o.jobNum)
	}
	names, err := readLines(cfg.Dataset.TileList)
	if err != nil {
		return err
	}
	var relabel volume.RelabelTable
	if cfg.Labels.RelabelFile != "" {
		if relabel, err = volume.LoadRelabelTable(cfg.Labels.RelabelFile); err != nil {
			return err
		}
	}

	prog := newProgress(logger)
	done := 0
	for i := o.jobID; i < len(names); i += o.jobNum {
		name := names[i]
		out := filepath.Join(cfg.Bbox.Folder, name+".txt")
		if _, err := os.Stat(out); err == nil {
			logger.Debug("table exists", "tile", name)
			continue
		}
		if err := o.processTile(logger, cfg, relabel, name, out); err != nil {
			return err
		}
		done++
	}
	prog.done(fmt.Sprintf("Computed %d tile tables", done))
	return nil
}

func (o *tileBboxOpts) processTile(logger *log.Logger, cfg *config.Config, relabel volume.RelabelTable, name, out string) error {
	z, row, col, err := parseTileName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Dataset.TileFolder, name+".png")
	tile, err := imageio.ReadTile(path, imageio.KindSeg, 1, 1, imageio.InterpNearest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("missing tile", "path", path)
			return nil
		}
		return err
	}
	if relabel != nil {
		if err := relabel.Apply(tile); err != nil {
			return fmt.Errorf("relabel tile %s: %w", name, err)
		}
	}
	table, err := bbox.BoxesOfLabels(tile.Data, []int{tile.Height, tile.Width}, nil, o.count)
	if err != nil {
		return err
	}
	lifted := bbox.Lift2DTo3D(table, z, row*cfg.Dataset.TileRows, col*cfg.Dataset.TileCols)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	// An empty table still writes an (empty) file so reruns can tell
	// "processed, nothing found" from "never processed".
	return bbox.WriteTable(out, lifted, o.count)
}

// mergeBboxOpts holds the command-line flags for the merge-bbox command.
type mergeBboxOpts struct {
	ratio string
}

func newMergeBboxCmd() *cobra.Command {
	opts := &mergeBboxOpts{}
	cmd := &cobra.Command{
		Use:   "merge-bbox",
		Short: "Fold per-tile tables into one stack-wide table",
		Long: `merge-bbox reads every per-tile bounding-box table and folds them into one
table covering the whole stack. Tiles without a table yet are skipped. With
--ratio the boxes are widened to align with a downsampling ratio so they
survive integer division during extraction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.ratio, "ratio", "1,1,1", "z,y,x downsampling ratio to align boxes with")
	return cmd
}

func (o *mergeBboxOpts) run(cmd *cobra.Command) error {
	logger := loggerFromContext(cmd.Context())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ratio, err := parseInts(o.ratio, 3)
	if err != nil {
		return err
	}
	names, err := readLines(cfg.Dataset.TileList)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	merged := bbox.Table{}
	folded := 0
	for _, name := range names {
		table, err := bbox.ReadTable(filepath.Join(cfg.Bbox.Folder, name+".txt"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("no table yet", "tile", name)
				continue
			}
			return err
		}
		merged = bbox.MergeTables(merged, table)
		folded++
	}
	bbox.RoundToRatio(merged, ratio)

	withCount := false
	for _, e := range merged {
		if e.Count > 0 {
			withCount = true
			break
		}
	}
	if err := bbox.WriteTable(cfg.Bbox.MergedFile, merged, withCount); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Merged %d tile tables covering %d instances", folded, len(merged)))
	return nil
}

// bboxOutlierOpts holds the command-line flags for the bbox-outlier command.
type bboxOutlierOpts struct {
	threshold int
}

func newBboxOutlierCmd() *cobra.Command {
	opts := &bboxOutlierOpts{}
	cmd := &cobra.Command{
		Use:   "bbox-outlier <instance>...",
		Short: "Monitor the fold of one instance for suspicious jumps",
		Long: `bbox-outlier replays the table fold for the named instances in sorted tile
order and reports every fold where the merged box jumps by more than the
threshold. A jump usually means one tile carries a mislabeled pixel; inspect
the reported tile, remove the bad row from its table and rerun merge-bbox.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}
	cmd.Flags().IntVar(&opts.threshold, "threshold", 10000, "coordinate jump, in voxels, above which a fold is reported")
	return cmd
}

func (o *bboxOutlierOpts) run(cmd *cobra.Command, args []string) error {
	logger := loggerFromContext(cmd.Context())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idmap, err := config.LoadIDMap(cfg.Labels.IDMapFile)
	if err != nil {
		return err
	}
	names, err := readLines(cfg.Dataset.TileList)
	if err != nil {
		return err
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	for _, instance := range args {
		id, instanceName, err := idmap.Resolve(instance)
		if err != nil {
			return err
		}
		monitor := &bbox.FoldMonitor{Threshold: o.threshold}
		merged := bbox.EmptyBox(3)
		anomalies := 0
		for _, name := range sorted {
			table, err := bbox.ReadTable(filepath.Join(cfg.Bbox.Folder, name+".txt"))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			e, ok := table[uint64(id)]
			if !ok {
				continue
			}
			merged = bbox.Merge(merged, e.Box)
			if a := monitor.Observe(name, merged); a != nil {
				anomalies++
				logger.Warn("suspicious fold",
					"instance", instanceName, "tile", a.Source,
					"jump", a.Jump, "sigma", fmt.Sprintf("%.1f", a.Sigma),
					"before", a.Before.String(), "after", a.After.String())
			}
		}
		logger.Info("fold replayed", "instance", instanceName, "id", id,
			"box", merged.String(), "anomalies", anomalies)
	}
	return nil
}

func newBboxPrintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bbox-print <instance>...",
		Short: "Print the merged bounding box of named instances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idmap, err := config.LoadIDMap(cfg.Labels.IDMapFile)
			if err != nil {
				return err
			}
			table, err := bbox.ReadTable(cfg.Bbox.MergedFile)
			if err != nil {
				return err
			}
			for _, instance := range args {
				id, name, err := idmap.Resolve(instance)
				if err != nil {
					return err
				}
				e, ok := table[uint64(id)]
				if !ok {
					return fmt.Errorf("instance %s (id %d) has no merged box", name, id)
				}
				b := e.Box
				fmt.Fprintf(cmd.OutOrStdout(), "%s id=%d box=%s size=%dx%dx%d\n",
					name, id, b.String(), b.Size(0), b.Size(1), b.Size(2))
			}
			return nil
		},
	}
	return cmd
}

// slicePatterns builds one tile-name pattern per z slice from the dataset's
// template by substituting the z index, leaving row/column markers for the
// assembler.
func slicePatterns(cfg *config.Config) []string {
	patterns := make([]string, cfg.Dataset.Depth)
	for z := range patterns {
		patterns[z] = filepath.Join(cfg.Dataset.TileFolder, grid.SliceName(cfg.Dataset.TileTemplate, z))
	}
	return patterns
}
