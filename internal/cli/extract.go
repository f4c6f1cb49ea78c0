package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voltile/pkg/assemble"
	"voltile/pkg/bbox"
	"voltile/pkg/config"
	"voltile/pkg/grid"
	"voltile/pkg/imageio"
	"voltile/pkg/volume"
)

// extractOpts holds the command-line flags for the extract command.
type extractOpts struct {
	ratio     string
	outDir    string
	overwrite bool
	jobID     int
	jobNum    int
}

func newExtractCmd() *cobra.Command {
	opts := &extractOpts{}
	cmd := &cobra.Command{
		Use:   "extract <instance>...",
		Short: "Assemble an instance mask from tile images into a container",
		Long: `extract cuts each named instance out of the tiled segmentation stack: its
merged bounding box selects the region, a binary relabel keeps only that
instance's pixels, and the assembled mask is written as a compressed HDF5
container. With --ratio the y/x axes are downsampled at tile read time and
the z axis is subsampled, so the full-resolution stack is never held in
memory. The work shards across jobs with --job-id and --job-num.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}
	cmd.Flags().StringVar(&opts.ratio, "ratio", "1,1,1", "z,y,x downsampling ratio")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "output directory (default: the configured result folder)")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "re-extract even when the output file exists")
	cmd.Flags().IntVar(&opts.jobID, "job-id", 0, "index of this job in the shard")
	cmd.Flags().IntVar(&opts.jobNum, "job-num", 1, "total number of jobs in the shard")
	return cmd
}

func (o *extractOpts) run(cmd *cobra.Command, args []string) error {
	logger := loggerFromContext(cmd.Context())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if o.jobNum < 1 || o.jobID < 0 || o.jobID >= o.jobNum {
		return fmt.Errorf("invalid job shard %d/%d", o.jobID, o.jobNum)
	}
	ratio, err := parseInts(o.ratio, 3)
	if err != nil {
		return err
	}
	for _, r := range ratio {
		if r < 1 {
			return fmt.Errorf("ratio values must be positive, got %s", o.ratio)
		}
	}
	idmap, err := config.LoadIDMap(cfg.Labels.IDMapFile)
	if err != nil {
		return err
	}
	table, err := bbox.ReadTable(cfg.Bbox.MergedFile)
	if err != nil {
		return err
	}
	relabel, err := volume.LoadRelabelTable(cfg.Labels.RelabelFile)
	if err != nil {
		return err
	}
	outDir := o.outDir
	if outDir == "" {
		outDir = cfg.Output.ResultFolder
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	// Output files are tagged with the physical voxel size after
	// downsampling, so extractions at different scales can coexist.
	res := cfg.Dataset.Resolution
	tag := fmt.Sprintf("%d-%d-%d", res[0]*ratio[0], res[1]*ratio[1], res[2]*ratio[2])

	for i := o.jobID; i < len(args); i += o.jobNum {
		id, name, err := idmap.Resolve(args[i])
		if err != nil {
			return err
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_%s.h5", name, tag))
		if !o.overwrite {
			if _, err := os.Stat(out); err == nil {
				logger.Info("output exists, skipping", "instance", name, "path", out)
				continue
			}
		}
		e, ok := table[uint64(id)]
		if !ok {
			return fmt.Errorf("instance %s (id %d) has no merged box", name, id)
		}
		prog := newProgress(logger)
		logger.Info("extracting instance", "instance", name, "id", id, "box", e.Box.String())
		if err := o.extractOne(cfg, relabel, id, e.Box, ratio, out); err != nil {
			return err
		}
		prog.done(fmt.Sprintf("Extracted %s to %s", name, out))
	}
	return nil
}

func (o *extractOpts) extractOne(cfg *config.Config, relabel volume.RelabelTable, id uint32, box bbox.Box, ratio []int, out string) error {
	// The box is inclusive full-resolution coordinates; the region is
	// exclusive with y/x mapped into the downsampled space. z stays in
	// full resolution and is subsampled by the assembler's z step.
	region := assemble.Region{
		Z0: box.Min[0], Z1: box.Max[0] + 1,
		Y0: box.Min[1] / ratio[1], Y1: box.Max[1]/ratio[1] + 1,
		X0: box.Min[2] / ratio[2], X1: box.Max[2]/ratio[2] + 1,
	}
	assembler := assemble.NewTiledAssembler(&assemble.TiledParams{
		Patterns:    slicePatterns(cfg),
		Region:      region,
		TileSize:    [2]int{cfg.Dataset.TileRows / ratio[1], cfg.Dataset.TileCols / ratio[2]},
		TileStart:   cfg.Dataset.TileStart,
		Ratio:       [2]float64{1 / float64(ratio[1]), 1 / float64(ratio[2])},
		Kind:        imageio.KindSeg,
		ZStep:       ratio[0],
		Relabel:     relabel.BinaryFor(id),
		RepairBlank: true,
		Output: assemble.Output{
			Mode:  assemble.OutputHDF5,
			Path:  out,
			DType: assemble.DTypeUint8,
		},
	})
	result, err := assembler.Assemble()
	if err != nil {
		return err
	}
	if result.AllBackground {
		return fmt.Errorf("instance %d not found inside its own bounding box; the merged table is stale", id)
	}
	return nil
}

// chunkExtractOpts holds the command-line flags for the chunk-extract command.
type chunkExtractOpts struct {
	pattern     string
	dataset     string
	region      string
	chunkSize   string
	origin      string
	halo        string
	channel     int
	numChannels int
	stride      string
	zstep       int
	accIDs      bool
	out         string
	outMode     string
	outDataset  string
	dtype       string
}

func newChunkExtractCmd() *cobra.Command {
	opts := &chunkExtractOpts{}
	cmd := &cobra.Command{
		Use:   "chunk-extract",
		Short: "Assemble a region from chunked containers",
		Long: `chunk-extract reads a region from a volume sharded into per-block HDF5
containers and writes it as one container or as per-slice images. The chunk
pattern substitutes {z}, {row} and {column} with block indices. Coordinates
are in output space: with --stride or --zstep a coordinate c addresses stored
element c*step. Halo overlap along z is declared with --halo lead,trail,lastZ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.pattern, "pattern", "", "chunk filename pattern with {z}/{row}/{column} markers")
	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "dataset name inside each chunk (default: first found)")
	cmd.Flags().StringVar(&opts.region, "region", "", "output-space region as z0,z1,y0,y1,x0,x1")
	cmd.Flags().StringVar(&opts.chunkSize, "chunk-size", "", "chunk block shape as z,y,x")
	cmd.Flags().StringVar(&opts.origin, "origin", "0,0,0", "world offset of block (0,0,0) as z,y,x")
	cmd.Flags().StringVar(&opts.halo, "halo", "0,0,-1", "z halo as lead,trail,lastZ (-1: unbounded)")
	cmd.Flags().IntVar(&opts.channel, "channel", assemble.ChannelNone, "channel of 4-axis chunks: index, -2 for all, -1 for 3-axis chunks")
	cmd.Flags().IntVar(&opts.numChannels, "num-channels", 0, "channel-axis length, required with --channel=-2")
	cmd.Flags().StringVar(&opts.stride, "stride", "1,1", "stored y,x subsampling step")
	cmd.Flags().IntVar(&opts.zstep, "zstep", 1, "stored z subsampling step")
	cmd.Flags().BoolVar(&opts.accIDs, "acc-id", false, "offset each block's labels by the running maximum")
	cmd.Flags().StringVar(&opts.out, "out", "", "output container path or per-slice pattern")
	cmd.Flags().StringVar(&opts.outMode, "out-mode", "h5", "output mode: h5 or slices")
	cmd.Flags().StringVar(&opts.outDataset, "out-dataset", "", "output dataset name (default: main)")
	cmd.Flags().StringVar(&opts.dtype, "dtype", "uint32", "output element type: uint8, uint16, uint32 or uint64")
	for _, required := range []string{"pattern", "region", "chunk-size", "out"} {
		cobra.CheckErr(cmd.MarkFlagRequired(required))
	}
	return cmd
}

func (o *chunkExtractOpts) run(cmd *cobra.Command) error {
	logger := loggerFromContext(cmd.Context())

	region, err := parseInts(o.region, 6)
	if err != nil {
		return err
	}
	size, err := parseInts(o.chunkSize, 3)
	if err != nil {
		return err
	}
	origin, err := parseInts(o.origin, 3)
	if err != nil {
		return err
	}
	halo, err := parseInts(o.halo, 3)
	if err != nil {
		return err
	}
	stride, err := parseInts(o.stride, 2)
	if err != nil {
		return err
	}
	output, err := o.output()
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	assembler := assemble.NewChunkedAssembler(&assemble.ChunkedParams{
		ChunkPath: func(zid, yid, xid int) string {
			return grid.ChunkName(o.pattern, zid, yid, xid)
		},
		Dataset: o.dataset,
		Region: assemble.Region{
			Z0: region[0], Z1: region[1],
			Y0: region[2], Y1: region[3],
			X0: region[4], X1: region[5],
		},
		Grid: grid.ChunkGrid{
			Size:       [3]int{size[0], size[1], size[2]},
			Origin:     [3]int{origin[0], origin[1], origin[2]},
			ExtraLead:  halo[0],
			ExtraTrail: halo[1],
			LastZ:      halo[2],
		},
		Channel:       o.channel,
		NumChannels:   o.numChannels,
		ZStep:         o.zstep,
		Stride:        [2]int{stride[0], stride[1]},
		AccumulateIDs: o.accIDs,
		Output:        output,
		Logger:        logger,
	})
	if _, err := assembler.Assemble(); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Assembled region to %s", o.out))
	return nil
}

func (o *chunkExtractOpts) output() (assemble.Output, error) {
	out := assemble.Output{Path: o.out, Dataset: o.outDataset}
	switch o.outMode {
	case "h5":
		out.Mode = assemble.OutputHDF5
	case "slices":
		out.Mode = assemble.OutputSlices
	default:
		return out, fmt.Errorf("unknown output mode %q", o.outMode)
	}
	switch strings.ToLower(o.dtype) {
	case "uint8":
		out.DType = assemble.DTypeUint8
	case "uint16":
		out.DType = assemble.DTypeUint16
	case "uint32":
		out.DType = assemble.DTypeUint32
	case "uint64":
		out.DType = assemble.DTypeUint64
	default:
		return out, fmt.Errorf("unknown element type %q", o.dtype)
	}
	return out, nil
}
