package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"voltile/pkg/config"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with
// values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// configPath is the persistent --config flag shared by every command.
var configPath string

// Execute runs the voltile CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "voltile",
		Short:        "voltile indexes and extracts instances from tiled segmentation volumes",
		Long:         `voltile works on large segmentation volumes sharded into 2D tile images or 3D chunk containers: it computes per-instance bounding boxes tile by tile, merges them into a stack-wide table, and assembles per-instance sub-volumes without ever loading the full dataset.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("voltile %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "voltile.yml", "dataset configuration file")

	root.AddCommand(newTileBboxCmd())
	root.AddCommand(newMergeBboxCmd())
	root.AddCommand(newBboxOutlierCmd())
	root.AddCommand(newBboxPrintCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newChunkExtractCmd())

	return root.ExecuteContext(context.Background())
}

// loadConfig reads the dataset configuration named by the persistent flag.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}

// readLines reads a text file of names, one per line, skipping blanks.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading name list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading name list %s: %w", path, err)
	}
	return names, nil
}

// parseInts parses a comma-separated integer list and checks its length.
func parseInts(s string, want int) ([]int, error) {
	fields := strings.Split(s, ",")
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d comma-separated values, got %q", want, s)
	}
	out := make([]int, len(fields))
	for i, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", field, err)
		}
		out[i] = v
	}
	return out, nil
}
