// Package config provides configuration loading and management for voltile.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Dataset describes the tiled segmentation stack
	Dataset struct {
		// TileFolder is the directory holding the per-z tile images
		TileFolder string `yaml:"tileFolder"`

		// TileTemplate is the tile filename pattern; row and column
		// indices are substituted per tile and z is substituted per slice
		TileTemplate string `yaml:"tileTemplate"`

		// TileList is a text file listing every tile name, one per line
		TileList string `yaml:"tileList"`

		// Depth is the number of z slices in the stack
		Depth int `yaml:"depth"`

		// TileRows and TileCols are the tile footprint in pixels
		TileRows int `yaml:"tileRows"`
		TileCols int `yaml:"tileCols"`

		// TileStart offsets the row/column indices in tile names
		TileStart [2]int `yaml:"tileStart"`

		// Resolution is the voxel size (z, y, x) in nanometers
		Resolution []int `yaml:"resolution"`
	} `yaml:"dataset"`

	// Labels describes the instance id space of the stack
	Labels struct {
		// RelabelFile maps raw tile values to instance ids, one new id
		// per raw value in raw-value order
		RelabelFile string `yaml:"relabelFile"`

		// IDMapFile is a YAML map from instance name to instance id
		IDMapFile string `yaml:"idMapFile"`
	} `yaml:"labels"`

	// Bbox describes where per-tile and merged bounding boxes live
	Bbox struct {
		// Folder holds one bounding-box table per tile
		Folder string `yaml:"folder"`

		// MergedFile is the stack-wide merged bounding-box table
		MergedFile string `yaml:"mergedFile"`
	} `yaml:"bbox"`

	// Output parameters
	Output struct {
		// ResultFolder receives extracted volumes
		ResultFolder string `yaml:"resultFolder"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.TileRows = 8192
	cfg.Dataset.TileCols = 8192
	cfg.Dataset.Resolution = []int{30, 8, 8}

	cfg.Bbox.Folder = "bbox"
	cfg.Bbox.MergedFile = "bbox.txt"

	cfg.Output.ResultFolder = "results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
