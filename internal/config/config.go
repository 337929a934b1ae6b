// Package config handles tiler configuration loading and management.
package config

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/pkg/encoding"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// MaxDepth caps the recursion depth; an XYZ split of depth 8 already
// yields up to 2^24 tiles.
const MaxDepth = 8

// Config holds all tiler settings.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Split     SplitConfig     `yaml:"split"`
	Transform TransformConfig `yaml:"transform"`
	Georef    GeorefConfig    `yaml:"georef"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InputConfig describes the source mesh.
type InputConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"` // Text encoding of the OBJ file, e.g. "euc-kr"
}

// OutputConfig controls where tiles are written.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	BaseName string `yaml:"base_name"` // Tile name prefix
	WriteOBJ bool   `yaml:"write_obj"` // Also write each leaf as OBJ
}

// SplitConfig holds the spatial split parameters.
type SplitConfig struct {
	Depth    int    `yaml:"depth"`
	Axes     string `yaml:"axes"`     // "xy" (quadtree) or "xyz" (octree)
	Strategy string `yaml:"strategy"` // "center" or "barycenter"
	Workers  int    `yaml:"workers"`  // 0 uses every CPU
}

// TransformConfig is applied to the mesh before splitting.
type TransformConfig struct {
	Scale    float64 `yaml:"scale"`
	YUpToZUp bool    `yaml:"y_up_to_z_up"`
}

// GeorefConfig places the tileset on the globe.
type GeorefConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Encoding: "utf-8",
		},
		Output: OutputConfig{
			Dir:      "tiles",
			BaseName: mesh.DefaultBaseName,
			WriteOBJ: false,
		},
		Split: SplitConfig{
			Depth:    2,
			Axes:     "xy",
			Strategy: "center",
			Workers:  0,
		},
		Transform: TransformConfig{
			Scale:    1,
			YUpToZUp: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Split.Depth < 0 || c.Split.Depth > MaxDepth {
		err = multierr.Append(err, fmt.Errorf("split.depth %d out of range [0, %d]", c.Split.Depth, MaxDepth))
	}
	if _, e := mesh.ParseAxisMode(c.Split.Axes); e != nil {
		err = multierr.Append(err, fmt.Errorf("split.axes: %w", e))
	}
	if _, e := mesh.ParseStrategy(c.Split.Strategy); e != nil {
		err = multierr.Append(err, fmt.Errorf("split.strategy: %w", e))
	}
	if c.Split.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("split.workers %d is negative", c.Split.Workers))
	}
	if _, e := encoding.Lookup(c.Input.Encoding); e != nil {
		err = multierr.Append(err, fmt.Errorf("input.encoding: %w", e))
	}
	if c.Output.Dir == "" {
		err = multierr.Append(err, fmt.Errorf("output.dir is empty"))
	}
	if c.Output.BaseName == "" || strings.ContainsAny(c.Output.BaseName, `/\`) {
		err = multierr.Append(err, fmt.Errorf("output.base_name %q is not a plain file name", c.Output.BaseName))
	}
	if !(c.Transform.Scale > 0) {
		err = multierr.Append(err, fmt.Errorf("transform.scale %v must be positive", c.Transform.Scale))
	}
	if c.Georef.Enabled {
		if c.Georef.Latitude < -90 || c.Georef.Latitude > 90 {
			err = multierr.Append(err, fmt.Errorf("georef.latitude %v out of range", c.Georef.Latitude))
		}
		if c.Georef.Longitude < -180 || c.Georef.Longitude > 180 {
			err = multierr.Append(err, fmt.Errorf("georef.longitude %v out of range", c.Georef.Longitude))
		}
	}
	if _, e := logger.ParseLevel(c.Logging.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", e))
	}
	return err
}

// SplitOptions converts the split section into splitter options.
func (c *Config) SplitOptions() (mesh.Options, error) {
	axes, err := mesh.ParseAxisMode(c.Split.Axes)
	if err != nil {
		return mesh.Options{}, err
	}
	strategy, err := mesh.ParseStrategy(c.Split.Strategy)
	if err != nil {
		return mesh.Options{}, err
	}
	return mesh.Options{
		Depth:    c.Split.Depth,
		Axes:     axes,
		Strategy: strategy,
		Workers:  c.Split.Workers,
		BaseName: c.Output.BaseName,
	}, nil
}
