package config

import "flag"

// Flags holds the command-line overrides registered on a flag set.
type Flags struct {
	fs *flag.FlagSet

	config   *string
	debug    *bool
	encoding *string
	out      *string
	base     *string
	writeOBJ *bool
	depth    *int
	axes     *string
	strategy *string
	workers  *int
	scale    *float64
	yUp      *bool
	lat      *float64
	lon      *float64
	alt      *float64
}

// RegisterFlags defines the tiler flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		fs:       fs,
		config:   fs.String("config", "", "Path to config file"),
		debug:    fs.Bool("debug", false, "Enable debug logging"),
		encoding: fs.String("encoding", "", "Text encoding of the input OBJ (e.g. euc-kr)"),
		out:      fs.String("out", "", "Output directory"),
		base:     fs.String("name", "", "Tile name prefix"),
		writeOBJ: fs.Bool("obj", false, "Also write each tile as OBJ"),
		depth:    fs.Int("depth", 0, "Split recursion depth"),
		axes:     fs.String("axes", "", "Split axes: xy or xyz"),
		strategy: fs.String("strategy", "", "Split point: center or barycenter"),
		workers:  fs.Int("workers", 0, "Concurrent split branches (0 = all CPUs)"),
		scale:    fs.Float64("scale", 0, "Uniform scale applied before splitting"),
		yUp:      fs.Bool("y-up", false, "Input is Y-up; rotate to Z-up"),
		lat:      fs.Float64("lat", 0, "Latitude of the model origin (enables georeferencing)"),
		lon:      fs.Float64("lon", 0, "Longitude of the model origin"),
		alt:      fs.Float64("alt", 0, "Ellipsoid height of the model origin"),
	}
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply copies every flag that was set on the command line into cfg.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	set := make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if set["encoding"] {
		cfg.Input.Encoding = *f.encoding
	}
	if set["out"] {
		cfg.Output.Dir = *f.out
	}
	if set["name"] {
		cfg.Output.BaseName = *f.base
	}
	if set["obj"] {
		cfg.Output.WriteOBJ = *f.writeOBJ
	}
	if set["depth"] {
		cfg.Split.Depth = *f.depth
	}
	if set["axes"] {
		cfg.Split.Axes = *f.axes
	}
	if set["strategy"] {
		cfg.Split.Strategy = *f.strategy
	}
	if set["workers"] {
		cfg.Split.Workers = *f.workers
	}
	if set["scale"] {
		cfg.Transform.Scale = *f.scale
	}
	if set["y-up"] {
		cfg.Transform.YUpToZUp = *f.yUp
	}
	if set["lat"] || set["lon"] || set["alt"] {
		cfg.Georef.Enabled = true
	}
	if set["lat"] {
		cfg.Georef.Latitude = *f.lat
	}
	if set["lon"] {
		cfg.Georef.Longitude = *f.lon
	}
	if set["alt"] {
		cfg.Georef.Altitude = *f.alt
	}
}
