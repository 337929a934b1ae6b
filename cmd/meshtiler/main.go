// meshtiler splits triangle meshes into tiles and writes them as b3dm
// containers with a tileset manifest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshtiler/internal/config"
	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/internal/pipeline"
	"github.com/Faultbox/meshtiler/pkg/b3dm"
	"github.com/Faultbox/meshtiler/pkg/formats"
	"github.com/Faultbox/meshtiler/pkg/glb"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		logger.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "tile":
		cmdTile(args)
	case "split":
		cmdSplit(args)
	case "inspect", "info":
		cmdInspect(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		logger.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshtiler - mesh tiling utility

Usage:
  meshtiler <command> [options]

Commands:
  tile [options] <input.obj>     Split a mesh and write b3dm tiles and tileset.json
  split [options] <input.obj>    Split a mesh and write each tile as OBJ
  inspect <file>                 Show the header of a b3dm or glb file
  config [options] [-save]       Print the effective configuration

Options (tile, split, config):
  -config <file>    Config file (default ./meshtiler.yaml, then user config dir)
  -out <dir>        Output directory
  -depth <n>        Split recursion depth
  -axes xy|xyz      Quadtree or octree split
  -strategy <name>  Split point: center or barycenter
  -encoding <name>  Text encoding of the input OBJ
  -debug            Enable debug logging

Examples:
  meshtiler tile -depth 3 -out tiles model.obj
  meshtiler tile -y-up -lat 37.56 -lon 126.97 model.obj
  meshtiler split -axes xyz -depth 2 model.obj
  meshtiler inspect tiles/tile-0-3.b3dm`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logger.Exit(1)
}

// setup parses args, loads the merged configuration and starts logging.
func setup(name string, args []string, extra func(fs *flag.FlagSet)) *config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fatal(err)
	}
	if fs.NArg() > 0 {
		cfg.Input.Path = fs.Arg(0)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatal(err)
	}
	return cfg
}

func cmdTile(args []string) {
	cfg := setup("tile", args, nil)
	defer logger.Sync()

	if cfg.Input.Path == "" {
		fmt.Fprintln(os.Stderr, "Usage: meshtiler tile [options] <input.obj>")
		logger.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := pipeline.New(cfg).Run(ctx)
	if res != nil {
		fmt.Printf("Source:  %s (%d faces)\n", cfg.Input.Path, res.SourceFaces)
		fmt.Printf("Tiles:   %d\n", len(res.Tiles))
		fmt.Printf("Output:  %s\n", cfg.Output.Dir)
		fmt.Printf("Elapsed: %v\n", res.Elapsed)
	}
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", e)
		}
		logger.Exit(1)
	}
}

func cmdSplit(args []string) {
	cfg := setup("split", args, nil)
	defer logger.Sync()

	if cfg.Input.Path == "" {
		fmt.Fprintln(os.Stderr, "Usage: meshtiler split [options] <input.obj>")
		logger.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := pipeline.New(cfg)
	m, err := p.Load()
	if err != nil {
		fatal(err)
	}
	tiles, err := p.Split(ctx, m)
	if err != nil {
		fatal(err)
	}
	if _, err := p.WriteOBJ(ctx, tiles); err != nil {
		fatal(err)
	}

	fmt.Printf("%-24s %8s %8s  %s\n", "TILE", "FACES", "VERTS", "BOUNDS")
	for _, t := range tiles {
		b := t.Bounds
		fmt.Printf("%-24s %8d %8d  (%.3f, %.3f, %.3f) - (%.3f, %.3f, %.3f)\n",
			t.Name, t.Mesh.FaceCount(), t.Mesh.VertexCount(),
			b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
	}
	fmt.Printf("\n%d tiles written to %s\n", len(tiles), cfg.Output.Dir)
}

func cmdInspect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtiler inspect <file>")
		logger.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fatal(err)
	}

	fmt.Printf("File:   %s\n", args[0])
	fmt.Printf("Size:   %d bytes\n", len(data))

	switch format := formats.Detect(args[0], data); format {
	case formats.FormatB3DM:
		inspectB3DM(data)
	case formats.FormatGLB:
		inspectGLB(data)
	default:
		fatal(fmt.Errorf("unsupported format %s", format))
	}
}

func inspectB3DM(data []byte) {
	h, err := b3dm.ParseHeader(data)
	if err != nil {
		fatal(err)
	}

	fmt.Println("Format: b3dm")
	fmt.Printf("Version:            %d\n", h.Version)
	fmt.Printf("Byte length:        %d\n", h.ByteLength)
	fmt.Printf("Feature table JSON: %d\n", h.FeatureTableJSONByteLength)
	fmt.Printf("Feature table bin:  %d\n", h.FeatureTableBinaryByteLength)
	fmt.Printf("Batch table JSON:   %d\n", h.BatchTableJSONByteLength)
	fmt.Printf("Batch table bin:    %d\n", h.BatchTableBinaryByteLength)
	fmt.Printf("Payload:            %d bytes at %d\n", h.PayloadLength(), h.PayloadOffset())

	warnings, err := b3dm.ValidateBytes(data)
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if err != nil {
		fatal(err)
	}

	c, err := b3dm.Decode(data)
	if err != nil {
		fatal(err)
	}
	if c.FeatureTableJSON != "" {
		fmt.Printf("Feature table:      %s\n", c.FeatureTableJSON)
	}
	if c.BatchTableJSON != "" {
		fmt.Printf("Batch table:        %s\n", c.BatchTableJSON)
	}
	if formats.Detect("", c.Payload) == formats.FormatGLB {
		fmt.Println()
		inspectGLB(c.Payload)
	}
}

func inspectGLB(data []byte) {
	doc, err := glb.Parse(data)
	if err != nil {
		if errors.Is(err, glb.ErrInvalidMagic) {
			fatal(fmt.Errorf("payload is not GLB: %w", err))
		}
		fatal(err)
	}

	binLen := 0
	if len(doc.Buffers) > 0 {
		binLen = len(doc.Buffers[0].Data)
	}
	fmt.Println("Format: glb")
	fmt.Printf("Generator: %s\n", doc.Asset.Generator)
	fmt.Printf("Binary:    %d bytes\n", binLen)
	for i, gm := range doc.Meshes {
		m, err := glb.ToMesh(doc, i, false)
		if err != nil {
			fatal(err)
		}
		b := m.Bounds()
		fmt.Printf("Mesh %q: %d vertices, %d faces\n", gm.Name, m.VertexCount(), m.FaceCount())
		fmt.Printf("  bounds (%.3f, %.3f, %.3f) - (%.3f, %.3f, %.3f)\n",
			b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
		for _, sub := range m.Submeshes {
			fmt.Printf("  material %q: %d faces\n", sub.Material, sub.FaceCount())
		}
	}
}

func cmdConfig(args []string) {
	var save *bool
	cfg := setup("config", args, func(fs *flag.FlagSet) {
		save = fs.Bool("save", false, "Write the effective config to the user config directory")
	})
	defer logger.Sync()

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fatal(err)
	}
	fmt.Print(string(out))

	if *save {
		if err := cfg.Save(); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "Saved to %s\n", config.ConfigDir())
	}
}
