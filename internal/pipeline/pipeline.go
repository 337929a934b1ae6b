// Package pipeline runs the tiling workflow: load a mesh, prepare it, split
// it into tiles, encode each tile and write the tileset manifest.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshtiler/internal/config"
	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/pkg/b3dm"
	"github.com/Faultbox/meshtiler/pkg/formats"
	"github.com/Faultbox/meshtiler/pkg/glb"
	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
	"github.com/Faultbox/meshtiler/pkg/tileset"
)

// TilesetFile is the manifest name written next to the tiles.
const TilesetFile = "tileset.json"

// Decimator reduces the triangle count of a mesh before it is split.
type Decimator interface {
	Decimate(ctx context.Context, m *mesh.Mesh) (*mesh.Mesh, error)
}

// Pipeline runs the tiling workflow for one configuration.
type Pipeline struct {
	cfg       *config.Config
	log       *zap.Logger
	splitLog  *zap.Logger
	encoder   b3dm.PayloadEncoder
	decimator Decimator
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEncoder replaces the GLB payload encoder.
func WithEncoder(enc b3dm.PayloadEncoder) Option {
	return func(p *Pipeline) { p.encoder = enc }
}

// WithDecimator simplifies the mesh before splitting.
func WithDecimator(d Decimator) Option {
	return func(p *Pipeline) { p.decimator = d }
}

// WithLogger sets the logger; the default is a child of the global logger.
// Split progress goes to a child named after the split component.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
		p.splitLog = l.Named(logger.ComponentSplit)
	}
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		log:      logger.Named(logger.ComponentPipeline),
		splitLog: logger.Named(logger.ComponentSplit),
		encoder:  glb.Encoder{Generator: "meshtiler", ZUp: true}, // Tiles are Z-up, glTF is Y-up
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result summarizes a run.
type Result struct {
	SourceFaces int
	Tiles       []mesh.Tile
	Written     []string // Paths of files written, tileset last
	Tileset     *tileset.Tileset
	Elapsed     time.Duration
}

// Run loads the configured input and processes it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	m, err := p.Load()
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, m)
}

// Load reads the input mesh named in the configuration.
func (p *Pipeline) Load() (*mesh.Mesh, error) {
	in := p.cfg.Input
	if in.Path == "" {
		return nil, fmt.Errorf("no input file configured")
	}
	start := time.Now()
	m, err := formats.ParseOBJFile(in.Path, in.Encoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", in.Path, err)
	}
	p.log.Info("mesh loaded",
		zap.String("path", in.Path),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("faces", m.FaceCount()),
		zap.Int("submeshes", len(m.Submeshes)),
		zap.Duration("took", time.Since(start)))
	return m, nil
}

// Prepare applies the configured scale and axis conversion.
func (p *Pipeline) Prepare(m *mesh.Mesh) *mesh.Mesh {
	t := PrepareTransform(p.cfg.Transform)
	if t.IsIdentity() {
		return m
	}
	p.log.Debug("transforming mesh",
		zap.Float64("scale", p.cfg.Transform.Scale),
		zap.Bool("y_up_to_z_up", p.cfg.Transform.YUpToZUp))
	return m.Transform(t)
}

// PrepareTransform returns the matrix applied to source positions: the
// uniform scale followed by the optional Y-up to Z-up rotation.
func PrepareTransform(tc config.TransformConfig) math.Mat4 {
	t := math.Identity()
	if tc.Scale > 0 && tc.Scale != 1 {
		t = math.Scale(tc.Scale, tc.Scale, tc.Scale)
	}
	if tc.YUpToZUp {
		rot := math.QuatBetween(math.Vec3{Y: 1}, math.Vec3{Z: 1}).ToMat4()
		t = rot.Mul(t)
	}
	return t
}

// Split prepares, optionally decimates and splits m.
func (p *Pipeline) Split(ctx context.Context, m *mesh.Mesh) ([]mesh.Tile, error) {
	opts, err := p.cfg.SplitOptions()
	if err != nil {
		return nil, err
	}

	m = p.Prepare(m)
	if p.decimator != nil {
		before := m.FaceCount()
		m, err = p.decimator.Decimate(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("decimating: %w", err)
		}
		p.log.Info("mesh decimated", zap.Int("faces_before", before), zap.Int("faces_after", m.FaceCount()))
	}

	start := time.Now()
	tiles, err := mesh.Split(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	for _, t := range tiles {
		p.splitLog.Debug("leaf",
			logger.Tile(t.Name),
			zap.Int("level", len(t.Path)),
			logger.Faces(t.Mesh.FaceCount()),
			logger.Vertices(t.Mesh.VertexCount()),
			logger.Bounds(t.Bounds.Min, t.Bounds.Max))
	}
	p.splitLog.Info("mesh split",
		zap.Int("depth", opts.Depth),
		zap.Stringer("axes", opts.Axes),
		logger.Faces(m.FaceCount()),
		zap.Int("tiles", len(tiles)),
		zap.Duration("took", time.Since(start)))
	return tiles, nil
}

// Process splits m and writes every tile and the manifest to the output
// directory. A tile that fails to encode or write does not stop the others;
// all failures are returned together and the manifest lists only the tiles
// that were written.
func (p *Pipeline) Process(ctx context.Context, m *mesh.Mesh) (*Result, error) {
	start := time.Now()
	res := &Result{SourceFaces: m.FaceCount()}

	tiles, err := p.Split(ctx, m)
	if err != nil {
		return nil, err
	}
	res.Tiles = tiles

	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	written, werr := p.writeTiles(ctx, tiles)
	res.Written = written.paths

	if len(written.tiles) > 0 {
		ts, err := p.manifest(written.tiles)
		if err != nil {
			werr = multierr.Append(werr, err)
		} else {
			path := filepath.Join(p.cfg.Output.Dir, TilesetFile)
			if err := ts.WriteFile(path); err != nil {
				werr = multierr.Append(werr, err)
			} else {
				res.Tileset = ts
				res.Written = append(res.Written, path)
			}
		}
	}

	res.Elapsed = time.Since(start)
	if werr != nil {
		p.log.Error("tiling finished with errors",
			zap.Int("failed", len(multierr.Errors(werr))),
			zap.Int("written", len(written.tiles)))
		return res, werr
	}
	p.log.Info("tiling finished",
		zap.Int("tiles", len(tiles)),
		zap.String("dir", p.cfg.Output.Dir),
		zap.Duration("took", res.Elapsed))
	return res, nil
}

// writeSet collects the outcome of concurrent tile writes.
type writeSet struct {
	mu    sync.Mutex
	tiles []mesh.Tile
	paths []string
	err   error
}

func (w *writeSet) ok(t mesh.Tile, paths ...string) {
	w.mu.Lock()
	w.tiles = append(w.tiles, t)
	w.paths = append(w.paths, paths...)
	w.mu.Unlock()
}

func (w *writeSet) fail(err error) {
	w.mu.Lock()
	w.err = multierr.Append(w.err, err)
	w.mu.Unlock()
}

func (p *Pipeline) writeTiles(ctx context.Context, tiles []mesh.Tile) (*writeSet, error) {
	ws := &writeSet{}
	var g errgroup.Group
	if p.cfg.Split.Workers > 0 {
		g.SetLimit(p.cfg.Split.Workers)
	} else {
		g.SetLimit(-1)
	}

	for _, t := range tiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				ws.fail(fmt.Errorf("tile %s: %w", t.Name, err))
				return nil
			}
			paths, err := p.writeTile(t)
			if err != nil {
				p.log.Warn("tile failed", logger.Tile(t.Name), zap.Error(err))
				ws.fail(fmt.Errorf("tile %s: %w", t.Name, err))
				return nil
			}
			p.log.Debug("tile written",
				logger.Tile(t.Name),
				logger.Faces(t.Mesh.FaceCount()),
				logger.Vertices(t.Mesh.VertexCount()))
			ws.ok(t, paths...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(ws.tiles, func(i, j int) bool { return ws.tiles[i].Name < ws.tiles[j].Name })
	sort.Strings(ws.paths)
	return ws, ws.err
}

func (p *Pipeline) writeTile(t mesh.Tile) ([]string, error) {
	data, err := b3dm.EncodeMesh(t.Mesh, p.encoder)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(p.cfg.Output.Dir, t.Name+".b3dm")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing b3dm: %w", err)
	}
	paths := []string{path}

	if p.cfg.Output.WriteOBJ {
		objPath := filepath.Join(p.cfg.Output.Dir, t.Name+".obj")
		if err := formats.WriteOBJFile(objPath, t.Mesh); err != nil {
			// A tile left out of the manifest must not leave files behind.
			_ = os.Remove(path)
			return nil, err
		}
		paths = append(paths, objPath)
	}
	return paths, nil
}

// WriteOBJ writes each tile as an OBJ file into the output directory.
func (p *Pipeline) WriteOBJ(ctx context.Context, tiles []mesh.Tile) ([]string, error) {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	var (
		g     errgroup.Group
		mu    sync.Mutex
		paths = make([]string, len(tiles))
		errs  error
	)
	if p.cfg.Split.Workers > 0 {
		g.SetLimit(p.cfg.Split.Workers)
	}
	for i, t := range tiles {
		g.Go(func() error {
			path := filepath.Join(p.cfg.Output.Dir, t.Name+".obj")
			err := ctx.Err()
			if err == nil {
				err = formats.WriteOBJFile(path, t.Mesh)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("tile %s: %w", t.Name, err))
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	out := paths[:0]
	for _, path := range paths {
		if path != "" {
			out = append(out, path)
		}
	}
	return out, errs
}

func (p *Pipeline) manifest(tiles []mesh.Tile) (*tileset.Tileset, error) {
	opts := tileset.Options{GenerateTool: "meshtiler"}
	if g := p.cfg.Georef; g.Enabled {
		opts.Transform = tileset.ENUTransform(g.Latitude, g.Longitude, g.Altitude)
	}
	return tileset.Build(tiles, opts)
}
