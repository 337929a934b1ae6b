package mesh

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBaseName prefixes tile names when Options.BaseName is empty.
const DefaultBaseName = "tile"

// Options controls a recursive split.
type Options struct {
	Depth    int                // Recursion levels; 0 returns the mesh as one tile
	Axes     AxisMode           // AxisXY (quadtree) or AxisXYZ (octree)
	Strategy SplitPointStrategy // Defaults to AbsoluteCenter
	Workers  int                // Concurrent branches; defaults to GOMAXPROCS
	BaseName string             // Tile name prefix; defaults to DefaultBaseName
}

// Tile is one leaf of a split.
type Tile struct {
	Name   string // Derived from Path only
	Path   []int  // Child index per level: bit 0 = +X, bit 1 = +Y, bit 2 = +Z
	Mesh   *Mesh
	Bounds Bounds
}

// TileName returns the name of the leaf reached by path, e.g. "tile-0-3".
func TileName(base string, path []int) string {
	var sb strings.Builder
	sb.WriteString(base)
	for _, c := range path {
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

// Index maps tile names to tiles.
func Index(tiles []Tile) map[string]Tile {
	out := make(map[string]Tile, len(tiles))
	for _, t := range tiles {
		out[t.Name] = t
	}
	return out
}

// SplitPlaneMesh cuts every triangle of m by plane and returns the negative
// and positive halves. Each half holds only the vertices it references;
// triangles sharing a cut edge share one intersection vertex.
func SplitPlaneMesh(m *Mesh, plane SplitPlane) (negative, positive *Mesh, err error) {
	if err := plane.Validate(); err != nil {
		return nil, nil, err
	}
	negative, positive = splitPlane(m, plane)
	return negative, positive, nil
}

func splitPlane(m *Mesh, plane SplitPlane) (*Mesh, *Mesh) {
	axis := int(plane.Axis)
	dist := make([]float64, len(m.Positions))
	for i, p := range m.Positions {
		dist[i] = p.Component(axis) - plane.Offset
	}

	sides := [2]*meshBuilder{newMeshBuilder(m), newMeshBuilder(m)}
	shared := make(map[edge]Vertex)

	for s := range m.Submeshes {
		idx := m.Submeshes[s].Indices
		for f := 0; f+2 < len(idx); f += 3 {
			tri := [3]uint32{idx[f], idx[f+1], idx[f+2]}
			d := [3]float64{dist[tri[0]], dist[tri[1]], dist[tri[2]]}
			plan := planClip(d)

			emit := func(b *meshBuilder, faces [][3]corner) {
				for _, fc := range faces {
					var out [3]uint32
					for k, c := range fc {
						if !c.cut {
							out[k] = b.original(tri[c.a])
							continue
						}
						e := edge{neg: tri[c.a], pos: tri[c.b]}
						da, db := d[c.a], d[c.b]
						out[k] = b.crossing(e, func() Vertex {
							if v, ok := shared[e]; ok {
								return v
							}
							v := intersect(m.Vertex(e.neg), m.Vertex(e.pos), da, db, axis, plane.Offset)
							shared[e] = v
							return v
						})
					}
					b.addFace(s, out[0], out[1], out[2])
				}
			}
			emit(sides[0], plan.negative)
			emit(sides[1], plan.positive)
		}
	}

	neg, pos := sides[0].build(), sides[1].build()
	neg.Name, pos.Name = m.Name, m.Name
	return neg, pos
}

// Split recursively partitions m into disjoint leaf tiles.
//
// At each level the split point is computed from the current mesh and the
// mesh is cut along X, then Y, then Z in AxisXYZ mode. Children are
// processed concurrently; every branch owns its meshes. Leaves with no
// faces are dropped. The returned tiles are sorted by name and their names
// depend only on the path taken, never on scheduling.
//
// Cancelling ctx stops branches that have not started. Tiles from branches
// that completed are still returned together with the context error.
func Split(ctx context.Context, m *Mesh, opts Options) ([]Tile, error) {
	if opts.Depth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, opts.Depth)
	}
	if !opts.Axes.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAxisMode, opts.Axes)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil mesh", ErrInvalidMesh)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Strategy == nil {
		opts.Strategy = AbsoluteCenter
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.BaseName == "" {
		opts.BaseName = DefaultBaseName
	}

	s := &splitter{opts: opts}
	s.group.SetLimit(opts.Workers)
	s.branch(ctx, m.Clone(), opts.Depth, nil)
	_ = s.group.Wait()

	tiles := s.sink.tiles
	slices.SortFunc(tiles, func(a, b Tile) int {
		return strings.Compare(a.Name, b.Name)
	})
	if err := ctx.Err(); err != nil {
		return tiles, fmt.Errorf("split interrupted: %w", err)
	}
	return tiles, nil
}

type splitter struct {
	opts  Options
	group errgroup.Group
	sink  tileSink
}

// tileSink is the only state shared between branches.
type tileSink struct {
	mu    sync.Mutex
	tiles []Tile
}

func (s *tileSink) add(t Tile) {
	s.mu.Lock()
	s.tiles = append(s.tiles, t)
	s.mu.Unlock()
}

type part struct {
	mesh  *Mesh
	child int
}

func (s *splitter) branch(ctx context.Context, m *Mesh, depth int, path []int) {
	if ctx.Err() != nil {
		return
	}
	if m.FaceCount() == 0 {
		return
	}
	if depth == 0 {
		name := TileName(s.opts.BaseName, path)
		m.Name = name
		s.sink.add(Tile{Name: name, Path: path, Mesh: m, Bounds: m.Bounds()})
		return
	}

	center := s.opts.Strategy(m)
	parts := []part{{mesh: m}}
	for axis := 0; axis < s.opts.Axes.Axes(); axis++ {
		plane := SplitPlane{Axis: Axis(axis), Offset: center.Component(axis)}
		next := make([]part, 0, len(parts)*2)
		for _, p := range parts {
			neg, pos := splitPlane(p.mesh, plane)
			next = append(next,
				part{mesh: neg, child: p.child},
				part{mesh: pos, child: p.child | 1<<axis})
		}
		parts = next
	}

	for _, p := range parts {
		if p.mesh.FaceCount() == 0 {
			continue
		}
		child := append(slices.Clip(path), p.child)
		mesh := p.mesh
		run := func() error {
			s.branch(ctx, mesh, depth-1, child)
			return nil
		}
		if !s.group.TryGo(run) {
			_ = run()
		}
	}
}
