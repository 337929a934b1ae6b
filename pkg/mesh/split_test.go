package mesh

import (
	"context"
	"fmt"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshtiler/pkg/math"
)

// gridMesh builds an n x n grid of cells spanning [0, size] on X and Y with
// two triangles per cell. With relief the grid becomes a height field so Z
// has extent too. Normals and 2D UVs are always present.
func gridMesh(n int, size float64, relief bool) *Mesh {
	m := &Mesh{Name: "grid"}
	step := size / float64(n)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, y := float64(i)*step, float64(j)*step
			z := 0.0
			if relief {
				z = gomath.Sin(x) * gomath.Cos(y)
			}
			m.Positions = append(m.Positions, math.Vec3{X: x, Y: y, Z: z})
			m.Normals = append(m.Normals, math.Vec3{Z: 1})
			m.UV2 = append(m.UV2, math.Vec2{X: x / size, Y: y / size})
		}
	}
	var idx []uint32
	row := uint32(n + 1)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a := uint32(j)*row + uint32(i)
			b, c, d := a+1, a+row+1, a+row
			idx = append(idx, a, b, c, a, c, d)
		}
	}
	m.Submeshes = []Submesh{{Material: "ground", Indices: idx}}
	return m
}

func leafAreas(tiles []Tile) float64 {
	var sum float64
	for _, t := range tiles {
		sum += t.Mesh.Area()
	}
	return sum
}

func TestSplit_InvalidArguments(t *testing.T) {
	m := gridMesh(2, 2, false)

	_, err := Split(context.Background(), m, Options{Depth: -1, Axes: AxisXY})
	assert.ErrorIs(t, err, ErrInvalidDepth)

	_, err = Split(context.Background(), m, Options{Depth: 1, Axes: AxisMode(1)})
	assert.ErrorIs(t, err, ErrInvalidAxisMode)

	_, err = Split(context.Background(), nil, Options{Depth: 1, Axes: AxisXY})
	assert.ErrorIs(t, err, ErrInvalidMesh)

	broken := &Mesh{
		Positions: []math.Vec3{{}, {X: 1}},
		Submeshes: []Submesh{{Indices: []uint32{0, 1, 2}}},
	}
	_, err = Split(context.Background(), broken, Options{Depth: 1, Axes: AxisXY})
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestSplit_DepthZero(t *testing.T) {
	m := gridMesh(3, 3, true)

	tiles, err := Split(context.Background(), m, Options{Depth: 0, Axes: AxisXYZ})
	require.NoError(t, err)
	require.Len(t, tiles, 1)

	tile := tiles[0]
	assert.Equal(t, DefaultBaseName, tile.Name)
	assert.Empty(t, tile.Path)
	assert.Equal(t, m.FaceCount(), tile.Mesh.FaceCount())
	assert.Equal(t, m.Bounds(), tile.Bounds)

	// The leaf is an independent copy.
	tile.Mesh.Positions[0] = math.Vec3{X: 100}
	assert.Equal(t, math.Vec3{}, m.Positions[0])
}

func TestSplit_EmptyMesh(t *testing.T) {
	m := &Mesh{Positions: []math.Vec3{{X: 1}}, Submeshes: []Submesh{{}}}

	tiles, err := Split(context.Background(), m, Options{Depth: 2, Axes: AxisXY})
	require.NoError(t, err)
	assert.Empty(t, tiles)
}

func TestSplit_Properties(t *testing.T) {
	strategies := map[string]SplitPointStrategy{
		"center":     AbsoluteCenter,
		"barycenter": VertexBarycenter,
	}

	for _, axes := range []AxisMode{AxisXY, AxisXYZ} {
		for sname, strategy := range strategies {
			for depth := 1; depth <= 3; depth++ {
				name := fmt.Sprintf("%s/%s/depth%d", axes, sname, depth)
				t.Run(name, func(t *testing.T) {
					m := gridMesh(7, 10, true)
					orig := m.Bounds()

					tiles, err := Split(context.Background(), m, Options{
						Depth:    depth,
						Axes:     axes,
						Strategy: strategy,
						BaseName: "t",
					})
					require.NoError(t, err)
					require.NotEmpty(t, tiles)
					assert.LessOrEqual(t, len(tiles), 1<<(axes.Axes()*depth))

					// Area is conserved.
					assert.InDelta(t, m.Area(), leafAreas(tiles), 1e-9*m.Area())

					names := make(map[string]bool)
					var union Bounds
					for i, tile := range tiles {
						require.NoError(t, tile.Mesh.Validate())
						assert.Len(t, tile.Path, depth)
						assert.Equal(t, TileName("t", tile.Path), tile.Name)
						assert.False(t, names[tile.Name], "duplicate tile name %s", tile.Name)
						names[tile.Name] = true

						assert.Positive(t, tile.Mesh.FaceCount())
						assert.True(t, tile.Mesh.HasNormals())
						assert.Equal(t, 2, tile.Mesh.UVDims())
						assert.Equal(t, tile.Mesh.Bounds(), tile.Bounds)
						assert.True(t, orig.Contains(tile.Bounds), "tile %s escapes the source bounds", tile.Name)

						// Every vertex is referenced.
						used := make([]bool, tile.Mesh.VertexCount())
						for _, s := range tile.Mesh.Submeshes {
							for _, v := range s.Indices {
								used[v] = true
							}
						}
						for v, u := range used {
							assert.True(t, u, "tile %s has unused vertex %d", tile.Name, v)
						}

						if i == 0 {
							union = tile.Bounds
						} else {
							union = union.Union(tile.Bounds)
						}
					}

					// Leaves cover the source exactly.
					assert.Equal(t, orig, union)

					// Leaves do not overlap.
					for i := range tiles {
						for j := i + 1; j < len(tiles); j++ {
							assert.False(t, tiles[i].Bounds.OverlapsInterior(tiles[j].Bounds),
								"tiles %s and %s overlap", tiles[i].Name, tiles[j].Name)
						}
					}
				})
			}
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	m := gridMesh(9, 12, true)
	opts := Options{Depth: 3, Axes: AxisXYZ, Strategy: VertexBarycenter}

	opts.Workers = 1
	first, err := Split(context.Background(), m, opts)
	require.NoError(t, err)

	for _, workers := range []int{2, 8, 64} {
		opts.Workers = workers
		again, err := Split(context.Background(), m, opts)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].Name, again[i].Name)
			assert.Equal(t, first[i].Bounds, again[i].Bounds)
			assert.Equal(t, first[i].Mesh.FaceCount(), again[i].Mesh.FaceCount())
		}
	}
}

func TestSplit_AlignedGridKeepsTrianglesWhole(t *testing.T) {
	m := gridMesh(4, 4, false)

	tiles, err := Split(context.Background(), m, Options{Depth: 1, Axes: AxisXY})
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	total := 0
	for _, tile := range tiles {
		assert.Equal(t, 8, tile.Mesh.FaceCount(), "tile %s", tile.Name)
		total += tile.Mesh.FaceCount()
	}
	assert.Equal(t, m.FaceCount(), total)

	idx := Index(tiles)
	require.Contains(t, idx, "tile-0")
	require.Contains(t, idx, "tile-3")
	assert.Equal(t, Bounds{Min: math.Vec3{}, Max: math.Vec3{X: 2, Y: 2}}, idx["tile-0"].Bounds)
	assert.Equal(t, Bounds{Min: math.Vec3{X: 2, Y: 2}, Max: math.Vec3{X: 4, Y: 4}}, idx["tile-3"].Bounds)
}

func TestSplitPlaneMesh_SharesCutVertices(t *testing.T) {
	m := gridMesh(3, 3, false)

	neg, pos, err := SplitPlaneMesh(m, SplitPlane{Axis: AxisX, Offset: 1.5})
	require.NoError(t, err)

	// 8 source vertices per side plus 7 crossings: 4 horizontal edges and
	// 3 diagonals, each shared by the triangles on both sides of it.
	assert.Equal(t, 15, neg.VertexCount())
	assert.Equal(t, 15, pos.VertexCount())
	assert.Equal(t, 15, neg.FaceCount())
	assert.Equal(t, 15, pos.FaceCount())

	assert.InDelta(t, 4.5, neg.Area(), 1e-12)
	assert.InDelta(t, 4.5, pos.Area(), 1e-12)
	assert.Equal(t, 1.5, neg.Bounds().Max.X)
	assert.Equal(t, 1.5, pos.Bounds().Min.X)

	_, _, err = SplitPlaneMesh(m, SplitPlane{Axis: Axis(3)})
	assert.ErrorIs(t, err, ErrInvalidPlane)
}

func TestSplit_MaterialsFollowFaces(t *testing.T) {
	m := &Mesh{
		Positions: []math.Vec3{
			{X: 0}, {X: 1}, {X: 0, Y: 1},
			{X: 3, Y: 3}, {X: 4, Y: 3}, {X: 3, Y: 4},
		},
		UV3: []math.Vec3{{}, {X: 1}, {Y: 1}, {Z: 1}, {X: 1, Z: 1}, {Y: 1, Z: 1}},
		Submeshes: []Submesh{
			{Material: "left", Indices: []uint32{0, 1, 2}},
			{Material: "right", Indices: []uint32{3, 4, 5}},
		},
	}

	tiles, err := Split(context.Background(), m, Options{Depth: 1, Axes: AxisXY})
	require.NoError(t, err)
	require.Len(t, tiles, 2)

	for _, tile := range tiles {
		require.Len(t, tile.Mesh.Submeshes, 1)
		assert.Equal(t, 3, tile.Mesh.VertexCount())
		assert.Equal(t, 3, tile.Mesh.UVDims())
	}
	assert.Equal(t, "tile-0", tiles[0].Name)
	assert.Equal(t, "left", tiles[0].Mesh.Submeshes[0].Material)
	assert.Equal(t, "tile-3", tiles[1].Name)
	assert.Equal(t, "right", tiles[1].Mesh.Submeshes[0].Material)
}

func TestSplit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tiles, err := Split(ctx, gridMesh(4, 4, true), Options{Depth: 2, Axes: AxisXY})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tiles)
}

func TestTileName(t *testing.T) {
	assert.Equal(t, "tile", TileName("tile", nil))
	assert.Equal(t, "mesh-0-7-3", TileName("mesh", []int{0, 7, 3}))
}
