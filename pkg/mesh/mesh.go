// Package mesh holds the indexed triangle mesh model and the spatial splitting
// engine that cuts a mesh into disjoint tiles along axis-aligned planes.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshtiler/pkg/math"
)

// Mesh errors.
var (
	ErrInvalidMesh     = errors.New("invalid mesh")
	ErrInvalidDepth    = errors.New("invalid split depth")
	ErrInvalidPlane    = errors.New("invalid split plane")
	ErrInvalidAxisMode = errors.New("invalid axis mode")
	ErrUnknownStrategy = errors.New("unknown split point strategy")
)

// Submesh is a run of triangles sharing one material.
type Submesh struct {
	Material string   // Material name, empty when none is assigned
	Indices  []uint32 // Vertex index triples, one per triangle
}

// FaceCount returns the number of triangles in the submesh.
func (s *Submesh) FaceCount() int {
	return len(s.Indices) / 3
}

// Mesh is an indexed triangle mesh with optional per-vertex attribute channels.
//
// Normals, UV2 and UV3 are either nil or exactly as long as Positions.
// A mesh carries at most one texture coordinate dimensionality.
type Mesh struct {
	Name      string
	Positions []math.Vec3
	Normals   []math.Vec3
	UV2       []math.Vec2
	UV3       []math.Vec3
	Submeshes []Submesh
	MtlLib    string // Material library reference carried through untouched
}

// HasNormals reports whether the mesh carries per-vertex normals.
func (m *Mesh) HasNormals() bool {
	return m.Normals != nil
}

// UVDims returns the texture coordinate dimensionality: 0, 2 or 3.
func (m *Mesh) UVDims() int {
	switch {
	case m.UV2 != nil:
		return 2
	case m.UV3 != nil:
		return 3
	default:
		return 0
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// FaceCount returns the total number of triangles across all submeshes.
func (m *Mesh) FaceCount() int {
	n := 0
	for i := range m.Submeshes {
		n += m.Submeshes[i].FaceCount()
	}
	return n
}

// Validate checks the index and attribute channel invariants.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	if m.Normals != nil && len(m.Normals) != n {
		return fmt.Errorf("%w: %d normals for %d vertices", ErrInvalidMesh, len(m.Normals), n)
	}
	if m.UV2 != nil && m.UV3 != nil {
		return fmt.Errorf("%w: both 2D and 3D texture coordinates present", ErrInvalidMesh)
	}
	if m.UV2 != nil && len(m.UV2) != n {
		return fmt.Errorf("%w: %d texture coordinates for %d vertices", ErrInvalidMesh, len(m.UV2), n)
	}
	if m.UV3 != nil && len(m.UV3) != n {
		return fmt.Errorf("%w: %d texture coordinates for %d vertices", ErrInvalidMesh, len(m.UV3), n)
	}
	for i, p := range m.Positions {
		if !p.IsFinite() {
			return fmt.Errorf("%w: vertex %d has a non-finite position", ErrInvalidMesh, i)
		}
	}
	for si := range m.Submeshes {
		idx := m.Submeshes[si].Indices
		if len(idx)%3 != 0 {
			return fmt.Errorf("%w: submesh %d has %d indices, not a multiple of 3", ErrInvalidMesh, si, len(idx))
		}
		for _, v := range idx {
			if int(v) >= n {
				return fmt.Errorf("%w: submesh %d references vertex %d of %d", ErrInvalidMesh, si, v, n)
			}
		}
	}
	return nil
}

// Bounds returns the axis-aligned box around all vertex positions.
func (m *Mesh) Bounds() Bounds {
	return BoundsOf(m.Positions)
}

// Vertex assembles vertex i from the attribute channels that are present.
func (m *Mesh) Vertex(i uint32) Vertex {
	v := Vertex{Position: m.Positions[i]}
	if m.Normals != nil {
		v.Normal = m.Normals[i]
	}
	switch {
	case m.UV2 != nil:
		v.UV = math.Vec3{X: m.UV2[i].X, Y: m.UV2[i].Y}
	case m.UV3 != nil:
		v.UV = m.UV3[i]
	}
	return v
}

// Triangle returns face f of submesh s.
func (m *Mesh) Triangle(s, f int) Triangle {
	idx := m.Submeshes[s].Indices[f*3 : f*3+3]
	return Triangle{m.Vertex(idx[0]), m.Vertex(idx[1]), m.Vertex(idx[2])}
}

// Area returns the summed area of all triangles.
func (m *Mesh) Area() float64 {
	var area float64
	for s := range m.Submeshes {
		for f := 0; f < m.Submeshes[s].FaceCount(); f++ {
			area += m.Triangle(s, f).Area()
		}
	}
	return area
}

// Clone returns a compacted deep copy holding only referenced vertices.
func (m *Mesh) Clone() *Mesh {
	b := newMeshBuilder(m)
	for s := range m.Submeshes {
		idx := m.Submeshes[s].Indices
		for f := 0; f+2 < len(idx); f += 3 {
			b.addFace(s, b.original(idx[f]), b.original(idx[f+1]), b.original(idx[f+2]))
		}
	}
	out := b.build()
	out.Name = m.Name
	return out
}

// Transform returns a copy with positions transformed by t and normals
// rotated by its linear part and renormalized.
func (m *Mesh) Transform(t math.Mat4) *Mesh {
	out := &Mesh{
		Name:      m.Name,
		MtlLib:    m.MtlLib,
		Positions: make([]math.Vec3, len(m.Positions)),
		Submeshes: make([]Submesh, len(m.Submeshes)),
	}
	for i, p := range m.Positions {
		out.Positions[i] = t.TransformPoint(p)
	}
	if m.Normals != nil {
		out.Normals = make([]math.Vec3, len(m.Normals))
		for i, n := range m.Normals {
			out.Normals[i] = t.TransformDirection(n).Normalize()
		}
	}
	if m.UV2 != nil {
		out.UV2 = append([]math.Vec2(nil), m.UV2...)
	}
	if m.UV3 != nil {
		out.UV3 = append([]math.Vec3(nil), m.UV3...)
	}
	for i, s := range m.Submeshes {
		out.Submeshes[i] = Submesh{
			Material: s.Material,
			Indices:  append([]uint32(nil), s.Indices...),
		}
	}
	return out
}
