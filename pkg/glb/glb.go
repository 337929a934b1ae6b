// Package glb writes leaf meshes as binary glTF 2.0 files, the model
// payload carried inside b3dm tiles, and reads them back.
package glb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Magic opens every GLB file.
const Magic = "glTF"

// Vertex attribute names.
const (
	AttributePosition  = "POSITION"
	AttributeNormal    = "NORMAL"
	AttributeTexcoord0 = "TEXCOORD_0"
)

// GLB errors.
var (
	ErrInvalidMagic = errors.New("invalid GLB magic: expected 'glTF'")
	ErrEmptyMesh    = errors.New("mesh has no faces")
	ErrNoMesh       = errors.New("glTF document has no such mesh")
)

var (
	// zUpToYUp rotates Z-up coordinates into the Y-up frame glTF requires.
	zUpToYUp = math.FromBasis(math.Vec3{X: 1}, math.Vec3{Z: -1}, math.Vec3{Y: 1}, math.Vec3{})
	// yUpToZUp undoes zUpToYUp.
	yUpToZUp = math.FromBasis(math.Vec3{X: 1}, math.Vec3{Z: 1}, math.Vec3{Y: -1}, math.Vec3{})
)

// Encoder converts meshes to GLB.
type Encoder struct {
	Generator string // Written to asset.generator
	ZUp       bool   // Source is Z-up; rotate into glTF's Y-up frame
}

// Encode returns m as a GLB file with one primitive per submesh.
func (e Encoder) Encode(m *mesh.Mesh) ([]byte, error) {
	doc, err := e.Document(m)
	if err != nil {
		return nil, err
	}
	return Write(doc)
}

// Document builds the glTF document for m. All primitives share one set of
// vertex accessors and differ in indices and material.
func (e Encoder) Document(m *mesh.Mesh) (*gltf.Document, error) {
	if m.FaceCount() == 0 {
		return nil, ErrEmptyMesh
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if e.ZUp {
		m = m.Transform(zUpToYUp)
	}

	doc := gltf.NewDocument()
	doc.Asset = gltf.Asset{Version: "2.0", Generator: e.Generator}
	doc.Scene = gltf.Index(0)
	doc.Scenes = []*gltf.Scene{{Nodes: []int{0}}}
	doc.Nodes = []*gltf.Node{{Name: m.Name, Mesh: gltf.Index(0)}}

	attrs := map[string]int{
		AttributePosition: modeler.WritePosition(doc, vec3s(m.Positions)),
	}
	if m.HasNormals() {
		attrs[AttributeNormal] = modeler.WriteNormal(doc, vec3s(m.Normals))
	}
	switch m.UVDims() {
	case 2:
		attrs[AttributeTexcoord0] = modeler.WriteTextureCoord(doc, uv2s(m.UV2))
	case 3:
		attrs[AttributeTexcoord0] = modeler.WriteTextureCoord(doc, uv3s(m.UV3))
	}

	gm := &gltf.Mesh{Name: m.Name}
	materials := make(map[string]int)
	for _, s := range m.Submeshes {
		if len(s.Indices) == 0 {
			continue
		}
		mat, ok := materials[s.Material]
		if !ok {
			mat = addMaterial(doc, s.Material)
			materials[s.Material] = mat
		}
		gm.Primitives = append(gm.Primitives, &gltf.Primitive{
			Attributes: attrs,
			Indices:    gltf.Index(modeler.WriteIndices(doc, s.Indices)),
			Material:   gltf.Index(mat),
			Mode:       gltf.PrimitiveTriangles,
		})
	}
	doc.Meshes = []*gltf.Mesh{gm}
	return doc, nil
}

// addMaterial appends a neutral grey material and returns its index.
func addMaterial(doc *gltf.Document, name string) int {
	color := [4]float64{0.8, 0.8, 0.8, 1}
	metallic, roughness := 0.0, 1.0
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name:        name,
		DoubleSided: true,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &color,
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	})
	return len(doc.Materials) - 1
}

// Write encodes doc as GLB with its first buffer as the BIN chunk.
func Write(doc *gltf.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding GLB: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a GLB file.
func Parse(data []byte) (*gltf.Document, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, ErrInvalidMagic
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding GLB: %w", err)
	}
	return doc, nil
}

// ToMesh converts mesh i of doc back into a mesh with one submesh per
// triangle primitive. With zUp set the result is rotated from glTF's Y-up
// frame into Z-up.
func ToMesh(doc *gltf.Document, i int, zUp bool) (*mesh.Mesh, error) {
	if i < 0 || i >= len(doc.Meshes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoMesh, i, len(doc.Meshes))
	}
	gm := doc.Meshes[i]
	r := &meshReader{doc: doc, m: &mesh.Mesh{Name: gm.Name}, bases: make(map[int]uint32)}

	for pi, p := range gm.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			return nil, fmt.Errorf("primitive %d: mode %v is not triangles", pi, p.Mode)
		}
		base, count, err := r.vertices(p.Attributes)
		if err != nil {
			return nil, fmt.Errorf("primitive %d: %w", pi, err)
		}

		var idx []uint32
		if p.Indices != nil {
			acr, err := r.accessor(*p.Indices)
			if err != nil {
				return nil, fmt.Errorf("primitive %d: %w", pi, err)
			}
			if idx, err = modeler.ReadIndices(doc, acr, nil); err != nil {
				return nil, fmt.Errorf("primitive %d: reading indices: %w", pi, err)
			}
		} else {
			idx = make([]uint32, count)
			for k := range idx {
				idx[k] = uint32(k)
			}
		}
		for k := range idx {
			idx[k] += base
		}

		sub := mesh.Submesh{Indices: idx}
		if p.Material != nil && *p.Material < len(doc.Materials) {
			sub.Material = doc.Materials[*p.Material].Name
		}
		r.m.Submeshes = append(r.m.Submeshes, sub)
	}

	m := r.finish()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if zUp {
		m = m.Transform(yUpToZUp)
	}
	return m, nil
}

// meshReader appends each distinct vertex accessor set once.
type meshReader struct {
	doc   *gltf.Document
	m     *mesh.Mesh
	bases map[int]uint32
}

func (r *meshReader) accessor(i int) (*gltf.Accessor, error) {
	if i < 0 || i >= len(r.doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", i)
	}
	return r.doc.Accessors[i], nil
}

// vertices returns the index of the first vertex read from attrs and the
// number of vertices it holds.
func (r *meshReader) vertices(attrs map[string]int) (uint32, int, error) {
	pi, ok := attrs[AttributePosition]
	if !ok {
		return 0, 0, fmt.Errorf("no %s attribute", AttributePosition)
	}
	acr, err := r.accessor(pi)
	if err != nil {
		return 0, 0, err
	}
	if base, ok := r.bases[pi]; ok {
		return base, acr.Count, nil
	}

	base := len(r.m.Positions)
	pos, err := modeler.ReadPosition(r.doc, acr, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("reading positions: %w", err)
	}
	for _, p := range pos {
		r.m.Positions = append(r.m.Positions, math.Vec3{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
	}

	if ni, ok := attrs[AttributeNormal]; ok {
		acr, err := r.accessor(ni)
		if err != nil {
			return 0, 0, err
		}
		normals, err := modeler.ReadNormal(r.doc, acr, nil)
		if err != nil {
			return 0, 0, fmt.Errorf("reading normals: %w", err)
		}
		if len(normals) != len(pos) {
			return 0, 0, fmt.Errorf("%d normals for %d positions", len(normals), len(pos))
		}
		r.m.Normals = grow(r.m.Normals, base)
		for _, n := range normals {
			r.m.Normals = append(r.m.Normals, math.Vec3{X: float64(n[0]), Y: float64(n[1]), Z: float64(n[2])})
		}
	}

	if ti, ok := attrs[AttributeTexcoord0]; ok {
		acr, err := r.accessor(ti)
		if err != nil {
			return 0, 0, err
		}
		uvs, err := modeler.ReadTextureCoord(r.doc, acr, nil)
		if err != nil {
			return 0, 0, fmt.Errorf("reading texture coordinates: %w", err)
		}
		if len(uvs) != len(pos) {
			return 0, 0, fmt.Errorf("%d texture coordinates for %d positions", len(uvs), len(pos))
		}
		r.m.UV2 = grow(r.m.UV2, base)
		for _, t := range uvs {
			r.m.UV2 = append(r.m.UV2, math.Vec2{X: float64(t[0]), Y: float64(t[1])})
		}
	}

	r.bases[pi] = uint32(base)
	return uint32(base), len(pos), nil
}

// finish zero-fills channels that only some primitives carried.
func (r *meshReader) finish() *mesh.Mesh {
	n := len(r.m.Positions)
	if r.m.Normals != nil {
		r.m.Normals = grow(r.m.Normals, n)
	}
	if r.m.UV2 != nil {
		r.m.UV2 = grow(r.m.UV2, n)
	}
	return r.m
}

func grow[T any](s []T, n int) []T {
	var zero T
	for len(s) < n {
		s = append(s, zero)
	}
	return s
}

func vec3s(v []math.Vec3) [][3]float32 {
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
	}
	return out
}

func uv2s(v []math.Vec2) [][2]float32 {
	out := make([][2]float32, len(v))
	for i, t := range v {
		out[i] = [2]float32{float32(t.X), float32(t.Y)}
	}
	return out
}

// uv3s keeps the first two components; glTF texture coordinates are 2D.
func uv3s(v []math.Vec3) [][2]float32 {
	out := make([][2]float32, len(v))
	for i, t := range v {
		out[i] = [2]float32{float32(t.X), float32(t.Y)}
	}
	return out
}
