package mesh

import "github.com/Faultbox/meshtiler/pkg/math"

// meshBuilder assembles a compacted mesh from a source mesh. Source vertices
// are copied on first reference, so the result holds no unused vertices.
type meshBuilder struct {
	src   *Mesh
	out   *Mesh
	remap []int32
	cuts  map[edge]uint32
	subs  [][]uint32
}

// edge is a source edge crossing a plane, neg being the negative-side end.
type edge struct {
	neg, pos uint32
}

func newMeshBuilder(src *Mesh) *meshBuilder {
	remap := make([]int32, len(src.Positions))
	for i := range remap {
		remap[i] = -1
	}
	out := &Mesh{MtlLib: src.MtlLib}
	if src.Normals != nil {
		out.Normals = []math.Vec3{}
	}
	switch {
	case src.UV2 != nil:
		out.UV2 = []math.Vec2{}
	case src.UV3 != nil:
		out.UV3 = []math.Vec3{}
	}
	return &meshBuilder{
		src:   src,
		out:   out,
		remap: remap,
		cuts:  make(map[edge]uint32),
		subs:  make([][]uint32, len(src.Submeshes)),
	}
}

// original returns the output index of source vertex i, copying it on first use.
func (b *meshBuilder) original(i uint32) uint32 {
	if j := b.remap[i]; j >= 0 {
		return uint32(j)
	}
	j := b.push(b.src.Vertex(i))
	b.remap[i] = int32(j)
	return j
}

// crossing returns the output index of the intersection vertex on e. The
// vertex is computed once by the caller-supplied function and reused by
// every triangle sharing the edge.
func (b *meshBuilder) crossing(e edge, v func() Vertex) uint32 {
	if j, ok := b.cuts[e]; ok {
		return j
	}
	j := b.push(v())
	b.cuts[e] = j
	return j
}

func (b *meshBuilder) push(v Vertex) uint32 {
	j := uint32(len(b.out.Positions))
	b.out.Positions = append(b.out.Positions, v.Position)
	if b.out.Normals != nil {
		b.out.Normals = append(b.out.Normals, v.Normal)
	}
	switch {
	case b.out.UV2 != nil:
		b.out.UV2 = append(b.out.UV2, math.Vec2{X: v.UV.X, Y: v.UV.Y})
	case b.out.UV3 != nil:
		b.out.UV3 = append(b.out.UV3, v.UV)
	}
	return j
}

func (b *meshBuilder) addFace(sub int, i0, i1, i2 uint32) {
	b.subs[sub] = append(b.subs[sub], i0, i1, i2)
}

// build finalizes the mesh, dropping submeshes that received no faces.
func (b *meshBuilder) build() *Mesh {
	for s, idx := range b.subs {
		if len(idx) == 0 {
			continue
		}
		b.out.Submeshes = append(b.out.Submeshes, Submesh{
			Material: b.src.Submeshes[s].Material,
			Indices:  idx,
		})
	}
	return b.out
}
