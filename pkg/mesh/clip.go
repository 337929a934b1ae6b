package mesh

import "github.com/Faultbox/meshtiler/pkg/math"

// Vertex is one triangle corner with all of its attributes. UV holds 2D
// texture coordinates in X and Y when the mesh has UV2.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec3
}

// Lerp interpolates every attribute by the same parameter t.
func (v Vertex) Lerp(other Vertex, t float64) Vertex {
	return Vertex{
		Position: v.Position.Lerp(other.Position, t),
		Normal:   v.Normal.Lerp(other.Normal, t),
		UV:       v.UV.Lerp(other.UV, t),
	}
}

// Triangle is three vertices in winding order.
type Triangle [3]Vertex

// Area returns the triangle area.
func (t Triangle) Area() float64 {
	e1 := t[1].Position.Sub(t[0].Position)
	e2 := t[2].Position.Sub(t[0].Position)
	return e1.Cross(e2).Length() / 2
}

// ClipResult holds the pieces of one triangle on each side of a plane.
type ClipResult struct {
	Negative []Triangle
	Positive []Triangle
}

// Count returns the total number of output triangles: 1 when the triangle
// lies on one side, 3 when the plane crosses two of its edges, and 2 when the
// plane passes through one vertex and the opposite edge.
func (r ClipResult) Count() int {
	return len(r.Negative) + len(r.Positive)
}

// ClipTriangle cuts tri by plane.
//
// Vertices with signed distance <= 0 count as negative. A triangle that only
// touches the plane stays whole on the side it lies in. A triangle crossing
// the plane through two edges becomes one triangle on the minority side and
// two on the majority side; one crossing through a vertex on the plane
// becomes one triangle per side.
func ClipTriangle(tri Triangle, plane SplitPlane) (ClipResult, error) {
	if err := plane.Validate(); err != nil {
		return ClipResult{}, err
	}
	axis := int(plane.Axis)

	var d [3]float64
	for i := range tri {
		d[i] = tri[i].Position.Component(axis) - plane.Offset
	}

	resolve := func(c corner) Vertex {
		if !c.cut {
			return tri[c.a]
		}
		return intersect(tri[c.a], tri[c.b], d[c.a], d[c.b], axis, plane.Offset)
	}

	var res ClipResult
	p := planClip(d)
	for _, f := range p.negative {
		res.Negative = append(res.Negative, Triangle{resolve(f[0]), resolve(f[1]), resolve(f[2])})
	}
	for _, f := range p.positive {
		res.Positive = append(res.Positive, Triangle{resolve(f[0]), resolve(f[1]), resolve(f[2])})
	}
	return res, nil
}

// corner references either an input vertex a, or the point where edge a-b
// crosses the plane. For cuts, a is always the vertex on the negative side.
type corner struct {
	a, b int
	cut  bool
}

func keep(i int) corner {
	return corner{a: i, b: i}
}

// clipPlan is the topology of a clip: output triangles as corner triples.
type clipPlan struct {
	negative [][3]corner
	positive [][3]corner
}

// planClip decides the clip topology from the three signed distances.
func planClip(d [3]float64) clipPlan {
	var sign [3]int
	neg, pos := 0, 0
	for i, v := range d {
		switch {
		case v < 0:
			sign[i] = -1
			neg++
		case v > 0:
			sign[i] = 1
			pos++
		}
	}

	whole := [3]corner{keep(0), keep(1), keep(2)}
	if pos == 0 {
		return clipPlan{negative: [][3]corner{whole}}
	}
	if neg == 0 {
		return clipPlan{positive: [][3]corner{whole}}
	}

	cut := func(i, j int) corner {
		if sign[i] < 0 {
			return corner{a: i, b: j, cut: true}
		}
		return corner{a: j, b: i, cut: true}
	}

	var plan clipPlan
	add := func(side int, f [3]corner) {
		if side < 0 {
			plan.negative = append(plan.negative, f)
		} else {
			plan.positive = append(plan.positive, f)
		}
	}

	// One vertex on the plane, the other two on opposite sides.
	if neg+pos == 2 {
		k := 0
		for sign[k] != 0 {
			k++
		}
		i, j := (k+1)%3, (k+2)%3
		x := cut(i, j)
		add(sign[i], [3]corner{keep(k), keep(i), x})
		add(sign[j], [3]corner{keep(k), x, keep(j)})
		return plan
	}

	// Find the vertex alone on its side.
	m := 0
	for i := range sign {
		if (sign[i] < 0 && neg == 1) || (sign[i] > 0 && pos == 1) {
			m = i
			break
		}
	}
	p, q := (m+1)%3, (m+2)%3
	x := cut(m, p)
	y := cut(m, q)

	add(sign[m], [3]corner{keep(m), x, y})
	add(sign[p], [3]corner{x, keep(p), keep(q)})
	add(sign[p], [3]corner{x, keep(q), y})
	return plan
}

// intersect returns the point where the edge from a (negative side) to b
// (positive side) crosses the plane. The same t interpolates all attributes
// and the cut coordinate is pinned to the plane offset.
func intersect(a, b Vertex, da, db float64, axis int, offset float64) Vertex {
	t := da / (da - db)
	v := a.Lerp(b, t)
	// Rounding must not push the point outside the edge, or it could cross
	// a plane cut at an earlier level.
	lo := a.Position.Min(b.Position)
	hi := a.Position.Max(b.Position)
	v.Position = v.Position.Max(lo).Min(hi).WithComponent(axis, offset)
	return v
}
