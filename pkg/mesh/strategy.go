package mesh

import (
	"fmt"
	"strings"

	"github.com/Faultbox/meshtiler/pkg/math"
)

// SplitPointStrategy picks the point through which a mesh is cut. It sees
// only the mesh of the current recursion level.
type SplitPointStrategy func(m *Mesh) math.Vec3

// AbsoluteCenter returns the center of the mesh bounding box.
func AbsoluteCenter(m *Mesh) math.Vec3 {
	return m.Bounds().Center()
}

// VertexBarycenter returns the mean position over all face corners, so a
// vertex shared by k triangles is counted k times. Dense regions pull the
// split point toward them and tiles come out with similar face counts.
func VertexBarycenter(m *Mesh) math.Vec3 {
	var sum math.Vec3
	n := 0
	for s := range m.Submeshes {
		for _, i := range m.Submeshes[s].Indices {
			sum = sum.Add(m.Positions[i])
			n++
		}
	}
	if n == 0 {
		return math.Vec3{}
	}
	return sum.Scale(1 / float64(n))
}

// ParseStrategy maps a configuration name to a strategy.
// Accepted names: "center" (or "absolute") and "barycenter" (or "vertex").
func ParseStrategy(name string) (SplitPointStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "center", "absolute":
		return AbsoluteCenter, nil
	case "barycenter", "vertex":
		return VertexBarycenter, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
