package mesh

import "github.com/Faultbox/meshtiler/pkg/math"

// Bounds is an axis-aligned bounding box. Min <= Max on every axis; a box
// around a single point has Min == Max.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// BoundsOf returns the box around the given points. An empty slice yields
// the zero box at the origin.
func BoundsOf(points []math.Vec3) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b
}

// Contains reports whether every face of other lies within b, inclusive.
func (b Bounds) Contains(other Bounds) bool {
	return b.ContainsPoint(other.Min) && b.ContainsPoint(other.Max)
}

// ContainsPoint reports whether p lies within b, inclusive.
func (b Bounds) ContainsPoint(p math.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Center returns the midpoint of the box.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extent along each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Bounds) Diagonal() float64 {
	return b.Size().Length()
}

// Union returns the smallest box containing both b and other.
func (b Bounds) Union(other Bounds) Bounds {
	return Bounds{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// OverlapsInterior reports whether the open interiors of b and other
// intersect. Boxes that only share a face, edge or corner do not overlap.
func (b Bounds) OverlapsInterior(other Bounds) bool {
	return b.Min.X < other.Max.X && other.Min.X < b.Max.X &&
		b.Min.Y < other.Max.Y && other.Min.Y < b.Max.Y &&
		b.Min.Z < other.Max.Z && other.Min.Z < b.Max.Z
}
