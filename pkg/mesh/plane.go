package mesh

import (
	"fmt"
	gomath "math"
	"strings"
)

// Axis identifies a coordinate axis.
type Axis int

// Axis constants.
const (
	AxisX Axis = 0
	AxisY Axis = 1
	AxisZ Axis = 2
)

// String returns the axis letter.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Valid reports whether a names one of the three axes.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

// SplitPlane is the plane coordinate[Axis] = Offset.
type SplitPlane struct {
	Axis   Axis
	Offset float64
}

// Validate rejects unknown axes and non-finite offsets.
func (p SplitPlane) Validate() error {
	if !p.Axis.Valid() {
		return fmt.Errorf("%w: unknown axis %s", ErrInvalidPlane, p.Axis)
	}
	if gomath.IsNaN(p.Offset) || gomath.IsInf(p.Offset, 0) {
		return fmt.Errorf("%w: offset %v", ErrInvalidPlane, p.Offset)
	}
	return nil
}

// String returns e.g. "X=5".
func (p SplitPlane) String() string {
	return fmt.Sprintf("%s=%g", p.Axis, p.Offset)
}

// AxisMode selects how many axes are cut at each recursion level.
type AxisMode int

// Axis modes. The value is the number of axes cut per level.
const (
	AxisXY  AxisMode = 2 // Quadtree: X then Y
	AxisXYZ AxisMode = 3 // Octree: X, Y then Z
)

// Axes returns the number of axes cut per level.
func (m AxisMode) Axes() int {
	return int(m)
}

// Children returns the maximum fan-out per level.
func (m AxisMode) Children() int {
	return 1 << m.Axes()
}

// Valid reports whether m is AxisXY or AxisXYZ.
func (m AxisMode) Valid() bool {
	return m == AxisXY || m == AxisXYZ
}

// String returns "XY" or "XYZ".
func (m AxisMode) String() string {
	switch m {
	case AxisXY:
		return "XY"
	case AxisXYZ:
		return "XYZ"
	default:
		return fmt.Sprintf("AxisMode(%d)", int(m))
	}
}

// ParseAxisMode parses "xy" or "xyz", case-insensitively.
func ParseAxisMode(s string) (AxisMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xy":
		return AxisXY, nil
	case "xyz":
		return AxisXYZ, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAxisMode, s)
	}
}
