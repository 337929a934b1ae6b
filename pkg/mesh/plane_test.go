package mesh

import (
	"errors"
	"testing"

	"github.com/Faultbox/meshtiler/pkg/math"
)

func TestParseAxisMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AxisMode
		wantErr bool
	}{
		{"xy", AxisXY, false},
		{"XY", AxisXY, false},
		{" xyz ", AxisXYZ, false},
		{"xz", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAxisMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAxisMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidAxisMode) {
			t.Errorf("ParseAxisMode(%q) error should wrap ErrInvalidAxisMode", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseAxisMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAxisMode_Children(t *testing.T) {
	if AxisXY.Children() != 4 {
		t.Errorf("AxisXY.Children() = %d, want 4", AxisXY.Children())
	}
	if AxisXYZ.Children() != 8 {
		t.Errorf("AxisXYZ.Children() = %d, want 8", AxisXYZ.Children())
	}
	if AxisMode(5).Valid() {
		t.Error("AxisMode(5) should be invalid")
	}
}

func TestSplitPlane_String(t *testing.T) {
	p := SplitPlane{Axis: AxisZ, Offset: 2.5}
	if p.String() != "Z=2.5" {
		t.Errorf("String() = %q, want %q", p.String(), "Z=2.5")
	}
	if Axis(9).String() != "Axis(9)" {
		t.Errorf("unexpected name for unknown axis: %s", Axis(9))
	}
}

func TestStrategies(t *testing.T) {
	// Square of side 8 made of two triangles sharing the diagonal 0-3.
	m := &Mesh{
		Positions: []math.Vec3{{X: 0}, {X: 8}, {X: 0, Y: 8}, {X: 8, Y: 8}},
		Submeshes: []Submesh{{Indices: []uint32{0, 1, 3, 0, 3, 2}}},
	}

	if got := AbsoluteCenter(m); got != (math.Vec3{X: 4, Y: 4}) {
		t.Errorf("AbsoluteCenter = %v, want (4, 4, 0)", got)
	}

	// Corners: 0,1,3,0,3,2 -> X sum 0+8+8+0+8+0 = 24, Y sum 0+0+8+0+8+8 = 24
	if got := VertexBarycenter(m); !almostEqual(got.X, 4) || !almostEqual(got.Y, 4) || got.Z != 0 {
		t.Errorf("VertexBarycenter = %v, want (4, 4, 0)", got)
	}

	skewed := &Mesh{
		Positions: []math.Vec3{{X: 0}, {X: 1}, {X: 0, Y: 1}, {X: 10}},
		Submeshes: []Submesh{{Indices: []uint32{0, 1, 2, 1, 3, 2}}},
	}
	// X sum 0+1+0+1+10+0 = 12 over 6 corners
	if got := VertexBarycenter(skewed); !almostEqual(got.X, 2) {
		t.Errorf("VertexBarycenter X = %v, want 2", got.X)
	}
	if got := AbsoluteCenter(skewed); got.X != 5 {
		t.Errorf("AbsoluteCenter X = %v, want 5", got.X)
	}

	if got := VertexBarycenter(&Mesh{}); got != (math.Vec3{}) {
		t.Errorf("VertexBarycenter of empty mesh = %v, want origin", got)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"", "center", "Absolute", "barycenter", "vertex"} {
		if _, err := ParseStrategy(name); err != nil {
			t.Errorf("ParseStrategy(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseStrategy("median"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}
