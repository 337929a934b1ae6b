// Package formats reads and writes the mesh file formats handled by the
// tiler: Wavefront OBJ sources and binary tile containers.
package formats

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies a file format.
type Format int

// Known formats.
const (
	FormatUnknown Format = iota
	FormatOBJ
	FormatB3DM
	FormatGLB
)

// String returns the conventional file extension without the dot.
func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "obj"
	case FormatB3DM:
		return "b3dm"
	case FormatGLB:
		return "glb"
	default:
		return "unknown"
	}
}

// Detect identifies a format from the leading bytes of a file, falling back
// to the file name extension for text formats.
func Detect(name string, head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte("b3dm")):
		return FormatB3DM
	case bytes.HasPrefix(head, []byte("glTF")):
		return FormatGLB
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".obj":
		return FormatOBJ
	case ".b3dm":
		return FormatB3DM
	case ".glb":
		return FormatGLB
	}
	return FormatUnknown
}
