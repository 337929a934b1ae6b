package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	textenc "github.com/Faultbox/meshtiler/pkg/encoding"
	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// OBJ format errors.
var (
	ErrInvalidOBJ         = errors.New("invalid OBJ data")
	ErrOBJIndexOutOfRange = errors.New("OBJ index out of range")
)

// objCorner is one face corner: 0-based indices into the v, vt and vn
// lists, -1 when absent.
type objCorner struct {
	v, vt, vn int
}

// objDecoder accumulates OBJ statements into an indexed mesh. Each distinct
// v/vt/vn combination becomes one mesh vertex.
type objDecoder struct {
	line      int
	positions []math.Vec3
	texcoords []math.Vec3
	uvDims    int
	normals   []math.Vec3

	corners   map[objCorner]uint32
	order     []objCorner
	hasVT     bool
	hasVN     bool
	submeshes []mesh.Submesh
	current   int // Submesh receiving faces, -1 before the first face
	materials map[string]int
	mtlLib    string
	name      string
}

func newOBJDecoder() *objDecoder {
	return &objDecoder{
		corners:   make(map[objCorner]uint32),
		materials: make(map[string]int),
		current:   -1,
	}
}

// ParseOBJ parses a UTF-8 Wavefront OBJ document. Polygons are triangulated
// as fans around their first corner. Object, group and smoothing statements
// are accepted and ignored.
func ParseOBJ(data []byte) (*mesh.Mesh, error) {
	return ReadOBJ(bytes.NewReader(data), nil)
}

// ParseOBJFile parses the OBJ file at path. encodingName selects the code
// page of the file; empty means UTF-8.
func ParseOBJFile(path, encodingName string) (*mesh.Mesh, error) {
	enc, err := textenc.Lookup(encodingName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening OBJ file: %w", err)
	}
	defer f.Close()
	return ReadOBJ(f, enc)
}

// ReadOBJ parses OBJ text from r decoded with enc. A nil enc means UTF-8.
func ReadOBJ(r io.Reader, enc encoding.Encoding) (*mesh.Mesh, error) {
	if enc == nil {
		enc, _ = textenc.Lookup("")
	}
	dec := newOBJDecoder()
	sc := bufio.NewScanner(textenc.NewReader(r, enc))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		dec.line++
		if err := dec.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}
	return dec.build(), nil
}

func (d *objDecoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidOBJ, d.line, fmt.Sprintf(format, args...))
}

func (d *objDecoder) parseLine(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		p, _, err := d.parseVec(fields[1:], 3, 3)
		if err != nil {
			return err
		}
		d.positions = append(d.positions, p)
	case "vn":
		n, _, err := d.parseVec(fields[1:], 3, 3)
		if err != nil {
			return err
		}
		d.normals = append(d.normals, n)
	case "vt":
		uv, n, err := d.parseVec(fields[1:], 1, 3)
		if err != nil {
			return err
		}
		if n == 3 {
			d.uvDims = 3
		}
		d.texcoords = append(d.texcoords, uv)
	case "f":
		return d.parseFace(fields[1:])
	case "usemtl":
		name := ""
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		d.useMaterial(name)
	case "mtllib":
		if len(fields) < 2 {
			return d.errorf("mtllib with no file name")
		}
		d.mtlLib = strings.Join(fields[1:], " ")
	case "o":
		if d.name == "" && len(fields) > 1 {
			d.name = strings.Join(fields[1:], " ")
		}
	}
	// g, s, l, p and vendor statements carry nothing the mesh keeps.
	return nil
}

// parseVec reads between lo and hi floats; missing trailing components are zero.
func (d *objDecoder) parseVec(fields []string, lo, hi int) (math.Vec3, int, error) {
	if len(fields) < lo {
		return math.Vec3{}, 0, d.errorf("expected at least %d values, got %d", lo, len(fields))
	}
	var c [3]float64
	n := 0
	for i, f := range fields {
		if i == hi {
			break
		}
		val, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return math.Vec3{}, 0, d.errorf("bad number %q", f)
		}
		c[i] = val
		n++
	}
	return math.Vec3{X: c[0], Y: c[1], Z: c[2]}, n, nil
}

func (d *objDecoder) useMaterial(name string) {
	if i, ok := d.materials[name]; ok {
		d.current = i
		return
	}
	d.materials[name] = len(d.submeshes)
	d.current = len(d.submeshes)
	d.submeshes = append(d.submeshes, mesh.Submesh{Material: name})
}

// parseFace handles f v1[/vt1][/vn1] v2[/vt2][/vn2] v3[/vt3][/vn3] ...
func (d *objDecoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return d.errorf("face with %d corners", len(fields))
	}
	if d.current < 0 {
		d.useMaterial("")
	}

	idx := make([]uint32, len(fields))
	for i, f := range fields {
		c, err := d.parseCorner(f)
		if err != nil {
			return err
		}
		idx[i] = d.vertex(c)
	}

	sub := &d.submeshes[d.current]
	for i := 2; i < len(idx); i++ {
		sub.Indices = append(sub.Indices, idx[0], idx[i-1], idx[i])
	}
	return nil
}

func (d *objDecoder) parseCorner(field string) (objCorner, error) {
	c := objCorner{v: -1, vt: -1, vn: -1}
	parts := strings.Split(field, "/")
	if len(parts) > 3 {
		return c, d.errorf("bad face corner %q", field)
	}

	var err error
	if c.v, err = d.resolve(parts[0], len(d.positions)); err != nil {
		return c, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.vt, err = d.resolve(parts[1], len(d.texcoords)); err != nil {
			return c, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.vn, err = d.resolve(parts[2], len(d.normals)); err != nil {
			return c, err
		}
	}
	return c, nil
}

// resolve converts a 1-based or negative relative OBJ index to 0-based.
func (d *objDecoder) resolve(s string, count int) (int, error) {
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, d.errorf("bad index %q", s)
	}
	switch {
	case val > 0:
		val--
	case val < 0:
		val += count
	default:
		return 0, d.errorf("index 0")
	}
	if val < 0 || val >= count {
		return 0, fmt.Errorf("%w: line %d: %s of %d", ErrOBJIndexOutOfRange, d.line, s, count)
	}
	return val, nil
}

func (d *objDecoder) vertex(c objCorner) uint32 {
	if i, ok := d.corners[c]; ok {
		return i
	}
	i := uint32(len(d.order))
	d.corners[c] = i
	d.order = append(d.order, c)
	d.hasVT = d.hasVT || c.vt >= 0
	d.hasVN = d.hasVN || c.vn >= 0
	return i
}

// build assembles the mesh. Channels are present when any corner references
// them; corners without a reference get zero values.
func (d *objDecoder) build() *mesh.Mesh {
	m := &mesh.Mesh{
		Name:      d.name,
		MtlLib:    d.mtlLib,
		Positions: make([]math.Vec3, len(d.order)),
	}
	if d.hasVN {
		m.Normals = make([]math.Vec3, len(d.order))
	}
	if d.hasVT {
		if d.uvDims == 3 {
			m.UV3 = make([]math.Vec3, len(d.order))
		} else {
			m.UV2 = make([]math.Vec2, len(d.order))
		}
	}

	for i, c := range d.order {
		m.Positions[i] = d.positions[c.v]
		if c.vn >= 0 {
			m.Normals[i] = d.normals[c.vn]
		}
		if c.vt >= 0 {
			uv := d.texcoords[c.vt]
			if m.UV3 != nil {
				m.UV3[i] = uv
			} else {
				m.UV2[i] = math.Vec2{X: uv.X, Y: uv.Y}
			}
		}
	}

	for _, s := range d.submeshes {
		if len(s.Indices) > 0 {
			m.Submeshes = append(m.Submeshes, s)
		}
	}
	return m
}

// WriteOBJ writes m as OBJ text with one usemtl block per submesh.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	if m.Name != "" {
		fmt.Fprintf(bw, "o %s\n", m.Name)
	}
	if m.MtlLib != "" {
		fmt.Fprintf(bw, "mtllib %s\n", m.MtlLib)
	}
	for _, p := range m.Positions {
		fmt.Fprintf(bw, "v %s %s %s\n", ftoa(p.X), ftoa(p.Y), ftoa(p.Z))
	}
	for _, uv := range m.UV2 {
		fmt.Fprintf(bw, "vt %s %s\n", ftoa(uv.X), ftoa(uv.Y))
	}
	for _, uv := range m.UV3 {
		fmt.Fprintf(bw, "vt %s %s %s\n", ftoa(uv.X), ftoa(uv.Y), ftoa(uv.Z))
	}
	for _, n := range m.Normals {
		fmt.Fprintf(bw, "vn %s %s %s\n", ftoa(n.X), ftoa(n.Y), ftoa(n.Z))
	}

	hasUV, hasN := m.UVDims() > 0, m.HasNormals()
	corner := func(i uint32) string {
		s := strconv.FormatUint(uint64(i)+1, 10)
		switch {
		case hasUV && hasN:
			return s + "/" + s + "/" + s
		case hasUV:
			return s + "/" + s
		case hasN:
			return s + "//" + s
		default:
			return s
		}
	}
	for _, s := range m.Submeshes {
		if s.Material != "" {
			fmt.Fprintf(bw, "usemtl %s\n", s.Material)
		}
		for f := 0; f+2 < len(s.Indices); f += 3 {
			fmt.Fprintf(bw, "f %s %s %s\n", corner(s.Indices[f]), corner(s.Indices[f+1]), corner(s.Indices[f+2]))
		}
	}
	return bw.Flush()
}

// WriteOBJFile writes m to path.
func WriteOBJFile(path string, m *mesh.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating OBJ file: %w", err)
	}
	if err := WriteOBJ(f, m); err != nil {
		f.Close()
		return fmt.Errorf("writing OBJ file: %w", err)
	}
	return f.Close()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
