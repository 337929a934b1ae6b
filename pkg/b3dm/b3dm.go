// Package b3dm encodes and decodes Batched 3D Model tile containers: a fixed
// 28-byte header followed by feature and batch tables and an opaque model
// payload, each section padded so the next one starts on an 8-byte boundary.
package b3dm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// Container format constants.
const (
	Magic        = "b3dm"
	Version      = 1
	HeaderLength = 28
	Alignment    = 8
)

// padByte fills every section up to the next boundary.
const padByte = ' '

// B3DM format errors.
var (
	ErrInvalidMagic       = errors.New("invalid b3dm magic: expected 'b3dm'")
	ErrUnsupportedVersion = errors.New("unsupported b3dm version")
	ErrTruncatedData      = errors.New("truncated b3dm data")
	ErrSectionOverflow    = errors.New("b3dm section exceeds 32-bit length")
	ErrLengthMismatch     = errors.New("b3dm length mismatch")
)

// Header is the fixed-size container header. All fields are little-endian.
type Header struct {
	Magic                        [4]byte
	Version                      uint32
	ByteLength                   uint32 // Total container length including the header
	FeatureTableJSONByteLength   uint32
	FeatureTableBinaryByteLength uint32
	BatchTableJSONByteLength     uint32
	BatchTableBinaryByteLength   uint32
}

// sectionLength returns the summed length of the four table sections.
func (h Header) sectionLength() uint64 {
	return uint64(h.FeatureTableJSONByteLength) + uint64(h.FeatureTableBinaryByteLength) +
		uint64(h.BatchTableJSONByteLength) + uint64(h.BatchTableBinaryByteLength)
}

// FeatureTableBinaryOffset returns the byte offset of the feature table binary section.
func (h Header) FeatureTableBinaryOffset() uint64 {
	return HeaderLength + uint64(h.FeatureTableJSONByteLength)
}

// BatchTableBinaryOffset returns the byte offset of the batch table binary section.
func (h Header) BatchTableBinaryOffset() uint64 {
	return h.FeatureTableBinaryOffset() + uint64(h.FeatureTableBinaryByteLength) +
		uint64(h.BatchTableJSONByteLength)
}

// PayloadOffset returns the byte offset of the model payload.
func (h Header) PayloadOffset() uint64 {
	return HeaderLength + h.sectionLength()
}

// PayloadLength returns the payload length implied by the header, or 0 when
// the declared sections do not fit in ByteLength.
func (h Header) PayloadLength() uint64 {
	off := h.PayloadOffset()
	if uint64(h.ByteLength) < off {
		return 0
	}
	return uint64(h.ByteLength) - off
}

// Validate reports alignment problems. A container with warnings can still be
// decoded; the list is empty for a compliant header.
func (h Header) Validate() []string {
	var warnings []string
	check := func(name string, off uint64) {
		if off%Alignment != 0 {
			warnings = append(warnings,
				fmt.Sprintf("%s offset %d is not a multiple of %d", name, off, Alignment))
		}
	}
	check("feature table binary", h.FeatureTableBinaryOffset())
	check("batch table binary", h.BatchTableBinaryOffset())
	check("payload", h.PayloadOffset())
	if uint64(h.ByteLength) < h.PayloadOffset() {
		warnings = append(warnings,
			fmt.Sprintf("byte length %d is smaller than the declared sections (%d)", h.ByteLength, h.PayloadOffset()))
	}
	return warnings
}

// Container is a decoded tile. JSON sections hold the table text without
// padding; binary sections and the payload are held as stored.
type Container struct {
	FeatureTableJSON   string
	FeatureTableBinary []byte
	BatchTableJSON     string
	BatchTableBinary   []byte
	Payload            []byte
}

// Encode serializes c. Every section is right-padded with spaces so the next
// section starts at a multiple of 8 from the start of the container, and the
// payload is padded to an 8-byte boundary. Nothing is written when a section
// length overflows the header fields.
func Encode(c *Container) ([]byte, error) {
	sections := [5][]byte{
		[]byte(c.FeatureTableJSON),
		c.FeatureTableBinary,
		[]byte(c.BatchTableJSON),
		c.BatchTableBinary,
		c.Payload,
	}
	var lengths [5]uint64
	for i, s := range sections {
		lengths[i] = uint64(len(s))
	}
	padded, total, err := layout(lengths)
	if err != nil {
		return nil, err
	}

	h := Header{
		Version:                      Version,
		ByteLength:                   uint32(total),
		FeatureTableJSONByteLength:   uint32(padded[0]),
		FeatureTableBinaryByteLength: uint32(padded[1]),
		BatchTableJSONByteLength:     uint32(padded[2]),
		BatchTableBinaryByteLength:   uint32(padded[3]),
	}
	copy(h.Magic[:], Magic)

	buf := bytes.NewBuffer(make([]byte, 0, total))
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	for i, s := range sections {
		buf.Write(s)
		for n := uint64(len(s)); n < padded[i]; n++ {
			buf.WriteByte(padByte)
		}
	}
	return buf.Bytes(), nil
}

// EncodeFile encodes c and writes it to path.
func EncodeFile(path string, c *Container) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing b3dm file: %w", err)
	}
	return nil
}

var sectionNames = [5]string{
	"feature table JSON",
	"feature table binary",
	"batch table JSON",
	"batch table binary",
	"payload",
}

// layout returns the padded length of each section and the total container
// length for the given raw section lengths.
func layout(lengths [5]uint64) (padded [5]uint64, total uint64, err error) {
	total = HeaderLength
	for i, n := range lengths {
		p := n + padding(total+n)
		if p > math.MaxUint32 {
			return padded, 0, fmt.Errorf("%w: %s is %d bytes", ErrSectionOverflow, sectionNames[i], p)
		}
		padded[i] = p
		total += p
	}
	if total > math.MaxUint32 {
		return padded, 0, fmt.Errorf("%w: container is %d bytes", ErrSectionOverflow, total)
	}
	return padded, total, nil
}

// padding returns the bytes needed to move offset to the next boundary.
func padding(offset uint64) uint64 {
	if r := offset % Alignment; r != 0 {
		return Alignment - r
	}
	return 0
}

// ParseHeader reads the fixed header from the start of data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderLength {
		return h, fmt.Errorf("%w: %d bytes, need %d for the header", ErrTruncatedData, len(data), HeaderLength)
	}
	if string(data[0:4]) != Magic {
		return h, ErrInvalidMagic
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderLength]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// Decode parses a container. Sections are read in order using the declared
// lengths; whatever follows them up to ByteLength is the payload. Bytes after
// ByteLength are ignored. A GLB payload is cut to the length in its own
// header; any other payload keeps its padding.
func Decode(data []byte) (*Container, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if uint64(h.ByteLength) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncatedData, h.ByteLength, len(data))
	}
	data = data[:h.ByteLength]
	if h.PayloadOffset() > uint64(h.ByteLength) {
		return nil, fmt.Errorf("%w: sections end at %d past byte length %d", ErrLengthMismatch, h.PayloadOffset(), h.ByteLength)
	}

	r := sectionReader{data: data, offset: HeaderLength}
	c := &Container{
		FeatureTableJSON:   trimJSON(r.next(h.FeatureTableJSONByteLength)),
		FeatureTableBinary: r.next(h.FeatureTableBinaryByteLength),
		BatchTableJSON:     trimJSON(r.next(h.BatchTableJSONByteLength)),
		BatchTableBinary:   r.next(h.BatchTableBinaryByteLength),
	}
	c.Payload = trimPayload(r.next(uint32(h.PayloadLength())))
	return c, nil
}

// glbMagic opens a binary glTF payload; bytes 8..12 hold its total length.
const glbMagic = "glTF"

// trimPayload drops the container padding after a GLB payload. Payloads
// that do not describe their own length are returned unchanged.
func trimPayload(p []byte) []byte {
	if len(p) < 12 || string(p[0:4]) != glbMagic {
		return p
	}
	n := uint64(binary.LittleEndian.Uint32(p[8:12]))
	if n < 12 || n > uint64(len(p)) {
		return p
	}
	for _, b := range p[n:] {
		if b != padByte {
			return p
		}
	}
	return p[:n]
}

// DecodeFile reads and decodes the container at path.
func DecodeFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading b3dm file: %w", err)
	}
	return Decode(data)
}

// ValidateBytes parses the header of data and reports alignment warnings.
// A length field that disagrees with len(data) is also reported.
func ValidateBytes(data []byte) ([]string, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	warnings := h.Validate()
	if uint64(h.ByteLength) != uint64(len(data)) {
		warnings = append(warnings,
			fmt.Sprintf("byte length %d does not match data length %d", h.ByteLength, len(data)))
	}
	return warnings, nil
}

// sectionReader slices consecutive sections out of a bounds-checked buffer.
type sectionReader struct {
	data   []byte
	offset uint64
}

func (r *sectionReader) next(n uint32) []byte {
	if n == 0 {
		return nil
	}
	end := r.offset + uint64(n)
	out := make([]byte, n)
	copy(out, r.data[r.offset:end])
	r.offset = end
	return out
}

func trimJSON(b []byte) string {
	return strings.TrimRight(string(b), " ")
}
