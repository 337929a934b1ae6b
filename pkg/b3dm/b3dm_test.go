package b3dm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

// createTestB3DM writes a header followed by the given raw sections.
func createTestB3DM(h Header, sections ...[]byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &h)
	for _, s := range sections {
		buf.Write(s)
	}
	return buf.Bytes()
}

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i + 1)
	}
	return p
}

func TestEncode_BatchLengthScenario(t *testing.T) {
	c := &Container{
		FeatureTableJSON: `{"BATCH_LENGTH":0}`,
		Payload:          testPayload(37),
	}

	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(data) != 88 {
		t.Fatalf("len(data) = %d, want 88", len(data))
	}
	if string(data[0:4]) != "b3dm" {
		t.Errorf("magic = %q, want %q", data[0:4], "b3dm")
	}

	fields := []struct {
		name   string
		offset int
		want   uint32
	}{
		{"version", 4, 1},
		{"byteLength", 8, 88},
		{"featureTableJSONByteLength", 12, 20},
		{"featureTableBinaryByteLength", 16, 0},
		{"batchTableJSONByteLength", 20, 0},
		{"batchTableBinaryByteLength", 24, 0},
	}
	for _, f := range fields {
		got := binary.LittleEndian.Uint32(data[f.offset:])
		if got != f.want {
			t.Errorf("%s = %d, want %d", f.name, got, f.want)
		}
	}

	if got := string(data[28:48]); got != `{"BATCH_LENGTH":0}  ` {
		t.Errorf("feature table = %q", got)
	}
	if !bytes.Equal(data[48:85], c.Payload) {
		t.Error("payload bytes not stored verbatim at offset 48")
	}
	if got := string(data[85:]); got != "   " {
		t.Errorf("payload padding = %q, want three spaces", got)
	}
}

func TestEncode_SectionAlignment(t *testing.T) {
	tests := []struct {
		name string
		c    Container
	}{
		{"empty", Container{}},
		{"json only", Container{FeatureTableJSON: `{"BATCH_LENGTH":3}`}},
		{"all sections", Container{
			FeatureTableJSON:   `{"BATCH_LENGTH":2,"RTC_CENTER":[1,2,3]}`,
			FeatureTableBinary: testPayload(5),
			BatchTableJSON:     `{"id":[1,2]}`,
			BatchTableBinary:   testPayload(13),
			Payload:            testPayload(101),
		}},
		{"aligned payload", Container{FeatureTableJSON: "{}", Payload: testPayload(64)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(&tt.c)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(data)%Alignment != 0 {
				t.Errorf("len(data) = %d, not a multiple of %d", len(data), Alignment)
			}

			h, err := ParseHeader(data)
			if err != nil {
				t.Fatalf("ParseHeader failed: %v", err)
			}
			if int(h.ByteLength) != len(data) {
				t.Errorf("ByteLength = %d, want %d", h.ByteLength, len(data))
			}
			if w := h.Validate(); len(w) != 0 {
				t.Errorf("Validate() = %v, want no warnings", w)
			}

			sum := HeaderLength + h.sectionLength() + h.PayloadLength()
			if sum != uint64(h.ByteLength) {
				t.Errorf("header + sections + payload = %d, want %d", sum, h.ByteLength)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	orig := &Container{
		FeatureTableJSON:   `{"BATCH_LENGTH":2}`,
		FeatureTableBinary: testPayload(8),
		BatchTableJSON:     `{"name":["a","b"]}`,
		BatchTableBinary:   testPayload(16),
		Payload:            testPayload(48),
	}

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.FeatureTableJSON != orig.FeatureTableJSON {
		t.Errorf("FeatureTableJSON = %q, want %q", got.FeatureTableJSON, orig.FeatureTableJSON)
	}
	if got.BatchTableJSON != orig.BatchTableJSON {
		t.Errorf("BatchTableJSON = %q, want %q", got.BatchTableJSON, orig.BatchTableJSON)
	}
	if !bytes.Equal(got.FeatureTableBinary, orig.FeatureTableBinary) {
		t.Error("FeatureTableBinary changed")
	}
	if !bytes.Equal(got.BatchTableBinary, orig.BatchTableBinary) {
		t.Error("BatchTableBinary changed")
	}
	if !bytes.Equal(got.Payload, orig.Payload) {
		t.Error("Payload changed")
	}

	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("Encode(Decode(data)) differs from data")
	}
}

func TestRoundTrip_UnalignedPayload(t *testing.T) {
	orig := &Container{FeatureTableJSON: `{"BATCH_LENGTH":0}`, Payload: testPayload(37)}

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(got.Payload) != 40 {
		t.Fatalf("len(Payload) = %d, want 40", len(got.Payload))
	}
	if !bytes.Equal(got.Payload[:37], orig.Payload) {
		t.Error("payload prefix changed")
	}
	if string(got.Payload[37:]) != "   " {
		t.Errorf("payload padding = %q", got.Payload[37:])
	}

	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("Encode(Decode(data)) differs from data")
	}
}

func TestDecode_Errors(t *testing.T) {
	valid, err := Encode(&Container{FeatureTableJSON: "{}", Payload: testPayload(16)})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "i3dm")

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 2)

	sectionsTooLong := createTestB3DM(Header{
		Magic:                      [4]byte{'b', '3', 'd', 'm'},
		Version:                    1,
		ByteLength:                 36,
		FeatureTableJSONByteLength: 16,
	}, []byte("        "))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedData},
		{"short header", valid[:20], ErrTruncatedData},
		{"bad magic", badMagic, ErrInvalidMagic},
		{"bad version", badVersion, ErrUnsupportedVersion},
		{"truncated body", valid[:len(valid)-8], ErrTruncatedData},
		{"sections past end", sectionsTooLong, ErrLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	orig := &Container{FeatureTableJSON: `{"BATCH_LENGTH":0}`, Payload: testPayload(16)}
	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// The container sits at the start of a larger buffer.
	buf := append(append([]byte(nil), data...), 'x', 'y', 'z', 0)
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.FeatureTableJSON != orig.FeatureTableJSON {
		t.Errorf("FeatureTableJSON = %q, want %q", got.FeatureTableJSON, orig.FeatureTableJSON)
	}
	if !bytes.Equal(got.Payload, orig.Payload) {
		t.Errorf("Payload = %v, want %v", got.Payload, orig.Payload)
	}
}

// glbPayload returns a minimal GLB-shaped payload of n bytes.
func glbPayload(n int) []byte {
	p := make([]byte, n)
	copy(p, "glTF")
	binary.LittleEndian.PutUint32(p[4:], 2)
	binary.LittleEndian.PutUint32(p[8:], uint32(n))
	for i := 12; i < n; i++ {
		p[i] = byte(i)
	}
	return p
}

func TestRoundTrip_GLBPayload(t *testing.T) {
	orig := &Container{FeatureTableJSON: `{"BATCH_LENGTH":0}`, Payload: glbPayload(20)}

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 72 {
		t.Fatalf("len(data) = %d, want 72", len(data))
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got.Payload, orig.Payload) {
		t.Errorf("Payload = %v, want %v", got.Payload, orig.Payload)
	}

	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("Encode(Decode(data)) differs from data")
	}
}

func TestTrimPayload(t *testing.T) {
	glb := glbPayload(20)
	padded := append(append([]byte(nil), glb...), ' ', ' ', ' ', ' ')

	badLength := append([]byte(nil), padded...)
	binary.LittleEndian.PutUint32(badLength[8:], 99)

	dirtyPadding := append([]byte(nil), padded...)
	dirtyPadding[22] = 'x'

	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"padded glb", padded, 20},
		{"exact glb", glb, 20},
		{"length past end", badLength, 24},
		{"non-space after glb", dirtyPadding, 24},
		{"opaque", testPayload(24), 24},
		{"short", []byte("glTF"), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(trimPayload(tt.in)); got != tt.want {
				t.Errorf("len(trimPayload()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayout_Overflow(t *testing.T) {
	tests := []struct {
		name    string
		lengths [5]uint64
	}{
		{"payload", [5]uint64{0, 0, 0, 0, math.MaxUint32}},
		{"feature table", [5]uint64{math.MaxUint32 + 1, 0, 0, 0, 0}},
		{"total", [5]uint64{1 << 31, 0, 0, 0, 1 << 31}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := layout(tt.lengths)
			if !errors.Is(err, ErrSectionOverflow) {
				t.Errorf("layout() error = %v, want %v", err, ErrSectionOverflow)
			}
		})
	}

	if _, total, err := layout([5]uint64{18, 0, 0, 0, 37}); err != nil || total != 88 {
		t.Errorf("layout() = %d, %v, want 88, nil", total, err)
	}
}

func TestHeaderValidate_Misaligned(t *testing.T) {
	h := Header{
		Magic:                        [4]byte{'b', '3', 'd', 'm'},
		Version:                      1,
		FeatureTableJSONByteLength:   18,
		FeatureTableBinaryByteLength: 4,
		BatchTableJSONByteLength:     8,
		BatchTableBinaryByteLength:   2,
	}
	h.ByteLength = uint32(h.PayloadOffset()) + 37

	warnings := h.Validate()
	if len(warnings) != 3 {
		t.Fatalf("Validate() returned %d warnings, want 3: %v", len(warnings), warnings)
	}
	for i, prefix := range []string{"feature table binary offset 46", "batch table binary offset 58", "payload offset 60"} {
		if !strings.HasPrefix(warnings[i], prefix) {
			t.Errorf("warning %d = %q, want prefix %q", i, warnings[i], prefix)
		}
	}

	// Misaligned containers still decode.
	data := createTestB3DM(h,
		[]byte(`{"BATCH_LENGTH":0}`),
		testPayload(4),
		[]byte(`{}      `),
		testPayload(2),
		testPayload(37),
	)
	c, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c.BatchTableJSON != "{}" {
		t.Errorf("BatchTableJSON = %q, want %q", c.BatchTableJSON, "{}")
	}
	if len(c.Payload) != 37 {
		t.Errorf("len(Payload) = %d, want 37", len(c.Payload))
	}

	vw, err := ValidateBytes(data)
	if err != nil {
		t.Fatalf("ValidateBytes failed: %v", err)
	}
	if len(vw) != 3 {
		t.Errorf("ValidateBytes() returned %d warnings, want 3", len(vw))
	}
}

func TestValidateBytes_LengthMismatch(t *testing.T) {
	data, _ := Encode(&Container{FeatureTableJSON: "{}"})
	data = append(data, make([]byte, 8)...)

	warnings, err := ValidateBytes(data)
	if err != nil {
		t.Fatalf("ValidateBytes failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "does not match") {
		t.Errorf("ValidateBytes() = %v, want one length warning", warnings)
	}

	if _, err := ValidateBytes([]byte("glTF")); !errors.Is(err, ErrTruncatedData) {
		t.Errorf("ValidateBytes() error = %v, want %v", err, ErrTruncatedData)
	}
}

func TestEncodeFile_DecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.b3dm")
	c := &Container{FeatureTableJSON: `{"BATCH_LENGTH":0}`, Payload: testPayload(24)}

	if err := EncodeFile(path, c); err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	if !bytes.Equal(got.Payload, c.Payload) {
		t.Error("payload changed through file round trip")
	}

	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.b3dm")); err == nil {
		t.Error("DecodeFile() on missing file returned nil error")
	}
}
