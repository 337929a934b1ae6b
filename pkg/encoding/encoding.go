// Package encoding converts mesh source text written in legacy code pages to
// UTF-8. Exporters from older modeling tools write OBJ and MTL files with
// material and group names in the system code page.
package encoding

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for names not in the WHATWG encoding index.
var ErrUnknownEncoding = errors.New("unknown text encoding")

// Lookup resolves an encoding by its WHATWG label, e.g. "euc-kr",
// "shift_jis" or "windows-1252". An empty name selects UTF-8.
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	if enc == unicode.UTF8 {
		return unicode.UTF8BOM, nil
	}
	return enc, nil
}

// Name returns the canonical label of enc.
func Name(enc encoding.Encoding) string {
	if enc == unicode.UTF8BOM {
		return "utf-8"
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "unknown"
	}
	return name
}

// NewReader wraps r so that it yields UTF-8 decoded from enc. A leading
// UTF-8 byte order mark is dropped.
func NewReader(r io.Reader, enc encoding.Encoding) io.Reader {
	return transform.NewReader(r, enc.NewDecoder())
}

// ToUTF8 decodes data from enc. Returns the input unchanged if decoding fails.
func ToUTF8(enc encoding.Encoding, data []byte) string {
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// FromUTF8 encodes s into enc. Returns the input bytes if encoding fails.
func FromUTF8(enc encoding.Encoding, s string) []byte {
	result, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}
