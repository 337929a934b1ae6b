package b3dm

import (
	"encoding/json"
	"fmt"

	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// PayloadEncoder converts a leaf mesh into the opaque model payload carried
// by a container.
type PayloadEncoder interface {
	Encode(m *mesh.Mesh) ([]byte, error)
}

// FeatureTable is the JSON header of the feature table.
type FeatureTable struct {
	BatchLength int       `json:"BATCH_LENGTH"`
	RTCCenter   []float64 `json:"RTC_CENTER,omitempty"`
}

// ParseFeatureTable decodes the feature table JSON of c.
func (c *Container) ParseFeatureTable() (FeatureTable, error) {
	var ft FeatureTable
	if c.FeatureTableJSON == "" {
		return ft, nil
	}
	if err := json.Unmarshal([]byte(c.FeatureTableJSON), &ft); err != nil {
		return ft, fmt.Errorf("parsing feature table: %w", err)
	}
	return ft, nil
}

// NewContainer builds a container holding payload and the feature table ft.
func NewContainer(payload []byte, ft FeatureTable) (*Container, error) {
	text, err := json.Marshal(ft)
	if err != nil {
		return nil, fmt.Errorf("encoding feature table: %w", err)
	}
	return &Container{FeatureTableJSON: string(text), Payload: payload}, nil
}

// EncodeMesh converts m with enc and returns the encoded container bytes.
func EncodeMesh(m *mesh.Mesh, enc PayloadEncoder) ([]byte, error) {
	payload, err := enc.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s: %w", m.Name, err)
	}
	c, err := NewContainer(payload, FeatureTable{})
	if err != nil {
		return nil, err
	}
	return Encode(c)
}
