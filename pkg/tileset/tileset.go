// Package tileset builds the 3D Tiles tileset.json manifest that indexes the
// b3dm tiles produced by a split.
package tileset

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Refinement strategies.
const (
	RefineAdd     = "ADD"
	RefineReplace = "REPLACE"
)

// Tileset is the root of a tileset.json document.
type Tileset struct {
	Asset          Asset   `json:"asset"`
	GeometricError float64 `json:"geometricError"`
	Root           Tile    `json:"root"`
}

// Asset describes the tileset.
type Asset struct {
	Version      string `json:"version"`
	GenerateTool string `json:"generatetool,omitempty"`
	GltfUpAxis   string `json:"gltfUpAxis,omitempty"`
}

// BoundingVolume holds one of the 3D Tiles volume forms.
type BoundingVolume struct {
	Box    []float64 `json:"box,omitempty"`
	Sphere []float64 `json:"sphere,omitempty"`
	Region []float64 `json:"region,omitempty"`
}

// Content references a tile payload.
type Content struct {
	URI string `json:"uri"`
}

// Tile is a node of the tile tree.
type Tile struct {
	BoundingVolume BoundingVolume `json:"boundingVolume"`
	GeometricError float64        `json:"geometricError"`
	Refine         string         `json:"refine,omitempty"`
	Transform      []float64      `json:"transform,omitempty"`
	Content        *Content       `json:"content,omitempty"`
	Children       []Tile         `json:"children,omitempty"`
}

// Box converts bounds to the 12-number box form: center followed by the
// three half-axis vectors.
func Box(b mesh.Bounds) []float64 {
	c := b.Center()
	h := b.Size().Scale(0.5)
	return []float64{
		c.X, c.Y, c.Z,
		h.X, 0, 0,
		0, h.Y, 0,
		0, 0, h.Z,
	}
}

// Options controls manifest generation.
type Options struct {
	Transform    math.Mat4 // Root transform; zero or identity is omitted
	Extension    string    // Content file extension, defaults to ".b3dm"
	GenerateTool string    // Written to asset.generatetool
	GltfUpAxis   string    // Set when payloads are not Y-up, e.g. "Z"
}

// node is an interior or leaf position in the split tree.
type node struct {
	bounds   mesh.Bounds
	leaf     *mesh.Tile
	children map[int]*node
}

func (n *node) insert(t *mesh.Tile, depth int) {
	n.bounds = n.bounds.Union(t.Bounds)
	if depth == len(t.Path) {
		n.leaf = t
		return
	}
	if n.children == nil {
		n.children = make(map[int]*node)
	}
	c, ok := n.children[t.Path[depth]]
	if !ok {
		c = &node{bounds: t.Bounds}
		n.children[t.Path[depth]] = c
	}
	c.insert(t, depth+1)
}

// Build creates a manifest mirroring the split tree of tiles. Interior nodes
// carry no content and use the diagonal of their bounds as geometric error;
// leaves have zero error.
func Build(tiles []mesh.Tile, opts Options) (*Tileset, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles to index")
	}
	if opts.Extension == "" {
		opts.Extension = ".b3dm"
	}

	root := &node{}
	for i := range tiles {
		if i == 0 {
			root.bounds = tiles[i].Bounds
		}
		root.insert(&tiles[i], 0)
	}

	rt := convert(root, opts)
	rt.Refine = RefineAdd
	if opts.Transform != (math.Mat4{}) && !opts.Transform.IsIdentity() {
		rt.Transform = opts.Transform.Slice()
	}
	return &Tileset{
		Asset: Asset{
			Version:      "1.0",
			GenerateTool: opts.GenerateTool,
			GltfUpAxis:   opts.GltfUpAxis,
		},
		GeometricError: root.bounds.Diagonal(),
		Root:           rt,
	}, nil
}

func convert(n *node, opts Options) Tile {
	t := Tile{BoundingVolume: BoundingVolume{Box: Box(n.bounds)}}
	if n.leaf != nil {
		t.Content = &Content{URI: n.leaf.Name + opts.Extension}
	}
	if len(n.children) == 0 {
		return t
	}
	t.GeometricError = n.bounds.Diagonal()
	keys := make([]int, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		t.Children = append(t.Children, convert(n.children[k], opts))
	}
	return t
}

// WriteFile writes ts as indented JSON.
func (ts *Tileset) WriteFile(path string) error {
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tileset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing tileset: %w", err)
	}
	return nil
}

// ReadFile loads a tileset.json document.
func ReadFile(path string) (*Tileset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tileset: %w", err)
	}
	var ts Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("parsing tileset: %w", err)
	}
	return &ts, nil
}

// Leaves returns the content URIs of all tiles in depth-first order.
func (ts *Tileset) Leaves() []string {
	var out []string
	var walk func(t *Tile)
	walk = func(t *Tile) {
		if t.Content != nil {
			out = append(out, t.Content.URI)
		}
		for i := range t.Children {
			walk(&t.Children[i])
		}
	}
	walk(&ts.Root)
	return out
}
