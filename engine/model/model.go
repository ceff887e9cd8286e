package model

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// ErrInvalidMesh is returned when mesh data is inconsistent.
var ErrInvalidMesh = errors.New("model: invalid mesh")

// mesh is the implementation of the Mesh interface.
type mesh struct {
	name        string
	vertices    []Vertex
	indices     []uint32
	vertexData  []byte
	indexData   []byte
	vertexCount uint32
	indexCount  uint32
}

// Mesh is an indexed triangle list of Vertex values ready for upload. The byte views
// are computed once at construction.
type Mesh interface {
	// Name retrieves the mesh identifier.
	//
	// Returns:
	//   - string: the mesh name
	Name() string

	// Vertices returns the vertices of the mesh.
	Vertices() []Vertex

	// Indices returns the 32-bit triangle-list indices.
	Indices() []uint32

	// VertexData returns the raw vertex data, VertexSize bytes per vertex.
	//
	// Returns:
	//   - []byte: the vertex data
	VertexData() []byte

	// IndexData returns the raw index data, 4 bytes per index.
	//
	// Returns:
	//   - []byte: the index data
	IndexData() []byte

	VertexCount() uint32
	IndexCount() uint32
}

var _ Mesh = &mesh{}

// NewMesh builds a Mesh from the given options.
//
// Parameters:
//   - name: the mesh identifier
//   - options: functional options supplying vertex and index data
//
// Returns:
//   - Mesh: the mesh
//   - error: ErrInvalidMesh if there are no vertices, the index count is not a multiple of
//     three or an index is out of range
func NewMesh(name string, options ...MeshBuilderOption) (Mesh, error) {
	m := &mesh{name: name}
	for _, option := range options {
		option(m)
	}
	if len(m.vertices) == 0 {
		return nil, fmt.Errorf("%w: %s has no vertices", ErrInvalidMesh, name)
	}
	if len(m.indices) == 0 {
		m.indices = make([]uint32, len(m.vertices))
		for i := range m.indices {
			m.indices[i] = uint32(i)
		}
	}
	if len(m.indices)%3 != 0 {
		return nil, fmt.Errorf("%w: %s has %d indices, not a triangle list", ErrInvalidMesh, name, len(m.indices))
	}
	for i, idx := range m.indices {
		if int(idx) >= len(m.vertices) {
			return nil, fmt.Errorf("%w: %s index %d references vertex %d of %d", ErrInvalidMesh, name, i, idx, len(m.vertices))
		}
	}
	m.vertexData = common.SliceToBytes(m.vertices)
	m.indexData = common.SliceToBytes(m.indices)
	m.vertexCount = uint32(len(m.vertices))
	m.indexCount = uint32(len(m.indices))
	return m, nil
}

func (m *mesh) Name() string {
	return m.name
}

func (m *mesh) Vertices() []Vertex {
	return m.vertices
}

func (m *mesh) Indices() []uint32 {
	return m.indices
}

func (m *mesh) VertexData() []byte {
	return m.vertexData
}

func (m *mesh) IndexData() []byte {
	return m.indexData
}

func (m *mesh) VertexCount() uint32 {
	return m.vertexCount
}

func (m *mesh) IndexCount() uint32 {
	return m.indexCount
}
