package model

// MeshBuilderOption is a functional option for configuring a Mesh during construction.
type MeshBuilderOption func(*mesh)

// WithVertices sets the vertices of the mesh. The slice is copied.
//
// Parameters:
//   - vertices: the vertex data
//
// Returns:
//   - MeshBuilderOption: functional option to set the vertices
func WithVertices(vertices []Vertex) MeshBuilderOption {
	return func(m *mesh) {
		m.vertices = append([]Vertex(nil), vertices...)
	}
}

// WithIndices sets the triangle-list indices of the mesh. The slice is copied. Without
// indices every three vertices form a triangle.
//
// Parameters:
//   - indices: the index data
//
// Returns:
//   - MeshBuilderOption: functional option to set the indices
func WithIndices(indices []uint32) MeshBuilderOption {
	return func(m *mesh) {
		m.indices = append([]uint32(nil), indices...)
	}
}
