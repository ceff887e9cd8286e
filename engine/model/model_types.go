package model

import "unsafe"

// Vertex is a position followed by a texture coordinate, matching the default raster
// input layout.
type Vertex struct {
	Position [3]float32
	TexCoord [2]float32
}

// VertexSize is the byte size of one Vertex.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// face builds the four corners of one cube face. Corners are ordered top-left,
// bottom-right, bottom-left, top-right.
func face(tl, br, bl, tr [3]float32) []Vertex {
	return []Vertex{
		{Position: tl, TexCoord: [2]float32{0, 0}},
		{Position: br, TexCoord: [2]float32{1, 1}},
		{Position: bl, TexCoord: [2]float32{0, 1}},
		{Position: tr, TexCoord: [2]float32{1, 0}},
	}
}

// Cube returns the unit cube centered on the origin: 24 vertices, four per face so
// every face has its own texture coordinates, and 36 indices.
//
// Returns:
//   - Mesh: the cube mesh
func Cube() Mesh {
	var vertices []Vertex
	// front
	vertices = append(vertices, face([3]float32{-0.5, 0.5, -0.5}, [3]float32{0.5, -0.5, -0.5}, [3]float32{-0.5, -0.5, -0.5}, [3]float32{0.5, 0.5, -0.5})...)
	// right
	vertices = append(vertices, face([3]float32{0.5, -0.5, -0.5}, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, -0.5, 0.5}, [3]float32{0.5, 0.5, -0.5})...)
	// left
	vertices = append(vertices, face([3]float32{-0.5, 0.5, 0.5}, [3]float32{-0.5, -0.5, -0.5}, [3]float32{-0.5, -0.5, 0.5}, [3]float32{-0.5, 0.5, -0.5})...)
	// back
	vertices = append(vertices, face([3]float32{0.5, 0.5, 0.5}, [3]float32{-0.5, -0.5, 0.5}, [3]float32{0.5, -0.5, 0.5}, [3]float32{-0.5, 0.5, 0.5})...)
	// top
	vertices = append(vertices, face([3]float32{-0.5, 0.5, -0.5}, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, -0.5}, [3]float32{-0.5, 0.5, 0.5})...)
	// bottom
	vertices = append(vertices, face([3]float32{0.5, -0.5, 0.5}, [3]float32{-0.5, -0.5, -0.5}, [3]float32{0.5, -0.5, -0.5}, [3]float32{-0.5, -0.5, 0.5})...)

	indices := make([]uint32, 0, 36)
	for f := uint32(0); f < 6; f++ {
		base := f * 4
		indices = append(indices, base, base+1, base+2, base, base+3, base+1)
	}

	m, err := NewMesh("cube", WithVertices(vertices), WithIndices(indices))
	if err != nil {
		panic(err)
	}
	return m
}
