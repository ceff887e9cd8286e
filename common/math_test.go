package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(uint64(0), 256))
	assert.Equal(t, uint64(256), AlignUp(uint64(1), 256))
	assert.Equal(t, uint64(256), AlignUp(uint64(256), 256))
	assert.Equal(t, uint64(65536), AlignUp(uint64(65535), 65536))
	assert.Equal(t, uint64(131072), AlignUp(uint64(65537), 65536))
	assert.Equal(t, uint32(64), AlignUp(uint32(40), 32))
}

func TestMul4Identity(t *testing.T) {
	m := BuildModelMatrix([3]float32{1, 2, 3}, [3]float32{0.3, 0.2, 0.1}, [3]float32{2, 2, 2})
	assert.Equal(t, m, Mul4(Identity4(), m))
	assert.Equal(t, m, Mul4(m, Identity4()))
}

func TestBuildModelMatrixTranslation(t *testing.T) {
	m := BuildModelMatrix([3]float32{1.5, 0, 0}, [3]float32{}, [3]float32{1, 1, 1})
	expected := Identity4()
	expected[12] = 1.5
	assert.Equal(t, expected, m)
}

func TestAffine3x4RowMajor(t *testing.T) {
	m := Identity4()
	m[12], m[13], m[14] = 4, 5, 6

	a := Affine3x4(m)
	assert.Equal(t, [12]float32{
		1, 0, 0, 4,
		0, 1, 0, 5,
		0, 0, 1, 6,
	}, a)
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := [3]float32{0, 0, -5}
	v := LookAt(eye, [3]float32{0, 0, 0}, [3]float32{0, 1, 0})

	// transform the eye position; it must land on the view-space origin
	x := v[0]*eye[0] + v[4]*eye[1] + v[8]*eye[2] + v[12]
	y := v[1]*eye[0] + v[5]*eye[1] + v[9]*eye[2] + v[13]
	z := v[2]*eye[0] + v[6]*eye[1] + v[10]*eye[2] + v[14]
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(math32.Pi/4, 1, 0.1, 100)
	depth := func(z float32) float32 {
		clipZ := p[10]*z + p[14]
		clipW := p[11] * z
		return clipZ / clipW
	}
	assert.InDelta(t, 0, depth(0.1), 1e-5)
	assert.InDelta(t, 1, depth(100), 1e-4)
}

func TestTransformMatrix(t *testing.T) {
	tr := NewTransform(1, 2, 3)
	tr.Translate(1, 0, 0)
	m := tr.Matrix()
	assert.Equal(t, float32(2), m[12])
	assert.Equal(t, float32(2), m[13])
	assert.Equal(t, float32(3), m[14])
}

func TestNameOr(t *testing.T) {
	assert.Equal(t, "vulkan", NameOr("", "vulkan"))
	assert.Equal(t, "vulkan", NameOr("  \t", "vulkan"))
	assert.Equal(t, "dx12", NameOr(" DX12\n", "vulkan"))
	assert.Equal(t, "", NameOr("", ""))
}
