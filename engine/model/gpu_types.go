package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// ObjectConstants is the per-object constant block read by the raster vertex shader
// (the ObjectConstants uniform of cube.wgsl). Size: 64 bytes.
type ObjectConstants struct {
	WVP common.Mat4 // offset 0: projection * view * world (mat4x4<f32>)
}

// Size returns the size of the ObjectConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (o *ObjectConstants) Size() int {
	return int(unsafe.Sizeof(*o))
}

// Marshal serializes the constants into a byte buffer suitable for a constant-buffer write.
//
// Returns:
//   - []byte: the serialized byte buffer
func (o *ObjectConstants) Marshal() []byte {
	buf := make([]byte, o.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(o.WVP[i]))
	}
	return buf
}
