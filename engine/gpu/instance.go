package gpu

import (
	"encoding/binary"
	"math"
)

// EncodeInstanceDesc writes d into dst using the packed 64-byte instance layout:
// a row-major 3x4 transform, then InstanceID (24 bits) with InstanceMask (8 bits),
// then HitGroupIndex (24 bits) with Flags (8 bits), then the bottom-level address.
//
// Parameters:
//   - dst: destination of at least InstanceDescSize bytes
//   - d: the instance to encode
func EncodeInstanceDesc(dst []byte, d InstanceDesc) {
	_ = dst[InstanceDescSize-1]
	for i, f := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], d.InstanceID&0xffffff|uint32(d.InstanceMask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], d.HitGroupIndex&0xffffff|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelerationStructure)
}

// DecodeInstanceDesc reads one packed instance descriptor from src.
//
// Parameters:
//   - src: source of at least InstanceDescSize bytes
//
// Returns:
//   - InstanceDesc: the decoded instance
func DecodeInstanceDesc(src []byte) InstanceDesc {
	_ = src[InstanceDescSize-1]
	var d InstanceDesc
	for i := range d.Transform {
		d.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	id := binary.LittleEndian.Uint32(src[48:])
	d.InstanceID = id & 0xffffff
	d.InstanceMask = uint8(id >> 24)
	hg := binary.LittleEndian.Uint32(src[52:])
	d.HitGroupIndex = hg & 0xffffff
	d.Flags = uint8(hg >> 24)
	d.AccelerationStructure = binary.LittleEndian.Uint64(src[56:])
	return d
}
