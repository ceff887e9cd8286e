package heap

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// ConstantBuffer is a persistently mapped upload-heap buffer split into per-object regions.
// Each region starts on a 256-byte boundary so its address can be bound as a root
// constant-buffer view, and the resource itself is sized in 64KB steps.
type ConstantBuffer struct {
	res    gpu.Resource
	mapped []byte
	stride uint64
	count  int
}

// NewConstantBuffer allocates count regions of at least objectSize bytes each.
//
// Parameters:
//   - device: the device to allocate on
//   - label: debug name
//   - objectSize: bytes one object writes
//   - count: number of regions
//
// Returns:
//   - *ConstantBuffer: the mapped buffer
//   - error: if the sizes are zero or the allocation fails
func NewConstantBuffer(device gpu.Device, label string, objectSize uint64, count int) (*ConstantBuffer, error) {
	if objectSize == 0 || count <= 0 {
		return nil, fmt.Errorf("%w: constant buffer %q needs a non-zero object size and count", ErrInvalidUpload, label)
	}
	stride := common.AlignUp(objectSize, uint64(gpu.ConstantBufferAlignment))
	size := common.AlignUp(stride*uint64(count), uint64(gpu.ResourcePlacementAlignment))
	res, err := device.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc(label, size, gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	if err != nil {
		return nil, fmt.Errorf("failed to create constant buffer %q: %w", label, err)
	}
	mapped, err := res.Map()
	if err != nil {
		res.Release()
		return nil, fmt.Errorf("failed to map constant buffer %q: %w", label, err)
	}
	return &ConstantBuffer{res: res, mapped: mapped, stride: stride, count: count}, nil
}

// Write copies data into region i.
//
// Parameters:
//   - i: the region index
//   - data: at most Stride bytes
//
// Returns:
//   - error: if i is out of range or data does not fit
func (c *ConstantBuffer) Write(i int, data []byte) error {
	if i < 0 || i >= c.count {
		return fmt.Errorf("constant buffer region %d out of range [0,%d)", i, c.count)
	}
	if uint64(len(data)) > c.stride {
		return fmt.Errorf("constant buffer region holds %d bytes, got %d", c.stride, len(data))
	}
	at := uint64(i) * c.stride
	copy(c.mapped[at:at+uint64(len(data))], data)
	return nil
}

// Address is the GPU virtual address of region i.
func (c *ConstantBuffer) Address(i int) uint64 {
	return c.res.GPUVirtualAddress() + uint64(i)*c.stride
}

// Stride is the distance between regions, a multiple of 256.
func (c *ConstantBuffer) Stride() uint64 {
	return c.stride
}

// Count is the number of regions.
func (c *ConstantBuffer) Count() int {
	return c.count
}

// Size is the size of the underlying resource.
func (c *ConstantBuffer) Size() uint64 {
	return c.res.Desc().Width
}

// Resource returns the underlying upload-heap buffer.
func (c *ConstantBuffer) Resource() gpu.Resource {
	return c.res
}

// Release unmaps and frees the buffer.
func (c *ConstantBuffer) Release() {
	if c.res == nil {
		return
	}
	c.res.Unmap()
	c.res.Release()
	c.res = nil
	c.mapped = nil
}
