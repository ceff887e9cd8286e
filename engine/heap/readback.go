package heap

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// ReadbackBuffer is a readback-heap copy of a buffer. Its bytes are valid once the
// command list that recorded the copy has executed.
type ReadbackBuffer struct {
	res  gpu.Resource
	size uint64
}

// Bytes returns a copy of the read-back data.
func (r *ReadbackBuffer) Bytes() ([]byte, error) {
	mem, err := r.res.Map()
	if err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	defer r.res.Unmap()
	out := make([]byte, r.size)
	copy(out, mem)
	return out, nil
}

// Release frees the readback buffer.
func (r *ReadbackBuffer) Release() {
	r.res.Release()
}

func (m *manager) Readback(list gpu.CommandList, h Handle, size uint64) (*ReadbackBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	desc := e.res.Desc()
	if desc.Dimension != gpu.DimensionBuffer {
		return nil, fmt.Errorf("%q: %w: only buffers can be read back", desc.Label, gpu.ErrUnsupported)
	}
	if size == 0 || size > desc.Width {
		return nil, fmt.Errorf("%q: readback size %d out of range (1..%d)", desc.Label, size, desc.Width)
	}
	res, err := m.device.CreateCommittedResource(gpu.HeapTypeReadback,
		gpu.BufferDesc(desc.Label+"_readback", size, gpu.ResourceFlagNone), gpu.ResourceStateCopyDest)
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer for %q: %w", desc.Label, err)
	}
	state := e.state
	if state != gpu.ResourceStateCopySource {
		list.ResourceBarrier(gpu.Transition(e.res, state, gpu.ResourceStateCopySource))
	}
	list.CopyBufferRegion(res, 0, e.res, 0, size)
	if state != gpu.ResourceStateCopySource {
		list.ResourceBarrier(gpu.Transition(e.res, gpu.ResourceStateCopySource, state))
	}
	return &ReadbackBuffer{res: res, size: size}, nil
}
