// Package heap creates GPU resources and fills them through transient upload buffers.
//
// Every upload follows the same path: a default-heap resource is created in COPY_DEST, a
// same-sized upload-heap buffer receives the bytes on the CPU, the command list records a
// copy from one to the other and a barrier into the target state. The upload buffer lives
// until the fence value of the submission that copies out of it has completed.
package heap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

var (
	// ErrStaleHandle is returned for handles whose resource was released.
	ErrStaleHandle = errors.New("heap: stale resource handle")
	// ErrInvalidUpload is returned for malformed upload descriptions.
	ErrInvalidUpload = errors.New("heap: invalid upload")
)

// Kind selects how an upload is sized and which state it ends in by default.
type Kind uint8

const (
	KindVertex Kind = iota
	KindIndex
	KindConstant
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindIndex:
		return "index"
	case KindConstant:
		return "constant"
	case KindTexture:
		return "texture"
	}
	return "unknown"
}

// defaultState is the state a kind ends in when UploadDesc.TargetState is Common.
func (k Kind) defaultState() gpu.ResourceState {
	switch k {
	case KindIndex:
		return gpu.ResourceStateIndexBuffer
	case KindTexture:
		return gpu.ResourceStatePixelShaderResource
	}
	return gpu.ResourceStateVertexAndConstantBuffer
}

// TextureDesc describes the 2D texture a KindTexture upload creates.
type TextureDesc struct {
	Width  uint32
	Height uint32
	Format gpu.Format
}

// UploadDesc describes one upload. Data holds tightly packed bytes; for textures that
// means rows of Width*bpp/8 bytes.
type UploadDesc struct {
	Label       string
	Kind        Kind
	Data        []byte
	Size        uint64
	TargetState gpu.ResourceState
	Texture     *TextureDesc
}

// Handle names a resource owned by a Manager. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("heap#%d.%d", h.index, h.generation)
}

type entry struct {
	res        gpu.Resource
	state      gpu.ResourceState
	generation uint32
	live       bool
}

type upload struct {
	res   gpu.Resource
	value uint64
}

// manager is the implementation of the Manager interface.
type manager struct {
	device gpu.Device

	mu      sync.Mutex
	entries []entry
	free    []uint32
	uploads []upload
}

// Manager owns default-heap resources and the upload buffers that fill them.
type Manager interface {
	// UploadResource creates a default-heap resource, fills it from desc.Data through a
	// transient upload buffer and records the copy and final barrier into list.
	//
	// Parameters:
	//   - list: a command list in the recording state
	//   - desc: what to create and upload
	//
	// Returns:
	//   - Handle: the new resource
	//   - error: ErrInvalidUpload for malformed descriptions, or the device error
	UploadResource(list gpu.CommandList, desc UploadDesc) (Handle, error)

	// UploadBuffer uploads data into a buffer that ends in state.
	UploadBuffer(list gpu.CommandList, label string, data []byte, state gpu.ResourceState) (Handle, error)

	// UploadVertices uploads a vertex buffer that ends in VERTEX_AND_CONSTANT_BUFFER.
	UploadVertices(list gpu.CommandList, label string, data []byte) (Handle, error)

	// UploadIndices uploads an index buffer that ends in INDEX_BUFFER.
	UploadIndices(list gpu.CommandList, label string, data []byte) (Handle, error)

	// UploadTexture uploads tightly packed pixels into a 2D texture that ends in
	// PIXEL_SHADER_RESOURCE.
	UploadTexture(list gpu.CommandList, label string, tex TextureDesc, pixels []byte) (Handle, error)

	// Resource returns the resource behind h.
	Resource(h Handle) (gpu.Resource, error)

	// State returns the state h will be in once the recorded commands execute.
	State(h Handle) (gpu.ResourceState, error)

	// Transition records a barrier moving h into state. Nothing is recorded when h is
	// already in state.
	Transition(list gpu.CommandList, h Handle, state gpu.ResourceState) error

	// Readback records a copy of the first size bytes of buffer h into a new
	// readback-heap buffer. The bytes are valid once the list has executed.
	Readback(list gpu.CommandList, h Handle, size uint64) (*ReadbackBuffer, error)

	// MarkSubmitted tags every upload buffer recorded since the last call with the fence
	// value that will signal completion of the submission that reads it.
	MarkSubmitted(value uint64)

	// Retire releases upload buffers whose fence value is at most completed.
	//
	// Returns:
	//   - int: the number of buffers released
	Retire(completed uint64) int

	// PendingUploads reports how many upload buffers are still alive.
	PendingUploads() int

	// ReleaseUploads releases every upload buffer. The caller guarantees the GPU is idle.
	ReleaseUploads()

	// Release frees the resource behind h and invalidates h.
	Release(h Handle) error

	// ReleaseAll frees every resource and upload buffer.
	ReleaseAll()
}

var _ Manager = &manager{}

// NewManager creates a Manager allocating from device.
//
// Parameters:
//   - device: the device resources are created on
//
// Returns:
//   - Manager: the new manager
func NewManager(device gpu.Device) Manager {
	return &manager{device: device}
}

func (m *manager) UploadResource(list gpu.CommandList, desc UploadDesc) (Handle, error) {
	size := desc.Size
	if size == 0 {
		size = uint64(len(desc.Data))
	}
	if size == 0 {
		return Handle{}, fmt.Errorf("%w: %q has no data", ErrInvalidUpload, desc.Label)
	}
	if uint64(len(desc.Data)) > size {
		return Handle{}, fmt.Errorf("%w: %q has %d bytes for a %d byte resource", ErrInvalidUpload, desc.Label, len(desc.Data), size)
	}
	target := desc.TargetState
	if target == gpu.ResourceStateCommon {
		target = desc.Kind.defaultState()
	}

	var (
		resDesc    gpu.ResourceDesc
		uploadSize = size
		fp         Footprint
	)
	switch desc.Kind {
	case KindVertex, KindIndex:
		resDesc = gpu.BufferDesc(desc.Label, size, gpu.ResourceFlagNone)
	case KindConstant:
		size = common.AlignUp(size, uint64(gpu.ResourcePlacementAlignment))
		uploadSize = size
		resDesc = gpu.BufferDesc(desc.Label, size, gpu.ResourceFlagNone)
	case KindTexture:
		if desc.Texture == nil {
			return Handle{}, fmt.Errorf("%w: texture upload %q without a texture description", ErrInvalidUpload, desc.Label)
		}
		t := desc.Texture
		var err error
		fp, err = TextureFootprint(t.Width, t.Height, t.Format)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidUpload, desc.Label, err)
		}
		if uint64(len(desc.Data)) != uint64(fp.RowSize)*uint64(t.Height) {
			return Handle{}, fmt.Errorf("%w: %q has %d bytes, %dx%d %s needs %d", ErrInvalidUpload, desc.Label,
				len(desc.Data), t.Width, t.Height, t.Format, uint64(fp.RowSize)*uint64(t.Height))
		}
		uploadSize = fp.TotalSize
		resDesc = gpu.Texture2DDesc(desc.Label, t.Width, t.Height, t.Format, gpu.ResourceFlagNone)
	default:
		return Handle{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidUpload, desc.Kind)
	}

	dst, err := m.device.CreateCommittedResource(gpu.HeapTypeDefault, resDesc, gpu.ResourceStateCopyDest)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create %s resource %q: %w", desc.Kind, desc.Label, err)
	}
	src, err := m.device.CreateCommittedResource(gpu.HeapTypeUpload,
		gpu.BufferDesc(desc.Label+"_upload", uploadSize, gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	if err != nil {
		dst.Release()
		return Handle{}, fmt.Errorf("failed to create upload buffer for %q: %w", desc.Label, err)
	}
	mem, err := src.Map()
	if err != nil {
		src.Release()
		dst.Release()
		return Handle{}, fmt.Errorf("failed to map upload buffer for %q: %w", desc.Label, err)
	}
	if desc.Kind == KindTexture {
		fp.Pack(mem, desc.Data, desc.Texture.Height)
		src.Unmap()
		list.CopyBufferToTexture(dst, src, 0, fp.RowPitch)
	} else {
		copy(mem, desc.Data)
		src.Unmap()
		list.CopyBufferRegion(dst, 0, src, 0, size)
	}
	state := gpu.ResourceStateCopyDest
	if target != state {
		list.ResourceBarrier(gpu.Transition(dst, state, target))
		state = target
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, upload{res: src})
	logger.Logger().Debug("upload recorded", "label", desc.Label, "kind", desc.Kind.String(), "size", size, "uploadSize", uploadSize)
	return m.insert(dst, state), nil
}

func (m *manager) UploadBuffer(list gpu.CommandList, label string, data []byte, state gpu.ResourceState) (Handle, error) {
	return m.UploadResource(list, UploadDesc{Label: label, Kind: KindVertex, Data: data, TargetState: state})
}

func (m *manager) UploadVertices(list gpu.CommandList, label string, data []byte) (Handle, error) {
	return m.UploadResource(list, UploadDesc{Label: label, Kind: KindVertex, Data: data})
}

func (m *manager) UploadIndices(list gpu.CommandList, label string, data []byte) (Handle, error) {
	return m.UploadResource(list, UploadDesc{Label: label, Kind: KindIndex, Data: data})
}

func (m *manager) UploadTexture(list gpu.CommandList, label string, tex TextureDesc, pixels []byte) (Handle, error) {
	return m.UploadResource(list, UploadDesc{Label: label, Kind: KindTexture, Data: pixels, Texture: &tex})
}

// insert stores res in a free slot. Callers hold mu.
func (m *manager) insert(res gpu.Resource, state gpu.ResourceState) Handle {
	if n := len(m.free); n > 0 {
		i := m.free[n-1]
		m.free = m.free[:n-1]
		e := &m.entries[i]
		e.res, e.state, e.live = res, state, true
		return Handle{index: i, generation: e.generation}
	}
	m.entries = append(m.entries, entry{res: res, state: state, generation: 1, live: true})
	return Handle{index: uint32(len(m.entries) - 1), generation: 1}
}

// lookup returns the live entry for h. Callers hold mu.
func (m *manager) lookup(h Handle) (*entry, error) {
	if h.IsZero() || int(h.index) >= len(m.entries) {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	e := &m.entries[h.index]
	if !e.live || e.generation != h.generation {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return e, nil
}

func (m *manager) Resource(h Handle) (gpu.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.res, nil
}

func (m *manager) State(h Handle) (gpu.ResourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return e.state, nil
}

func (m *manager) Transition(list gpu.CommandList, h Handle, state gpu.ResourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(h)
	if err != nil {
		return err
	}
	if e.state == state {
		return nil
	}
	list.ResourceBarrier(gpu.Transition(e.res, e.state, state))
	e.state = state
	return nil
}

func (m *manager) MarkSubmitted(value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.uploads {
		if m.uploads[i].value == 0 {
			m.uploads[i].value = value
		}
	}
}

func (m *manager) Retire(completed uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.uploads[:0]
	released := 0
	for _, u := range m.uploads {
		if u.value != 0 && u.value <= completed {
			u.res.Release()
			released++
			continue
		}
		kept = append(kept, u)
	}
	m.uploads = kept
	if released > 0 {
		logger.Logger().Debug("upload buffers retired", "count", released, "completed", completed)
	}
	return released
}

func (m *manager) PendingUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *manager) ReleaseUploads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.uploads {
		u.res.Release()
	}
	m.uploads = nil
}

func (m *manager) Release(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(h)
	if err != nil {
		return err
	}
	e.res.Release()
	e.res = nil
	e.live = false
	e.generation++
	m.free = append(m.free, h.index)
	return nil
}

func (m *manager) ReleaseAll() {
	m.ReleaseUploads()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		e := &m.entries[i]
		if !e.live {
			continue
		}
		e.res.Release()
		e.res = nil
		e.live = false
		e.generation++
		m.free = append(m.free, uint32(i))
	}
}
