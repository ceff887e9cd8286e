// Package gpu defines the explicit graphics API the engine core is written against.
//
// The model is a command-list API: resources live in typed heaps and are moved between
// access states with barriers, work is recorded into command lists backed by per-frame
// allocators, and the CPU synchronizes with the GPU through monotonically increasing fence
// values. Backends live in sub-packages: sim is an in-memory device used by tests and
// headless runs, halgpu drives real adapters through gogpu/wgpu.
package gpu

import "errors"

var (
	// ErrUnsupported is returned when a backend cannot perform an operation.
	ErrUnsupported = errors.New("gpu: operation not supported by backend")
	// ErrDeviceRemoved is returned after the device has been released or lost.
	ErrDeviceRemoved = errors.New("gpu: device removed")
	// ErrInvalidState is returned when a barrier's before state does not match the resource.
	ErrInvalidState = errors.New("gpu: resource state mismatch")
	// ErrNotMappable is returned when mapping a default-heap resource.
	ErrNotMappable = errors.New("gpu: resource is not CPU-visible")
	// ErrOutOfMemory is returned when a heap allocation fails.
	ErrOutOfMemory = errors.New("gpu: out of memory")
	// ErrNotRecording is returned when recording into a closed command list.
	ErrNotRecording = errors.New("gpu: command list is not recording")
	// ErrAllocatorInUse is returned when resetting an allocator whose lists the GPU has not finished.
	ErrAllocatorInUse = errors.New("gpu: command allocator in use")
)

// Releaser is implemented by every GPU object with an explicit lifetime.
type Releaser interface {
	Release()
}

// Device creates every GPU object and owns their memory.
type Device interface {
	Releaser

	// FeatureLevel reports the feature level the device was created at.
	FeatureLevel() FeatureLevel

	// RaytracingTier reports the level of ray-tracing support.
	RaytracingTier() RaytracingTier

	CreateCommandQueue() (CommandQueue, error)
	CreateCommandAllocator() (CommandAllocator, error)

	// CreateCommandList creates a list in the recording state against alloc.
	CreateCommandList(alloc CommandAllocator, initial PipelineState) (CommandList, error)

	// CreateFence creates a fence whose completed value starts at initial.
	CreateFence(initial uint64) (Fence, error)

	// CreateCommittedResource allocates a resource with its own backing memory.
	CreateCommittedResource(heap HeapType, desc ResourceDesc, initial ResourceState) (Resource, error)

	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)

	// CreateView writes a view descriptor into dst.
	CreateView(view ViewDesc, dst CPUDescriptorHandle) error

	// DescriptorHandleIncrementSize is the stride between descriptors of a heap type.
	DescriptorHandleIncrementSize(t DescriptorHeapType) uint32

	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)
	CreateGraphicsPipelineState(desc *GraphicsPipelineDesc) (PipelineState, error)

	// CreateStateObject builds a ray-tracing pipeline. Returns ErrUnsupported when the
	// raytracing tier is RaytracingTierNotSupported.
	CreateStateObject(desc *StateObjectDesc) (StateObject, error)

	// AccelerationStructurePrebuildInfo reports the buffer sizes a build will need.
	AccelerationStructurePrebuildInfo(inputs *ASInputs) (PrebuildInfo, error)

	// CreateSwapChain creates a swapchain presenting to the window through queue.
	CreateSwapChain(queue CommandQueue, window WindowHandle, desc SwapChainDesc) (SwapChain, error)
}

// CommandQueue executes command lists in submission order and signals fences.
type CommandQueue interface {
	Releaser

	// ExecuteCommandLists submits closed lists for execution.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted work has completed.
	Signal(fence Fence, value uint64) error
}

// CommandAllocator backs the memory of recorded commands.
type CommandAllocator interface {
	Releaser

	// Reset reclaims command memory. Only valid once the GPU has finished every list
	// recorded against the allocator.
	Reset() error
}

// Fence is a GPU-to-CPU synchronization point with a monotonically increasing value.
type Fence interface {
	Releaser

	// CompletedValue returns the last value the GPU has signaled.
	CompletedValue() uint64

	// Notify returns a channel that is closed once CompletedValue reaches value.
	// The channel is already closed if the value has been reached.
	Notify(value uint64) <-chan struct{}
}

// Resource is a committed buffer or texture.
type Resource interface {
	Releaser

	Desc() ResourceDesc
	Heap() HeapType

	// GPUVirtualAddress is the GPU address of a buffer. Textures return 0.
	GPUVirtualAddress() uint64

	// Map returns a CPU view of an upload- or readback-heap resource.
	Map() ([]byte, error)
	Unmap()
}

// DescriptorHeap is an array of view descriptors.
type DescriptorHeap interface {
	Releaser

	Desc() DescriptorHeapDesc
	CPUHandleForHeapStart() CPUDescriptorHandle

	// GPUHandleForHeapStart is only meaningful for shader-visible heaps.
	GPUHandleForHeapStart() GPUDescriptorHandle
}

// RootSignature describes the resources a pipeline binds.
type RootSignature interface {
	Releaser
	Desc() RootSignatureDesc
}

// PipelineState is an immutable raster pipeline.
type PipelineState interface {
	Releaser
}

// StateObject is an immutable ray-tracing pipeline.
type StateObject interface {
	Releaser

	// Properties returns the interface used to resolve shader identifiers.
	Properties() (StateObjectProperties, error)
}

// StateObjectProperties resolves export names to shader identifiers.
type StateObjectProperties interface {
	// ShaderIdentifier returns the ShaderIdentifierSize-byte identifier of an export,
	// or nil if the state object has no such export.
	ShaderIdentifier(export string) []byte
}

// SwapChain is the set of back buffers presented to a window.
type SwapChain interface {
	Releaser

	Desc() SwapChainDesc

	// Buffer returns back buffer i. The resource starts in the Present state.
	Buffer(i uint32) (Resource, error)

	// CurrentBackBufferIndex is the buffer the next frame renders into.
	CurrentBackBufferIndex() uint32

	// Present flips the current buffer to the screen and advances the index.
	Present() error
}

// CommandList records GPU work. Recording methods do not return errors: the first
// recording error is kept and reported by Close.
type CommandList interface {
	Releaser

	// Reset puts the list back into the recording state against alloc.
	Reset(alloc CommandAllocator, initial PipelineState) error

	// Close ends recording. It returns the first error encountered while recording.
	Close() error

	ResourceBarrier(barriers ...Barrier)

	CopyBufferRegion(dst Resource, dstOffset uint64, src Resource, srcOffset, size uint64)
	CopyResource(dst, src Resource)

	// CopyBufferToTexture copies rows of pitch rowPitch from src into the 2D texture dst.
	CopyBufferToTexture(dst Resource, src Resource, srcOffset uint64, rowPitch uint32)

	SetRenderTargets(rtv CPUDescriptorHandle, dsv *CPUDescriptorHandle)
	ClearRenderTargetView(rtv CPUDescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv CPUDescriptorHandle, depth float32)

	SetPipelineState(pso PipelineState)
	SetGraphicsRootSignature(rs RootSignature)
	SetDescriptorHeaps(heaps ...DescriptorHeap)
	SetGraphicsRootDescriptorTable(index uint32, base GPUDescriptorHandle)
	SetGraphicsRootConstantBufferView(index uint32, address uint64)

	SetViewport(vp Viewport)
	SetScissorRect(r Rect)
	SetPrimitiveTopology(t PrimitiveTopology)
	SetVertexBuffers(startSlot uint32, views ...VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)

	BuildAccelerationStructure(desc *BuildASDesc)
	SetRaytracingState(so StateObject)
	DispatchRays(desc *DispatchRaysDesc)
}
