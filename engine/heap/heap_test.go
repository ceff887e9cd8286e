package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/sim"
)

type fixture struct {
	dev   sim.Device
	queue gpu.CommandQueue
	alloc gpu.CommandAllocator
	list  gpu.CommandList
	fence gpu.Fence
	value uint64
	heap  Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dev: sim.NewDevice()}
	var err error
	f.queue, err = f.dev.CreateCommandQueue()
	require.NoError(t, err)
	f.alloc, err = f.dev.CreateCommandAllocator()
	require.NoError(t, err)
	f.list, err = f.dev.CreateCommandList(f.alloc, nil)
	require.NoError(t, err)
	f.fence, err = f.dev.CreateFence(0)
	require.NoError(t, err)
	f.heap = NewManager(f.dev)
	t.Cleanup(f.queue.Release)
	return f
}

func (f *fixture) submit(t *testing.T) {
	t.Helper()
	require.NoError(t, f.list.Close())
	require.NoError(t, f.queue.ExecuteCommandLists(f.list))
	f.value++
	require.NoError(t, f.queue.Signal(f.fence, f.value))
	f.heap.MarkSubmitted(f.value)
	<-f.fence.Notify(f.value)
	require.NoError(t, f.alloc.Reset())
	require.NoError(t, f.list.Reset(f.alloc, nil))
}

func TestUploadRoundTrip(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))

	for _, size := range []int{1, 3, 255, 256, 4099, 65535, 65536, 65537, 3*65536 + 17} {
		data := make([]byte, size)
		rng.Read(data)

		h, err := f.heap.UploadBuffer(f.list, "blob", data, gpu.ResourceStateVertexAndConstantBuffer)
		require.NoError(t, err)
		rb, err := f.heap.Readback(f.list, h, uint64(size))
		require.NoError(t, err)
		f.submit(t)

		got, err := rb.Bytes()
		require.NoError(t, err)
		assert.Equal(t, data, got, "size %d", size)
		rb.Release()

		state, err := f.heap.State(h)
		require.NoError(t, err)
		assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, state)
	}
}

func TestConstantUploadRoundsTo64KB(t *testing.T) {
	f := newFixture(t)

	h, err := f.heap.UploadResource(f.list, UploadDesc{Label: "cb", Kind: KindConstant, Data: make([]byte, 300)})
	require.NoError(t, err)
	res, err := f.heap.Resource(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(65536), res.Desc().Width)

	h, err = f.heap.UploadResource(f.list, UploadDesc{Label: "cb2", Kind: KindConstant, Data: make([]byte, 65537)})
	require.NoError(t, err)
	res, err = f.heap.Resource(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(131072), res.Desc().Width)
	f.submit(t)
}

func TestUploadTexturePitchedRows(t *testing.T) {
	f := newFixture(t)
	pixels := make([]byte, 3*2*4)
	for i := range pixels {
		pixels[i] = byte(i + 1)
	}

	h, err := f.heap.UploadTexture(f.list, "tex", TextureDesc{Width: 3, Height: 2, Format: gpu.FormatR8G8B8A8Unorm}, pixels)
	require.NoError(t, err)
	f.submit(t)

	res, err := f.heap.Resource(h)
	require.NoError(t, err)
	assert.Equal(t, pixels, sim.Contents(res))
	state, err := f.heap.State(h)
	require.NoError(t, err)
	assert.Equal(t, gpu.ResourceStatePixelShaderResource, state)
}

func TestTextureFootprint(t *testing.T) {
	fp, err := TextureFootprint(3, 2, gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Equal(t, Footprint{RowSize: 12, RowPitch: 256, TotalSize: 256 + 12}, fp)

	fp, err = TextureFootprint(64, 64, gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Equal(t, uint32(256), fp.RowPitch)
	assert.Equal(t, uint64(256*64), fp.TotalSize)

	_, err = TextureFootprint(0, 4, gpu.FormatR8G8B8A8Unorm)
	assert.Error(t, err)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.heap.UploadVertices(f.list, "empty", nil)
	assert.ErrorIs(t, err, ErrInvalidUpload)

	_, err = f.heap.UploadResource(f.list, UploadDesc{Label: "small", Data: make([]byte, 8), Size: 4})
	assert.ErrorIs(t, err, ErrInvalidUpload)

	_, err = f.heap.UploadTexture(f.list, "short", TextureDesc{Width: 4, Height: 4, Format: gpu.FormatR8G8B8A8Unorm}, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidUpload)
}

func TestStaleHandle(t *testing.T) {
	f := newFixture(t)

	h, err := f.heap.UploadIndices(f.list, "ib", []byte{0, 0, 0, 0, 1, 0, 0, 0})
	require.NoError(t, err)
	f.submit(t)
	require.NoError(t, f.heap.Release(h))

	_, err = f.heap.Resource(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.ErrorIs(t, f.heap.Release(h), ErrStaleHandle)
	_, err = f.heap.Resource(Handle{})
	assert.ErrorIs(t, err, ErrStaleHandle)

	// the slot is reused under a new generation
	h2, err := f.heap.UploadIndices(f.list, "ib2", []byte{2, 0, 0, 0})
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
	_, err = f.heap.Resource(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
	f.submit(t)
}

func TestRetireReleasesCompletedUploads(t *testing.T) {
	f := newFixture(t)

	_, err := f.heap.UploadVertices(f.list, "a", make([]byte, 64))
	require.NoError(t, err)
	f.submit(t)
	_, err = f.heap.UploadVertices(f.list, "b", make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 2, f.heap.PendingUploads())

	assert.Equal(t, 1, f.heap.Retire(f.fence.CompletedValue()))
	assert.Equal(t, 1, f.heap.PendingUploads())

	f.submit(t)
	assert.Equal(t, 1, f.heap.Retire(f.fence.CompletedValue()))
	assert.Zero(t, f.heap.PendingUploads())
}

func TestTransitionSkipsSameState(t *testing.T) {
	f := newFixture(t)

	h, err := f.heap.UploadVertices(f.list, "vb", make([]byte, 16))
	require.NoError(t, err)
	require.NoError(t, f.heap.Transition(f.list, h, gpu.ResourceStateVertexAndConstantBuffer))
	require.NoError(t, f.heap.Transition(f.list, h, gpu.ResourceStateCopySource))
	f.submit(t)

	state, err := f.heap.State(h)
	require.NoError(t, err)
	assert.Equal(t, gpu.ResourceStateCopySource, state)
}

func TestConstantBufferRegions(t *testing.T) {
	dev := sim.NewDevice()
	cb, err := NewConstantBuffer(dev, "objects", 192, 300)
	require.NoError(t, err)
	defer cb.Release()

	assert.Equal(t, uint64(256), cb.Stride())
	assert.Equal(t, uint64(131072), cb.Size())
	assert.Zero(t, cb.Address(1)%256)
	assert.Equal(t, cb.Address(0)+256*5, cb.Address(5))

	require.NoError(t, cb.Write(299, []byte{1, 2, 3}))
	assert.Error(t, cb.Write(300, nil))
	assert.Error(t, cb.Write(0, make([]byte, 257)))

	contents := sim.Contents(cb.Resource())
	assert.Equal(t, []byte{1, 2, 3}, contents[299*256:299*256+3])
}

func TestReleaseAllFreesMemory(t *testing.T) {
	f := newFixture(t)

	_, err := f.heap.UploadVertices(f.list, "a", make([]byte, 1024))
	require.NoError(t, err)
	_, err = f.heap.UploadIndices(f.list, "b", make([]byte, 512))
	require.NoError(t, err)
	f.submit(t)
	require.NotZero(t, f.dev.Allocated())

	f.heap.ReleaseAll()
	assert.Zero(t, f.dev.Allocated())
	assert.Zero(t, f.heap.PendingUploads())
}
