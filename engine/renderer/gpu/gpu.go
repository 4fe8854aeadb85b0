// Package gpu defines the explicit device abstraction the renderer
// records against. The vulkan package implements it on real hardware;
// the null package implements it in software for headless runs.
package gpu

import "time"

// Device creates resources and exposes submission queues.
type Device interface {
	Capabilities() Capabilities

	GraphicsQueue() Queue
	CopyQueue() Queue

	NewFence(initialValue uint64) (Fence, error)
	NewCommandList() (CommandList, error)
	NewBuffer(desc BufferDesc) (Buffer, error)
	NewTexture(desc TextureDesc) (Texture, error)
	NewDescriptorHeap(capacity uint32) (DescriptorHeap, error)
	NewQueryHeap(count uint32) (QueryHeap, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	NewGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	NewRayTracingPipeline(desc RayTracingPipelineDesc) (Pipeline, error)

	// AccelPrebuildInfo sizes an acceleration structure build without
	// performing it.
	AccelPrebuildInfo(inputs AccelInputs) AccelPrebuildInfo
	NewAccelStructure(size uint64, inputs AccelInputs) (AccelStructure, error)

	// Removed reports whether the device has been lost. Once true it
	// never reverts.
	Removed() bool

	Destroy()
}

// Queue accepts closed command lists and timeline signals.
type Queue interface {
	Submit(lists ...CommandList) error
	// Signal enqueues a timeline signal: fence reaches value once all
	// prior work on this queue completes.
	Signal(fence Fence, value uint64) error
	// TimestampFrequency is in ticks per second for timestamps written
	// on this queue.
	TimestampFrequency() uint64
}

// Fence is a monotonically increasing GPU timeline.
type Fence interface {
	CompletedValue() uint64
	// Wait blocks until the fence reaches value. A timeout <= 0 waits
	// without bound; otherwise core.ErrTimedOut is returned when the
	// deadline passes first.
	Wait(value uint64, timeout time.Duration) error
	Destroy()
}

// CommandList records GPU work. Reset before recording, Close before
// submission.
type CommandList interface {
	Reset() error
	Close() error

	// Transition moves a resource between states. Either state may be
	// StateNone to skip recording the barrier.
	Transition(t Texture, from, to ResourceState)
	TransitionBuffer(b Buffer, from, to ResourceState)
	// UAVBarrier orders unordered-access writes against subsequent
	// reads of the same resource.
	UAVBarrier(b Buffer)
	UAVBarrierTexture(t Texture)

	ClearRenderTarget(t Texture, r, g, b, a float32)
	ClearDepth(t Texture, depth float32)
	SetRenderTargets(color Texture, depth Texture)
	SetViewportScissor(width, height uint32)
	SetScissor(x, y, width, height int32)

	SetPipeline(p Pipeline)
	SetDescriptorHeap(h DescriptorHeap)
	// SetDescriptorTable binds a heap range starting at index to the
	// given root slot.
	SetDescriptorTable(slot uint32, heapIndex uint32)
	SetConstantBuffer(slot uint32, b Buffer, offset uint64)
	// SetAccelStructure binds a top-level acceleration structure to
	// the given root slot by device address.
	SetAccelStructure(slot uint32, as AccelStructure)
	SetVertexBuffer(b Buffer, stride uint32)
	SetIndexBuffer(b Buffer, format Format)

	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32)
	Dispatch(x, y, z uint32)
	DispatchRays(width, height uint32)

	// CopyBufferToTexture copies pitch-aligned rows from an upload
	// buffer into a texture.
	CopyBufferToTexture(dst Texture, src Buffer, srcOffset uint64, rowPitch uint32)

	BuildAccelerationStructure(dst AccelStructure, scratch Buffer, inputs AccelInputs)

	WriteTimestamp(heap QueryHeap, index uint32)
	// ResolveQueries copies query results into a readback buffer as
	// uint64 ticks.
	ResolveQueries(heap QueryHeap, first, count uint32, dst Buffer, dstOffset uint64)
}

// Buffer is a linear GPU resource. Map is only valid on upload and
// readback buffers.
type Buffer interface {
	Map() ([]byte, error)
	Unmap()
	GPUAddress() uint64
	Size() uint64
	Destroy()
}

// Texture is a 2D GPU image.
type Texture interface {
	Desc() TextureDesc
	Destroy()
}

// DescriptorHeap is a shader-visible table of texture views addressed
// by index.
type DescriptorHeap interface {
	Capacity() uint32
	// WriteTextureView points slot index at t.
	WriteTextureView(index uint32, t Texture, desc ViewDesc) error
	// WriteNull rewrites slot index to a null descriptor so stale
	// resources cannot be sampled.
	WriteNull(index uint32) error
	Destroy()
}

// QueryHeap holds timestamp query slots.
type QueryHeap interface {
	Count() uint32
	Destroy()
}

// Pipeline is an opaque compiled pipeline state.
type Pipeline interface {
	Destroy()
}

// AccelStructure is a built ray-tracing acceleration structure.
type AccelStructure interface {
	GPUAddress() uint64
	Destroy()
}

// Swapchain owns the presentable back buffers.
type Swapchain interface {
	BufferCount() uint32
	CurrentBackBufferIndex() uint32
	BackBuffer(index uint32) Texture
	Present() error
	// Resize recreates the back buffers at the new dimensions. All
	// previously returned back buffer handles become invalid.
	Resize(width, height uint32) error
	Destroy()
}
