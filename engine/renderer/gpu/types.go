package gpu

import (
	"encoding/binary"
	"math"
)

// Format enumerates the pixel/element formats the engine uses.
type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatR8Unorm
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD32Float
	FormatR16Uint
	FormatR32Uint
)

// Size returns the byte size of one element of f.
func (f Format) Size() uint32 {
	switch f {
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Float, FormatR32Uint:
		return 4
	case FormatRG32Float:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	case FormatD32Float:
		return 4
	case FormatR16Uint:
		return 2
	case FormatR8Unorm:
		return 1
	}
	return 0
}

// ResourceState models the explicit resource-transition states the
// command recorder understands.
type ResourceState int

const (
	// StateNone is a sentinel: callers pass it to skip a transition
	// entirely (the resource is already positioned).
	StateNone ResourceState = iota
	StateCommon
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StateShaderResource
	StateUnorderedAccess
	StateCopyDest
	StateCopySource
	StatePresent
)

// TextureDesc describes a 2D texture resource.
type TextureDesc struct {
	Width  uint32
	Height uint32
	Format Format

	RenderTarget    bool
	DepthStencil    bool
	UnorderedAccess bool
}

// BufferDesc describes a linear buffer resource.
type BufferDesc struct {
	Size uint64

	// Upload buffers are CPU-visible and mappable.
	Upload bool
	// Readback buffers receive GPU writes for CPU consumption.
	Readback bool
	// UnorderedAccess buffers can back scratch/UAV work.
	UnorderedAccess bool
}

// ViewDesc describes a shader-visible texture view.
type ViewDesc struct {
	Format Format
}

// VertexAttribute describes one element of a vertex layout.
type VertexAttribute struct {
	Format Format
	Offset uint32
}

// GraphicsPipelineDesc configures one hand-authored raster pass.
type GraphicsPipelineDesc struct {
	VS []byte
	PS []byte

	VertexStride uint32
	Attributes   []VertexAttribute

	// DepthOnly passes bind no color target.
	DepthOnly   bool
	ColorFormat Format
	DepthFormat Format
	DepthTest   bool
	DepthWrite  bool
	// AlphaBlend enables standard src-alpha blending (debug overlay).
	AlphaBlend bool
}

type ComputePipelineDesc struct {
	CS []byte
}

// RayTracingPipelineDesc configures the shadow ray pipeline. The
// library blob carries raygen, miss and closest-hit entry points.
type RayTracingPipelineDesc struct {
	Library      []byte
	MaxRecursion uint32
}

// SwapchainDesc configures the presentation chain.
type SwapchainDesc struct {
	Width        uint32
	Height       uint32
	BufferCount  uint32
	Format       Format
	VSync        bool
	WindowHandle uintptr
}

// GeometryDesc describes one triangle-geometry range feeding a
// bottom-level acceleration structure build.
type GeometryDesc struct {
	VertexBuffer Buffer
	VertexCount  uint32
	VertexStride uint32
	IndexBuffer  Buffer
	IndexStart   uint32
	IndexCount   uint32
}

// InstanceDesc is the packed per-instance record consumed by a
// top-level acceleration structure build: a 3x4 row-major transform
// plus the referenced bottom-level structure's device address.
type InstanceDesc struct {
	Transform    [12]float32
	InstanceID   uint32
	Mask         uint32
	AccelAddress uint64
}

// InstanceDescSize is the byte size of one serialized InstanceDesc.
const InstanceDescSize = 64

// Encode serializes the record into dst, which must hold at least
// InstanceDescSize bytes.
func (d InstanceDesc) Encode(dst []byte) {
	for i, f := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], d.InstanceID)
	binary.LittleEndian.PutUint32(dst[52:], d.Mask)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelAddress)
}

// AccelInputs gathers the inputs of one acceleration structure build.
type AccelInputs struct {
	// TopLevel selects between instance (top) and geometry (bottom)
	// builds.
	TopLevel bool

	Geometries []GeometryDesc

	InstanceBuffer Buffer
	InstanceCount  uint32
}

// AccelPrebuildInfo reports the sizes a build will need. A zero
// ResultSize indicates a misconfigured geometry set.
type AccelPrebuildInfo struct {
	ResultSize  uint64
	ScratchSize uint64
}

// Capabilities describes what the opened device supports. Owned by the
// renderer; no global state.
type Capabilities struct {
	RayTracing bool
	// TimestampFrequency is in ticks per second.
	TimestampFrequency uint64
	// UploadPitchAlignment is the required row alignment for texture
	// copy sources, typically 256 bytes.
	UploadPitchAlignment uint32
}
