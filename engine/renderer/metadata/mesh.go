package metadata

import (
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

/** @brief The name of the default mesh. */
const DefaultMeshName string = "default"

/**
 * @brief CPU-side geometry for one mesh prior to upload.
 */
type MeshConfig struct {
	/** @brief The Name of the mesh. */
	Name string
	/** @brief An array of Vertices. */
	Vertices []math.Vertex3D
	/** @brief An array of Indices. */
	Indices []uint32
	/** @brief Sub-ranges of the index buffer, one per primitive. */
	Primitives []PrimitiveRange
	/** @brief The logical name of the base color texture, if any. */
	TextureName string
}

/** @brief One drawable sub-range of a mesh's index buffer. */
type PrimitiveRange struct {
	FirstIndex uint32
	IndexCount uint32
}

/**
 * @brief A mesh whose buffers live on the device, ready to draw and to
 * feed acceleration structure builds.
 */
type Mesh struct {
	UniqueID   uint32
	Generation uint8
	Name       string

	VertexBuffer gpu.Buffer
	VertexCount  uint32
	VertexStride uint32
	IndexBuffer  gpu.Buffer
	IndexCount   uint32

	Primitives []PrimitiveRange

	/** @brief Bottom-level acceleration structure, built on demand. */
	Accel gpu.AccelStructure

	Transform math.Mat4
	/** @brief Index of the base color view in the debug view table. */
	TextureView uint32
}

// Renderable is anything the frame passes can draw. Meshes implement
// it; so can procedurally generated geometry.
type Renderable interface {
	// WorldTransform returns the object-to-world matrix.
	WorldTransform() math.Mat4
	// RecordDraw records the full material draw.
	RecordDraw(cl gpu.CommandList)
	// RecordDepthDraw records the position-only depth draw.
	RecordDepthDraw(cl gpu.CommandList)
	// AccelGeometry returns acceleration structure build inputs, or a
	// zero slice when the renderable opts out of shadow casting.
	AccelGeometry() []gpu.GeometryDesc
	// AccelStructure returns the built bottom-level structure, nil
	// until the builder has run.
	AccelStructure() gpu.AccelStructure
	// SetAccelStructure stores the built bottom-level structure.
	SetAccelStructure(as gpu.AccelStructure)
}

func (m *Mesh) WorldTransform() math.Mat4 { return m.Transform }

func (m *Mesh) RecordDraw(cl gpu.CommandList) {
	cl.SetVertexBuffer(m.VertexBuffer, m.VertexStride)
	cl.SetIndexBuffer(m.IndexBuffer, gpu.FormatR32Uint)
	for _, p := range m.Primitives {
		cl.DrawIndexed(p.IndexCount, 1, p.FirstIndex, 0)
	}
}

func (m *Mesh) RecordDepthDraw(cl gpu.CommandList) {
	cl.SetVertexBuffer(m.VertexBuffer, m.VertexStride)
	cl.SetIndexBuffer(m.IndexBuffer, gpu.FormatR32Uint)
	for _, p := range m.Primitives {
		cl.DrawIndexed(p.IndexCount, 1, p.FirstIndex, 0)
	}
}

func (m *Mesh) AccelGeometry() []gpu.GeometryDesc {
	if m.VertexBuffer == nil || m.IndexBuffer == nil {
		return nil
	}
	geoms := make([]gpu.GeometryDesc, 0, len(m.Primitives))
	for _, p := range m.Primitives {
		geoms = append(geoms, gpu.GeometryDesc{
			VertexBuffer: m.VertexBuffer,
			VertexCount:  m.VertexCount,
			VertexStride: m.VertexStride,
			IndexBuffer:  m.IndexBuffer,
			IndexStart:   p.FirstIndex,
			IndexCount:   p.IndexCount,
		})
	}
	return geoms
}

func (m *Mesh) AccelStructure() gpu.AccelStructure { return m.Accel }

func (m *Mesh) SetAccelStructure(as gpu.AccelStructure) { m.Accel = as }
