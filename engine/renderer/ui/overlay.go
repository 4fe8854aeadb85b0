package ui

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

// Vertex2DStride is the byte size of one overlay vertex:
// position + texcoord + colour.
const Vertex2DStride = 32

const initialVertexCapacity = 4096
const initialIndexCapacity = 8192

/**
 * @brief Per-frame-slot scratch geometry. CPU writes the current
 * slot's buffers while the GPU may still read the previous slot's.
 */
type overlayFrame struct {
	vertexBuffer   gpu.Buffer
	vertexCapacity uint32
	indexBuffer    gpu.Buffer
	indexCapacity  uint32
}

/**
 * @brief Translates immediate-mode draw lists into draw calls and owns
 * the shared debug view registry.
 */
type Overlay struct {
	device   gpu.Device
	registry *ViewRegistry
	pipeline gpu.Pipeline

	frames    []overlayFrame
	constants gpu.Buffer

	// captureMouse is set while a widget holds pointer focus; events
	// are consumed and withheld from the camera controller.
	captureMouse bool
}

type OverlayConfig struct {
	ViewCapacity uint32
	FrameSlots   uint32
	VS           []byte
	PS           []byte
	ColorFormat  gpu.Format
}

func NewOverlay(device gpu.Device, cfg OverlayConfig) (*Overlay, error) {
	heap, err := device.NewDescriptorHeap(cfg.ViewCapacity)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	pipeline, err := device.NewGraphicsPipeline(gpu.GraphicsPipelineDesc{
		VS:           cfg.VS,
		PS:           cfg.PS,
		VertexStride: Vertex2DStride,
		Attributes: []gpu.VertexAttribute{
			{Format: gpu.FormatRG32Float, Offset: 0},
			{Format: gpu.FormatRG32Float, Offset: 8},
			{Format: gpu.FormatRGBA8Unorm, Offset: 16},
		},
		ColorFormat: cfg.ColorFormat,
		AlphaBlend:  true,
	})
	if err != nil {
		heap.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	constants, err := device.NewBuffer(gpu.BufferDesc{
		Size:   uint64(cfg.FrameSlots) * 256,
		Upload: true,
	})
	if err != nil {
		pipeline.Destroy()
		heap.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	return &Overlay{
		device:    device,
		registry:  NewViewRegistry(heap),
		pipeline:  pipeline,
		frames:    make([]overlayFrame, cfg.FrameSlots),
		constants: constants,
	}, nil
}

// Registry exposes the debug view registry so any component can bind
// a displayable texture view.
func (o *Overlay) Registry() *ViewRegistry { return o.registry }

// HandleEvent reports whether the overlay consumed the input event.
// Consumed events must not reach camera input handling.
func (o *Overlay) HandleEvent(ctx core.EventContext) bool {
	switch ctx.Type {
	case core.EVENT_CODE_MOUSE_MOVED, core.EVENT_CODE_BUTTON_PRESSED,
		core.EVENT_CODE_BUTTON_RELEASED, core.EVENT_CODE_MOUSE_WHEEL:
		return o.captureMouse
	}
	return false
}

// SetMouseCapture routes subsequent pointer events to the overlay.
func (o *Overlay) SetMouseCapture(capture bool) { o.captureMouse = capture }

func (o *Overlay) ensureCapacity(slot uint32, vertexCount, indexCount uint32) error {
	f := &o.frames[slot]
	if f.vertexCapacity < vertexCount || f.vertexBuffer == nil {
		capacity := f.vertexCapacity
		if capacity == 0 {
			capacity = initialVertexCapacity
		}
		for capacity < vertexCount {
			capacity *= 2
		}
		if f.vertexBuffer != nil {
			f.vertexBuffer.Destroy()
		}
		buffer, err := o.device.NewBuffer(gpu.BufferDesc{
			Size:   uint64(capacity) * Vertex2DStride,
			Upload: true,
		})
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		f.vertexBuffer = buffer
		f.vertexCapacity = capacity
	}
	if f.indexCapacity < indexCount || f.indexBuffer == nil {
		capacity := f.indexCapacity
		if capacity == 0 {
			capacity = initialIndexCapacity
		}
		for capacity < indexCount {
			capacity *= 2
		}
		if f.indexBuffer != nil {
			f.indexBuffer.Destroy()
		}
		buffer, err := o.device.NewBuffer(gpu.BufferDesc{
			Size:   uint64(capacity) * 2,
			Upload: true,
		})
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		f.indexBuffer = buffer
		f.indexCapacity = capacity
	}
	return nil
}

func encodeVertex2D(dst []byte, v math.Vertex2D) {
	binary.LittleEndian.PutUint32(dst[0:], stdmath.Float32bits(v.Position.X))
	binary.LittleEndian.PutUint32(dst[4:], stdmath.Float32bits(v.Position.Y))
	binary.LittleEndian.PutUint32(dst[8:], stdmath.Float32bits(v.Texcoord.X))
	binary.LittleEndian.PutUint32(dst[12:], stdmath.Float32bits(v.Texcoord.Y))
	binary.LittleEndian.PutUint32(dst[16:], packColour(v.Colour))
	// Pad to a 32-byte stride so attribute offsets stay fixed.
}

func packColour(c math.Vec4) uint32 {
	r := uint32(math.Clamp(c.X, 0, 1) * 255)
	g := uint32(math.Clamp(c.Y, 0, 1) * 255)
	b := uint32(math.Clamp(c.Z, 0, 1) * 255)
	a := uint32(math.Clamp(c.W, 0, 1) * 255)
	return r | g<<8 | b<<16 | a<<24
}

// Render records the frame's draw lists against the currently bound
// color target. displayX/displayY offset every clip rectangle.
func (o *Overlay) Render(cl gpu.CommandList, dd *metadata.DrawData, slot uint32, displayWidth, displayHeight uint32, displayX, displayY int32) error {
	if dd == nil {
		return nil
	}
	dd.Accumulate()
	if dd.TotalVertexCount == 0 || dd.TotalIndexCount == 0 {
		return nil
	}
	if slot >= uint32(len(o.frames)) {
		err := fmt.Errorf("overlay render against unknown frame slot %d", slot)
		core.LogError(err.Error())
		return err
	}
	if err := o.ensureCapacity(slot, dd.TotalVertexCount, dd.TotalIndexCount); err != nil {
		return err
	}
	f := &o.frames[slot]

	// One mapped write for every list's geometry.
	vertices, err := f.vertexBuffer.Map()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	indices, err := f.indexBuffer.Map()
	if err != nil {
		f.vertexBuffer.Unmap()
		core.LogError(err.Error())
		return err
	}
	vertexOffset := 0
	indexOffset := 0
	for _, dl := range dd.Lists {
		for _, v := range dl.Vertices {
			encodeVertex2D(vertices[vertexOffset*Vertex2DStride:], v)
			vertexOffset++
		}
		for _, idx := range dl.Indices {
			binary.LittleEndian.PutUint16(indices[indexOffset*2:], idx)
			indexOffset++
		}
	}
	f.indexBuffer.Unmap()
	f.vertexBuffer.Unmap()

	o.writeConstants(slot, displayWidth, displayHeight)

	cl.SetPipeline(o.pipeline)
	cl.SetDescriptorHeap(o.registry.Heap())
	cl.SetConstantBuffer(0, o.constants, uint64(slot)*256)
	cl.SetVertexBuffer(f.vertexBuffer, Vertex2DStride)
	cl.SetIndexBuffer(f.indexBuffer, gpu.FormatR16Uint)
	cl.SetViewportScissor(displayWidth, displayHeight)

	// Sentinel forces a table bind on the first command.
	lastView := ^uint32(0)
	globalVertex := int32(0)
	globalIndex := uint32(0)
	for _, dl := range dd.Lists {
		listIndex := uint32(0)
		for _, cmd := range dl.Commands {
			x := cmd.ClipRect[0] - displayX
			y := cmd.ClipRect[1] - displayY
			w := cmd.ClipRect[2]
			h := cmd.ClipRect[3]
			if w <= 0 || h <= 0 {
				listIndex += cmd.IndexCount
				continue
			}
			cl.SetScissor(x, y, w, h)
			if cmd.TextureView != lastView {
				cl.SetDescriptorTable(1, cmd.TextureView)
				lastView = cmd.TextureView
			}
			cl.DrawIndexed(cmd.IndexCount, 1, globalIndex+listIndex, globalVertex)
			listIndex += cmd.IndexCount
		}
		globalVertex += int32(len(dl.Vertices))
		globalIndex += uint32(len(dl.Indices))
	}
	return nil
}

func (o *Overlay) writeConstants(slot uint32, width, height uint32) {
	projection := math.NewMat4Orthographic(0, float32(width), float32(height), 0, -1, 1)
	mapped, err := o.constants.Map()
	if err != nil {
		core.LogError(err.Error())
		return
	}
	base := int(slot) * 256
	for i, v := range projection.Data {
		binary.LittleEndian.PutUint32(mapped[base+i*4:], stdmath.Float32bits(v))
	}
	o.constants.Unmap()
}

func (o *Overlay) Destroy() {
	for i := range o.frames {
		if o.frames[i].vertexBuffer != nil {
			o.frames[i].vertexBuffer.Destroy()
		}
		if o.frames[i].indexBuffer != nil {
			o.frames[i].indexBuffer.Destroy()
		}
	}
	o.constants.Destroy()
	o.pipeline.Destroy()
	o.registry.Heap().Destroy()
}
