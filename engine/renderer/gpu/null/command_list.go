package null

import (
	"encoding/binary"
	"fmt"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// CommandList buffers a textual trace of recorded commands. Copies and
// timestamp writes execute immediately; the simulated GPU never
// reorders.
type CommandList struct {
	device *Device
	ops    []string
	closed bool
	open   bool
}

func (c *CommandList) op(format string, args ...any) {
	c.ops = append(c.ops, fmt.Sprintf(format, args...))
}

func (c *CommandList) Reset() error {
	if c.device.Removed() {
		return core.ErrDeviceRemoved
	}
	c.ops = c.ops[:0]
	c.closed = false
	c.open = true
	return nil
}

func (c *CommandList) Close() error {
	if !c.open {
		err := fmt.Errorf("closed a command list that was never reset")
		core.LogError(err.Error())
		return err
	}
	c.closed = true
	c.open = false
	return nil
}

func stateName(s gpu.ResourceState) string {
	switch s {
	case gpu.StateNone:
		return "none"
	case gpu.StateCommon:
		return "common"
	case gpu.StateRenderTarget:
		return "render-target"
	case gpu.StateDepthWrite:
		return "depth-write"
	case gpu.StateDepthRead:
		return "depth-read"
	case gpu.StateShaderResource:
		return "shader-resource"
	case gpu.StateUnorderedAccess:
		return "unordered-access"
	case gpu.StateCopyDest:
		return "copy-dest"
	case gpu.StateCopySource:
		return "copy-source"
	case gpu.StatePresent:
		return "present-state"
	}
	return "unknown"
}

func (c *CommandList) Transition(t gpu.Texture, from, to gpu.ResourceState) {
	if from == gpu.StateNone || to == gpu.StateNone {
		return
	}
	c.op("transition %s->%s", stateName(from), stateName(to))
}

func (c *CommandList) TransitionBuffer(b gpu.Buffer, from, to gpu.ResourceState) {
	if from == gpu.StateNone || to == gpu.StateNone {
		return
	}
	c.op("transition-buffer %s->%s", stateName(from), stateName(to))
}

func (c *CommandList) UAVBarrier(b gpu.Buffer)         { c.op("uav-barrier") }
func (c *CommandList) UAVBarrierTexture(t gpu.Texture) { c.op("uav-barrier") }

func (c *CommandList) ClearRenderTarget(t gpu.Texture, r, g, b, a float32) {
	c.op("clear-render-target")
}

func (c *CommandList) ClearDepth(t gpu.Texture, depth float32) {
	c.op("clear-depth %.2f", depth)
}

func (c *CommandList) SetRenderTargets(color gpu.Texture, depth gpu.Texture) {
	switch {
	case color != nil && depth != nil:
		c.op("set-render-targets color+depth")
	case color != nil:
		c.op("set-render-targets color")
	case depth != nil:
		c.op("set-render-targets depth")
	}
}

func (c *CommandList) SetViewportScissor(width, height uint32) {
	c.op("set-viewport %dx%d", width, height)
}

func (c *CommandList) SetScissor(x, y, width, height int32) {
	c.op("set-scissor %d,%d %dx%d", x, y, width, height)
}

func (c *CommandList) SetPipeline(p gpu.Pipeline) {
	c.op("set-pipeline %s", p.(*Pipeline).kind)
}

func (c *CommandList) SetDescriptorHeap(h gpu.DescriptorHeap) {
	c.op("set-descriptor-heap")
}

func (c *CommandList) SetDescriptorTable(slot uint32, heapIndex uint32) {
	c.op("set-descriptor-table slot=%d index=%d", slot, heapIndex)
}

func (c *CommandList) SetConstantBuffer(slot uint32, b gpu.Buffer, offset uint64) {
	c.op("set-constant-buffer slot=%d", slot)
}

func (c *CommandList) SetAccelStructure(slot uint32, as gpu.AccelStructure) {
	c.op("set-accel-structure slot=%d", slot)
}

func (c *CommandList) SetVertexBuffer(b gpu.Buffer, stride uint32) {
	c.op("set-vertex-buffer stride=%d", stride)
}

func (c *CommandList) SetIndexBuffer(b gpu.Buffer, format gpu.Format) {
	c.op("set-index-buffer")
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	c.op("draw-indexed count=%d", indexCount)
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.op("dispatch %dx%dx%d", x, y, z)
}

func (c *CommandList) DispatchRays(width, height uint32) {
	c.op("dispatch-rays %dx%d", width, height)
}

func (c *CommandList) CopyBufferToTexture(dst gpu.Texture, src gpu.Buffer, srcOffset uint64, rowPitch uint32) {
	c.op("copy-buffer-to-texture pitch=%d", rowPitch)
}

func (c *CommandList) BuildAccelerationStructure(dst gpu.AccelStructure, scratch gpu.Buffer, inputs gpu.AccelInputs) {
	if inputs.TopLevel {
		c.op("build-accel top instances=%d", inputs.InstanceCount)
		return
	}
	c.op("build-accel bottom geometries=%d", len(inputs.Geometries))
}

func (c *CommandList) WriteTimestamp(heap gpu.QueryHeap, index uint32) {
	heap.(*QueryHeap).write(index, c.device.nextTimestamp())
	c.op("write-timestamp %d", index)
}

func (c *CommandList) ResolveQueries(heap gpu.QueryHeap, first, count uint32, dst gpu.Buffer, dstOffset uint64) {
	qh := heap.(*QueryHeap)
	data := dst.(*Buffer).data
	for i := uint32(0); i < count; i++ {
		off := dstOffset + uint64(i)*8
		if off+8 > uint64(len(data)) {
			break
		}
		binary.LittleEndian.PutUint64(data[off:], qh.read(first+i))
	}
	c.op("resolve-queries first=%d count=%d", first, count)
}
