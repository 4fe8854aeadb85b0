package vulkan

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// VulkanCommandList records into a primary command buffer. Render
// passes are implicit: draws open a pass over the bound targets,
// anything else closes it first. Clears are folded into the next pass
// begin as clear load ops.
type VulkanCommandList struct {
	context *VulkanContext
	Buffer  vk.CommandBuffer

	open   bool
	inPass bool

	colorTarget *VulkanTexture
	depthTarget *VulkanTexture

	clearColorValue [4]float32
	clearColor      bool
	clearDepthValue float32
	clearDepth      bool

	pipeline *VulkanPipeline

	heap          *VulkanDescriptorHeap
	tables        [pushConstantBytes / 4]uint32
	tablesDirty   bool
	uniformBuffer *VulkanBuffer
	uniformOffset uint32
}

func NewVulkanCommandList(context *VulkanContext) (*VulkanCommandList, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        context.Device.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer")
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanCommandList{context: context, Buffer: buffers[0]}, nil
}

func (cl *VulkanCommandList) Reset() error {
	if res := vk.ResetCommandBuffer(cl.Buffer, 0); res != vk.Success {
		if res == vk.ErrorDeviceLost {
			return core.ErrDeviceRemoved
		}
		err := fmt.Errorf("failed to reset command buffer")
		core.LogError(err.Error())
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cl.Buffer, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer")
		core.LogError(err.Error())
		return err
	}
	cl.open = true
	cl.inPass = false
	cl.colorTarget = nil
	cl.depthTarget = nil
	cl.clearColor = false
	cl.clearDepth = false
	cl.pipeline = nil
	cl.heap = nil
	cl.tables = [pushConstantBytes / 4]uint32{}
	cl.tablesDirty = false
	cl.uniformBuffer = nil
	return nil
}

func (cl *VulkanCommandList) Close() error {
	cl.endPass()
	if res := vk.EndCommandBuffer(cl.Buffer); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer")
		core.LogError(err.Error())
		return err
	}
	cl.open = false
	return nil
}

func (cl *VulkanCommandList) beginPass() error {
	if cl.inPass {
		return nil
	}
	key := renderPassKey{}
	fbKey := framebufferKey{}
	if cl.colorTarget != nil {
		key.ColorFormat = VulkanFormat(cl.colorTarget.desc.Format)
		key.ClearColor = cl.clearColor
		fbKey.ColorView = cl.colorTarget.View
		fbKey.Width = cl.colorTarget.desc.Width
		fbKey.Height = cl.colorTarget.desc.Height
	}
	if cl.depthTarget != nil {
		key.DepthFormat = cl.context.Device.DepthFormat
		key.ClearDepth = cl.clearDepth
		key.DepthReadOnly = cl.depthTarget.currentLayout == vk.ImageLayoutDepthStencilReadOnlyOptimal
		fbKey.DepthView = cl.depthTarget.View
		fbKey.Width = cl.depthTarget.desc.Width
		fbKey.Height = cl.depthTarget.desc.Height
	}

	pass, err := getRenderPass(cl.context, key)
	if err != nil {
		return err
	}
	framebuffer, err := getFramebuffer(cl.context, pass, fbKey)
	if err != nil {
		return err
	}

	var clearValues []vk.ClearValue
	if cl.colorTarget != nil {
		var value vk.ClearValue
		value.SetColor(cl.clearColorValue[:])
		clearValues = append(clearValues, value)
	}
	if cl.depthTarget != nil {
		var value vk.ClearValue
		value.SetDepthStencil(cl.clearDepthValue, 0)
		clearValues = append(clearValues, value)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: fbKey.Width, Height: fbKey.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cl.Buffer, &beginInfo, vk.SubpassContentsInline)
	cl.inPass = true
	cl.clearColor = false
	cl.clearDepth = false
	return nil
}

func (cl *VulkanCommandList) endPass() {
	if !cl.inPass {
		return
	}
	vk.CmdEndRenderPass(cl.Buffer)
	cl.inPass = false
	if cl.colorTarget != nil {
		cl.colorTarget.currentLayout = vk.ImageLayoutColorAttachmentOptimal
	}
}

func (cl *VulkanCommandList) flushBindings(bindPoint vk.PipelineBindPoint) {
	if cl.heap != nil {
		vk.CmdBindDescriptorSets(cl.Buffer, bindPoint, cl.context.PipelineLayout,
			0, 1, []vk.DescriptorSet{cl.heap.Set}, 0, nil)
		cl.heap = nil
	}
	if cl.uniformBuffer != nil {
		set, err := cl.uniformBuffer.uniformDescriptorSet()
		if err == nil {
			vk.CmdBindDescriptorSets(cl.Buffer, bindPoint, cl.context.PipelineLayout,
				1, 1, []vk.DescriptorSet{set}, 1, []uint32{cl.uniformOffset})
		}
		cl.uniformBuffer = nil
	}
	if cl.tablesDirty {
		data := make([]byte, pushConstantBytes)
		for i, table := range cl.tables {
			binary.LittleEndian.PutUint32(data[i*4:], table)
		}
		vk.CmdPushConstants(cl.Buffer, cl.context.PipelineLayout,
			cl.context.PushStages, 0, pushConstantBytes, unsafe.Pointer(&data[0]))
		cl.tablesDirty = false
	}
}

func (cl *VulkanCommandList) Transition(texture gpu.Texture, from, to gpu.ResourceState) {
	if from == gpu.StateNone || to == gpu.StateNone {
		return
	}
	cl.endPass()
	t := texture.(*VulkanTexture)
	oldLayout, srcAccess, srcStage := stateSync(from)
	newLayout, dstAccess, dstStage := stateSync(to)
	if t.currentLayout == vk.ImageLayoutUndefined {
		oldLayout = vk.ImageLayoutUndefined
	}
	barrier := imageBarrier(t.Handle, t.aspect(), oldLayout, srcAccess, newLayout, dstAccess)
	vk.CmdPipelineBarrier(cl.Buffer, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	t.currentLayout = newLayout
}

func (cl *VulkanCommandList) TransitionBuffer(buffer gpu.Buffer, from, to gpu.ResourceState) {
	if from == gpu.StateNone || to == gpu.StateNone {
		return
	}
	cl.endPass()
	b := buffer.(*VulkanBuffer)
	_, srcAccess, srcStage := stateSync(from)
	_, dstAccess, dstStage := stateSync(to)
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.Handle,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(cl.Buffer, srcStage, dstStage, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

func (cl *VulkanCommandList) UAVBarrier(buffer gpu.Buffer) {
	cl.endPass()
	cl.shaderWriteBarrier()
}

func (cl *VulkanCommandList) UAVBarrierTexture(texture gpu.Texture) {
	cl.endPass()
	cl.shaderWriteBarrier()
}

func (cl *VulkanCommandList) shaderWriteBarrier() {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	vk.CmdPipelineBarrier(cl.Buffer, stages, stages|vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (cl *VulkanCommandList) ClearRenderTarget(texture gpu.Texture, r, g, b, a float32) {
	cl.endPass()
	cl.clearColorValue = [4]float32{r, g, b, a}
	cl.clearColor = true
}

func (cl *VulkanCommandList) ClearDepth(texture gpu.Texture, depth float32) {
	cl.endPass()
	cl.clearDepthValue = depth
	cl.clearDepth = true
}

func (cl *VulkanCommandList) SetRenderTargets(color gpu.Texture, depth gpu.Texture) {
	cl.endPass()
	cl.colorTarget = nil
	cl.depthTarget = nil
	if color != nil {
		cl.colorTarget = color.(*VulkanTexture)
	}
	if depth != nil {
		cl.depthTarget = depth.(*VulkanTexture)
	}
}

// SetViewportScissor flips the viewport so clip space matches the
// top-left origin the renderer's matrices assume.
func (cl *VulkanCommandList) SetViewportScissor(width, height uint32) {
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(height),
		Width:    float32(width),
		Height:   -float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cl.Buffer, 0, 1, []vk.Viewport{viewport})
	cl.SetScissor(0, 0, int32(width), int32(height))
}

func (cl *VulkanCommandList) SetScissor(x, y, width, height int32) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: uint32(width), Height: uint32(height)},
	}
	vk.CmdSetScissor(cl.Buffer, 0, 1, []vk.Rect2D{scissor})
}

func (cl *VulkanCommandList) SetPipeline(pipeline gpu.Pipeline) {
	p := pipeline.(*VulkanPipeline)
	if p.kind != pipelineGraphics {
		cl.endPass()
	}
	vk.CmdBindPipeline(cl.Buffer, p.bindPoint(), p.Handle)
	cl.pipeline = p
}

func (cl *VulkanCommandList) SetDescriptorHeap(heap gpu.DescriptorHeap) {
	cl.heap = heap.(*VulkanDescriptorHeap)
}

func (cl *VulkanCommandList) SetDescriptorTable(slot uint32, heapIndex uint32) {
	if int(slot) >= len(cl.tables) {
		core.LogWarn("descriptor table slot %d out of range", slot)
		return
	}
	cl.tables[slot] = heapIndex
	cl.tablesDirty = true
}

func (cl *VulkanCommandList) SetConstantBuffer(slot uint32, buffer gpu.Buffer, offset uint64) {
	cl.uniformBuffer = buffer.(*VulkanBuffer)
	cl.uniformOffset = uint32(offset)
}

func (cl *VulkanCommandList) SetVertexBuffer(buffer gpu.Buffer, stride uint32) {
	b := buffer.(*VulkanBuffer)
	vk.CmdBindVertexBuffers(cl.Buffer, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{0})
}

func (cl *VulkanCommandList) SetIndexBuffer(buffer gpu.Buffer, format gpu.Format) {
	b := buffer.(*VulkanBuffer)
	indexType := vk.IndexTypeUint32
	if format == gpu.FormatR16Uint {
		indexType = vk.IndexTypeUint16
	}
	vk.CmdBindIndexBuffer(cl.Buffer, b.Handle, 0, indexType)
}

func (cl *VulkanCommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	if err := cl.beginPass(); err != nil {
		return
	}
	cl.flushBindings(vk.PipelineBindPointGraphics)
	vk.CmdDrawIndexed(cl.Buffer, indexCount, instanceCount, firstIndex, vertexOffset, 0)
}

func (cl *VulkanCommandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	cl.endPass()
	cl.flushBindings(vk.PipelineBindPointCompute)
	vk.CmdDispatch(cl.Buffer, groupsX, groupsY, groupsZ)
}

func (cl *VulkanCommandList) CopyBufferToTexture(dst gpu.Texture, src gpu.Buffer, srcOffset uint64, rowPitch uint32) {
	cl.endPass()
	t := dst.(*VulkanTexture)
	b := src.(*VulkanBuffer)
	region := vk.BufferImageCopy{
		BufferOffset:    vk.DeviceSize(srcOffset),
		BufferRowLength: rowPitch / t.desc.Format.Size(),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: t.aspect(),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: t.desc.Width, Height: t.desc.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cl.Buffer, b.Handle, t.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (cl *VulkanCommandList) WriteTimestamp(heap gpu.QueryHeap, index uint32) {
	cl.endPass()
	q := heap.(*VulkanQueryHeap)
	vk.CmdResetQueryPool(cl.Buffer, q.Pool, index, 1)
	vk.CmdWriteTimestamp(cl.Buffer, vk.PipelineStageBottomOfPipeBit, q.Pool, index)
}

func (cl *VulkanCommandList) ResolveQueries(heap gpu.QueryHeap, first, count uint32, dst gpu.Buffer, dstOffset uint64) {
	cl.endPass()
	q := heap.(*VulkanQueryHeap)
	b := dst.(*VulkanBuffer)
	vk.CmdCopyQueryPoolResults(cl.Buffer, q.Pool, first, count, b.Handle,
		vk.DeviceSize(dstOffset), 8, vk.QueryResultFlags(vk.QueryResult64Bit))
}
