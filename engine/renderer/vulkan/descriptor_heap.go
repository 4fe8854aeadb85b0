package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// VulkanDescriptorHeap exposes a flat array of combined image samplers
// through a single descriptor set. Slots are rewritten in place with
// UpdateDescriptorSets, unbound slots point at a shared fallback texture
// so shaders never read an invalid descriptor.
type VulkanDescriptorHeap struct {
	context  *VulkanContext
	capacity uint32

	pool    vk.DescriptorPool
	Set     vk.DescriptorSet
	sampler vk.Sampler

	fallback *VulkanTexture
}

func NewVulkanDescriptorHeap(context *VulkanContext, capacity uint32) (*VulkanDescriptorHeap, error) {
	if capacity > maxBindlessViews {
		err := fmt.Errorf("view heap capacity %d exceeds the backend limit of %d", capacity, maxBindlessViews)
		core.LogError(err.Error())
		return nil, err
	}
	h := &VulkanDescriptorHeap{context: context, capacity: capacity}

	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxBindlessViews,
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &h.pool); res != vk.Success {
		h.Destroy()
		err := fmt.Errorf("failed to create descriptor pool for %d views", capacity)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     h.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{context.HeapLayout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &sets[0]); res != vk.Success {
		h.Destroy()
		err := fmt.Errorf("failed to allocate view descriptor set")
		core.LogError(err.Error())
		return nil, err
	}
	h.Set = sets[0]

	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		MaxLod:       1,
	}
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &h.sampler); res != vk.Success {
		h.Destroy()
		err := fmt.Errorf("failed to create heap sampler")
		core.LogError(err.Error())
		return nil, err
	}

	fallback, err := newFallbackTexture(context)
	if err != nil {
		h.Destroy()
		return nil, err
	}
	h.fallback = fallback

	// Every layout slot starts on the fallback so a stale index read
	// by a shader stays defined.
	for i := uint32(0); i < maxBindlessViews; i++ {
		h.writeSlot(i, fallback.View)
	}
	return h, nil
}

func (h *VulkanDescriptorHeap) Capacity() uint32 { return h.capacity }

func (h *VulkanDescriptorHeap) WriteTextureView(index uint32, texture gpu.Texture, desc gpu.ViewDesc) error {
	if index >= h.capacity {
		err := fmt.Errorf("view slot %d out of range, heap holds %d", index, h.capacity)
		core.LogError(err.Error())
		return err
	}
	t, ok := texture.(*VulkanTexture)
	if !ok {
		err := fmt.Errorf("texture does not belong to this backend")
		core.LogError(err.Error())
		return err
	}
	h.writeSlot(index, t.View)
	return nil
}

func (h *VulkanDescriptorHeap) WriteNull(index uint32) error {
	if index >= h.capacity {
		err := fmt.Errorf("view slot %d out of range, heap holds %d", index, h.capacity)
		core.LogError(err.Error())
		return err
	}
	h.writeSlot(index, h.fallback.View)
	return nil
}

func (h *VulkanDescriptorHeap) writeSlot(index uint32, view vk.ImageView) {
	imageInfo := vk.DescriptorImageInfo{
		Sampler:     h.sampler,
		ImageView:   view,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.Set,
		DstBinding:      0,
		DstArrayElement: index,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}
	vk.UpdateDescriptorSets(h.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (h *VulkanDescriptorHeap) Destroy() {
	device := h.context.Device.LogicalDevice
	if h.fallback != nil {
		h.fallback.Destroy()
		h.fallback = nil
	}
	if h.sampler != nil {
		vk.DestroySampler(device, h.sampler, h.context.Allocator)
		h.sampler = nil
	}
	if h.pool != nil {
		vk.DestroyDescriptorPool(device, h.pool, h.context.Allocator)
		h.pool = nil
	}
}

// newFallbackTexture creates the 1x1 white texture unbound heap slots
// point at, transitioned to shader-read layout with a one-shot command
// buffer.
func newFallbackTexture(context *VulkanContext) (*VulkanTexture, error) {
	texture, err := NewVulkanTexture(context, gpu.TextureDesc{
		Width:  1,
		Height: 1,
		Format: gpu.FormatRGBA8Unorm,
	})
	if err != nil {
		return nil, err
	}

	staging, err := NewVulkanBuffer(context, gpu.BufferDesc{Size: 4, Upload: true})
	if err != nil {
		texture.Destroy()
		return nil, err
	}
	defer staging.Destroy()
	pixels, err := staging.Map()
	if err != nil {
		texture.Destroy()
		return nil, err
	}
	copy(pixels, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	staging.Unmap()

	err = withOneShotCommandBuffer(context, func(buffer vk.CommandBuffer) {
		barrier := imageBarrier(texture.Handle, texture.aspect(),
			vk.ImageLayoutUndefined, vk.AccessFlags(0),
			vk.ImageLayoutTransferDstOptimal, vk.AccessFlags(vk.AccessTransferWriteBit))
		vk.CmdPipelineBarrier(buffer,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: 1, Height: 1, Depth: 1},
		}
		vk.CmdCopyBufferToImage(buffer, staging.Handle, texture.Handle,
			vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

		barrier = imageBarrier(texture.Handle, texture.aspect(),
			vk.ImageLayoutTransferDstOptimal, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessFlags(vk.AccessShaderReadBit))
		vk.CmdPipelineBarrier(buffer,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	})
	if err != nil {
		texture.Destroy()
		return nil, err
	}
	return texture, nil
}

func imageBarrier(image vk.Image, aspect vk.ImageAspectFlags, oldLayout vk.ImageLayout, srcAccess vk.AccessFlags, newLayout vk.ImageLayout, dstAccess vk.AccessFlags) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
}

// withOneShotCommandBuffer records fn into a temporary command buffer
// on the graphics pool, submits it and waits for completion.
func withOneShotCommandBuffer(context *VulkanContext, fn func(vk.CommandBuffer)) error {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        context.Device.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
		err := fmt.Errorf("failed to allocate one-shot command buffer")
		core.LogError(err.Error())
		return err
	}
	buffer := buffers[0]
	defer vk.FreeCommandBuffers(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, 1, buffers)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(buffer, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin one-shot command buffer")
		core.LogError(err.Error())
		return err
	}
	fn(buffer)
	if res := vk.EndCommandBuffer(buffer); res != vk.Success {
		err := fmt.Errorf("failed to end one-shot command buffer")
		core.LogError(err.Error())
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    buffers,
	}
	if res := vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		err := fmt.Errorf("failed to submit one-shot command buffer")
		core.LogError(err.Error())
		return err
	}
	if res := vk.QueueWaitIdle(context.Device.GraphicsQueue); res != vk.Success {
		err := fmt.Errorf("one-shot submission did not complete")
		core.LogError(err.Error())
		return err
	}
	return nil
}
