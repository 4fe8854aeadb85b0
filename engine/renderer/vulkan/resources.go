package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

type VulkanBuffer struct {
	context *VulkanContext
	desc    gpu.BufferDesc

	Handle vk.Buffer
	Memory vk.DeviceMemory

	mapped     []byte
	uniformSet vk.DescriptorSet
}

func NewVulkanBuffer(context *VulkanContext, desc gpu.BufferDesc) (*VulkanBuffer, error) {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit |
		vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit | vk.BufferUsageUniformBufferBit)
	if desc.UnorderedAccess {
		usage |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer of %d bytes", desc.Size)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	properties := uint32(vk.MemoryPropertyDeviceLocalBit)
	if desc.Upload || desc.Readback {
		properties = uint32(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if memoryIndex == -1 {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("no suitable memory type for buffer")
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("failed to allocate %d bytes of buffer memory", desc.Size)
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("failed to bind buffer memory")
		core.LogError(err.Error())
		return nil, err
	}

	return &VulkanBuffer{
		context: context,
		desc:    desc,
		Handle:  handle,
		Memory:  memory,
	}, nil
}

func (b *VulkanBuffer) Map() ([]byte, error) {
	if !b.desc.Upload && !b.desc.Readback {
		err := fmt.Errorf("mapping a device-local buffer")
		core.LogError(err.Error())
		return nil, err
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.desc.Size), 0, &ptr); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory")
		core.LogError(err.Error())
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.desc.Size)
	return b.mapped, nil
}

func (b *VulkanBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	b.mapped = nil
}

// GPUAddress is unused on this backend: acceleration structures bind
// through their own handles and buffers bind directly.
func (b *VulkanBuffer) GPUAddress() uint64 { return 0 }

func (b *VulkanBuffer) Size() uint64 { return b.desc.Size }

// uniformDescriptorSet lazily allocates the dynamic uniform set used
// when this buffer is bound as a constant buffer.
func (b *VulkanBuffer) uniformDescriptorSet() (vk.DescriptorSet, error) {
	if b.uniformSet != nil {
		return b.uniformSet, nil
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.context.UniformPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.context.UniformLayout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(b.context.Device.LogicalDevice, &allocateInfo, &sets[0]); res != vk.Success {
		err := fmt.Errorf("failed to allocate uniform descriptor set")
		core.LogError(err.Error())
		return nil, err
	}
	b.uniformSet = sets[0]

	bufferInfo := vk.DescriptorBufferInfo{
		Buffer: b.Handle,
		Offset: 0,
		Range:  uniformDescriptorRange,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          b.uniformSet,
		DstBinding:      0,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		DescriptorCount: 1,
		PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
	}
	vk.UpdateDescriptorSets(b.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return b.uniformSet, nil
}

func (b *VulkanBuffer) Destroy() {
	b.Unmap()
	if b.uniformSet != nil {
		vk.FreeDescriptorSets(b.context.Device.LogicalDevice, b.context.UniformPool, 1, &b.uniformSet)
		b.uniformSet = nil
	}
	vk.DestroyBuffer(b.context.Device.LogicalDevice, b.Handle, b.context.Allocator)
	vk.FreeMemory(b.context.Device.LogicalDevice, b.Memory, b.context.Allocator)
	b.Handle = nil
	b.Memory = nil
}

type VulkanTexture struct {
	context *VulkanContext
	desc    gpu.TextureDesc

	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView

	// currentLayout mirrors the last recorded transition so render
	// passes can pick compatible attachment layouts.
	currentLayout vk.ImageLayout

	// ownsImage is false for swapchain images.
	ownsImage bool
}

func NewVulkanTexture(context *VulkanContext, desc gpu.TextureDesc) (*VulkanTexture, error) {
	format := VulkanFormat(desc.Format)
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit)
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if desc.RenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if desc.DepthStencil {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if desc.UnorderedAccess {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create %dx%d image", desc.Width, desc.Height)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryIndex == -1 {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("no suitable memory type for image")
		core.LogError(err.Error())
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("failed to allocate image memory")
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("failed to bind image memory")
		core.LogError(err.Error())
		return nil, err
	}

	view, err := newImageView(context, handle, format, aspect)
	if err != nil {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, err
	}

	return &VulkanTexture{
		context:   context,
		desc:      desc,
		Handle:    handle,
		Memory:    memory,
		View:      view,
		ownsImage: true,
	}, nil
}

func newImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		err := fmt.Errorf("failed to create image view")
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (t *VulkanTexture) Desc() gpu.TextureDesc { return t.desc }

func (t *VulkanTexture) aspect() vk.ImageAspectFlags {
	if t.desc.DepthStencil {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (t *VulkanTexture) Destroy() {
	if t.View != nil {
		invalidateFramebuffers(t.context)
		vk.DestroyImageView(t.context.Device.LogicalDevice, t.View, t.context.Allocator)
		t.View = nil
	}
	if t.ownsImage {
		if t.Handle != nil {
			vk.DestroyImage(t.context.Device.LogicalDevice, t.Handle, t.context.Allocator)
			t.Handle = nil
		}
		if t.Memory != nil {
			vk.FreeMemory(t.context.Device.LogicalDevice, t.Memory, t.context.Allocator)
			t.Memory = nil
		}
	}
}

type VulkanQueryHeap struct {
	context *VulkanContext
	count   uint32
	Pool    vk.QueryPool
}

func NewVulkanQueryHeap(context *VulkanContext, count uint32) (*VulkanQueryHeap, error) {
	createInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: count,
	}
	var pool vk.QueryPool
	if res := vk.CreateQueryPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create timestamp query pool of %d slots", count)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanQueryHeap{context: context, count: count, Pool: pool}, nil
}

func (q *VulkanQueryHeap) Count() uint32 { return q.count }

func (q *VulkanQueryHeap) Destroy() {
	vk.DestroyQueryPool(q.context.Device.LogicalDevice, q.Pool, q.context.Allocator)
	q.Pool = nil
}
