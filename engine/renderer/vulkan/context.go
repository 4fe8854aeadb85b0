package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
)

type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	// TODO: only in DEBUG mode
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// Consumed by the next graphics submission: the semaphore the
	// swapchain acquire signaled.
	PendingWaitSemaphore vk.Semaphore
	// Signaled by the graphics submission that renders the frame,
	// waited on by present.
	RenderCompleteSemaphore vk.Semaphore
	// True while that signal has not been consumed by a present.
	RenderCompletePending bool

	// Shared pipeline layout: set 0 is the bindless view array, set 1
	// a single dynamic uniform buffer. Heap indices travel as push
	// constants.
	HeapLayout     vk.DescriptorSetLayout
	UniformLayout  vk.DescriptorSetLayout
	PipelineLayout vk.PipelineLayout
	// Stage mask the push constant range was created with.
	PushStages vk.ShaderStageFlags

	// Pool backing the per-buffer uniform sets.
	UniformPool vk.DescriptorPool

	passCache        map[renderPassKey]vk.RenderPass
	framebufferCache map[framebufferKey]vk.Framebuffer
}

type renderPassKey struct {
	ColorFormat   vk.Format
	DepthFormat   vk.Format
	ClearColor    bool
	ClearDepth    bool
	DepthReadOnly bool
}

type framebufferKey struct {
	ColorView vk.ImageView
	DepthView vk.ImageView
	Width     uint32
	Height    uint32
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
