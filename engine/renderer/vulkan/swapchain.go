package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

const acquireTimeoutNS = math.MaxUint64

// VulkanSwapchain acquires eagerly: the current back buffer index is
// always valid between Present calls. The semaphore signaled by the
// acquire is parked on the context so the next graphics submission
// waits on it.
type VulkanSwapchain struct {
	context *VulkanContext
	desc    gpu.SwapchainDesc

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	textures    []*VulkanTexture

	imageAvailable []vk.Semaphore
	acquireIndex   int
	current        uint32
}

func NewVulkanSwapchain(context *VulkanContext, desc gpu.SwapchainDesc) (*VulkanSwapchain, error) {
	s := &VulkanSwapchain{context: context, desc: desc}
	if err := s.create(desc.Width, desc.Height); err != nil {
		return nil, err
	}
	for i := uint32(0); i < desc.BufferCount; i++ {
		semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		var semaphore vk.Semaphore
		if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreInfo, context.Allocator, &semaphore); res != vk.Success {
			s.Destroy()
			err := fmt.Errorf("failed to create image acquire semaphore")
			core.LogError(err.Error())
			return nil, err
		}
		s.imageAvailable = append(s.imageAvailable, semaphore)
	}
	if err := s.acquire(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *VulkanSwapchain) create(width, height uint32) error {
	context := s.context
	support := &context.Device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, support); err != nil {
		return err
	}

	s.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			s.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !s.desc.VSync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	extent.Width = clamp(extent.Width, support.Capabilities.MinImageExtent.Width, support.Capabilities.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, support.Capabilities.MinImageExtent.Height, support.Capabilities.MaxImageExtent.Height)

	imageCount := s.desc.BufferCount
	if imageCount < support.Capabilities.MinImageCount {
		imageCount = support.Capabilities.MinImageCount
	}
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.ImageFormat.Format,
		ImageColorSpace:  s.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create %dx%d swapchain", width, height)
		core.LogError(err.Error())
		return err
	}
	s.Handle = handle

	var count uint32
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, s.Handle, &count, nil); res != vk.Success {
		err := fmt.Errorf("failed to get swapchain images")
		core.LogError(err.Error())
		return err
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, s.Handle, &count, images); res != vk.Success {
		err := fmt.Errorf("failed to get swapchain images")
		core.LogError(err.Error())
		return err
	}

	textureDesc := gpu.TextureDesc{
		Width:        extent.Width,
		Height:       extent.Height,
		Format:       s.desc.Format,
		RenderTarget: true,
	}
	for _, image := range images {
		view, err := newImageView(context, image, s.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		s.textures = append(s.textures, &VulkanTexture{
			context: context,
			desc:    textureDesc,
			Handle:  image,
			View:    view,
		})
	}

	s.desc.Width = extent.Width
	s.desc.Height = extent.Height
	core.LogInfo("Swapchain created with %d images at %dx%d", len(s.textures), extent.Width, extent.Height)
	return nil
}

func (s *VulkanSwapchain) acquire() error {
	s.acquireIndex = (s.acquireIndex + 1) % len(s.imageAvailable)
	semaphore := s.imageAvailable[s.acquireIndex]

	var index uint32
	result := vk.AcquireNextImage(s.context.Device.LogicalDevice, s.Handle, acquireTimeoutNS, semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return core.ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost:
		return core.ErrDeviceRemoved
	default:
		err := fmt.Errorf("failed to acquire swapchain image")
		core.LogError(err.Error())
		return err
	}
	s.current = index
	s.context.PendingWaitSemaphore = semaphore
	return nil
}

func (s *VulkanSwapchain) BufferCount() uint32 { return uint32(len(s.textures)) }

func (s *VulkanSwapchain) CurrentBackBufferIndex() uint32 { return s.current }

func (s *VulkanSwapchain) BackBuffer(index uint32) gpu.Texture { return s.textures[index] }

func (s *VulkanSwapchain) Present() error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.context.RenderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.Handle},
		PImageIndices:      []uint32{s.current},
	}
	result := vk.QueuePresent(s.context.Device.PresentQueue, &presentInfo)
	s.context.RenderCompletePending = false
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return core.ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost:
		return core.ErrDeviceRemoved
	default:
		err := fmt.Errorf("failed to present swapchain image")
		core.LogError(err.Error())
		return err
	}
	return s.acquire()
}

func (s *VulkanSwapchain) Resize(width, height uint32) error {
	vk.DeviceWaitIdle(s.context.Device.LogicalDevice)
	s.releaseImages()
	vk.DestroySwapchain(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
	s.Handle = nil
	if err := s.create(width, height); err != nil {
		return err
	}
	return s.acquire()
}

func (s *VulkanSwapchain) releaseImages() {
	for _, texture := range s.textures {
		texture.Destroy()
	}
	s.textures = nil
}

func (s *VulkanSwapchain) Destroy() {
	vk.DeviceWaitIdle(s.context.Device.LogicalDevice)
	s.releaseImages()
	for _, semaphore := range s.imageAvailable {
		vk.DestroySemaphore(s.context.Device.LogicalDevice, semaphore, s.context.Allocator)
	}
	s.imageAvailable = nil
	if s.Handle != nil {
		vk.DestroySwapchain(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
		s.Handle = nil
	}
}

func clamp(value, lower, upper uint32) uint32 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
