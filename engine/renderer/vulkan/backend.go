package vulkan

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/platform"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// Backend is the Vulkan implementation of the device abstraction.
type Backend struct {
	platform *platform.Platform
	context  *VulkanContext

	graphics *VulkanQueue
	copy     *VulkanQueue

	removed atomic.Bool
	debug   bool
}

func NewBackend(p *platform.Platform, appName string, width, height uint32, debug bool) (*Backend, error) {
	b := &Backend{
		platform: p,
		context: &VulkanContext{
			FramebufferWidth:  width,
			FramebufferHeight: height,
		},
		debug: debug,
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("vulkan loader entry point not found")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vulkan: %s", err)
		return nil, err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Prism Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, p.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var layers []string
	if debug {
		if validationLayerAvailable() {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
		} else {
			core.LogWarn("Validation layer requested but not available")
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &b.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed to create vulkan instance")
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(b.context.Instance); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan instance created")

	if debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			core.LogWarn("failed to create debug report callback")
		} else {
			b.context.debugMessenger = dbg
		}
	}

	surface, err := p.Window.CreateWindowSurface(b.context.Instance, nil)
	if err != nil {
		b.Destroy()
		core.LogError("vulkan surface creation failed: %s", err)
		return nil, err
	}
	b.context.Surface = vk.SurfaceFromPointer(surface)

	if err := DeviceCreate(b.context); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := createSharedLayouts(b.context); err != nil {
		b.Destroy()
		return nil, err
	}

	semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if res := vk.CreateSemaphore(b.context.Device.LogicalDevice, &semaphoreInfo, b.context.Allocator, &b.context.RenderCompleteSemaphore); res != vk.Success {
		b.Destroy()
		err := fmt.Errorf("failed to create render complete semaphore")
		core.LogError(err.Error())
		return nil, err
	}

	b.graphics = &VulkanQueue{backend: b, handle: b.context.Device.GraphicsQueue, presentable: true}
	b.copy = &VulkanQueue{backend: b, handle: b.context.Device.TransferQueue}
	return b, nil
}

func validationLayerAvailable() bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		if vk.ToString(available[i].LayerName[:end+1]) == "VK_LAYER_KHRONOS_validation" {
			return true
		}
	}
	return false
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (b *Backend) Capabilities() gpu.Capabilities {
	frequency := uint64(0)
	if b.context.Device.TimestampPeriod > 0 {
		frequency = uint64(1e9 / b.context.Device.TimestampPeriod)
	}
	return gpu.Capabilities{
		// See raytracing.go: the binding wraps no ray tracing entry
		// points, so the capability is never advertised.
		RayTracing:           false,
		TimestampFrequency:   frequency,
		UploadPitchAlignment: 256,
	}
}

func (b *Backend) GraphicsQueue() gpu.Queue { return b.graphics }
func (b *Backend) CopyQueue() gpu.Queue     { return b.copy }

func (b *Backend) NewFence(initialValue uint64) (gpu.Fence, error) {
	return NewVulkanFence(b.context, initialValue), nil
}

func (b *Backend) NewCommandList() (gpu.CommandList, error) {
	return NewVulkanCommandList(b.context)
}

func (b *Backend) NewBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	return NewVulkanBuffer(b.context, desc)
}

func (b *Backend) NewTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	return NewVulkanTexture(b.context, desc)
}

func (b *Backend) NewDescriptorHeap(capacity uint32) (gpu.DescriptorHeap, error) {
	return NewVulkanDescriptorHeap(b.context, capacity)
}

func (b *Backend) NewQueryHeap(count uint32) (gpu.QueryHeap, error) {
	return NewVulkanQueryHeap(b.context, count)
}

func (b *Backend) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	return NewVulkanSwapchain(b.context, desc)
}

func (b *Backend) NewGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	return NewVulkanGraphicsPipeline(b.context, desc)
}

func (b *Backend) NewComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return NewVulkanComputePipeline(b.context, desc)
}

func (b *Backend) Removed() bool { return b.removed.Load() }

func (b *Backend) noteResult(res vk.Result) {
	if res == vk.ErrorDeviceLost {
		b.removed.Store(true)
	}
}

func (b *Backend) Destroy() {
	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(b.context.Device.LogicalDevice)
		if b.context.RenderCompleteSemaphore != nil {
			vk.DestroySemaphore(b.context.Device.LogicalDevice, b.context.RenderCompleteSemaphore, b.context.Allocator)
			b.context.RenderCompleteSemaphore = nil
		}
		destroySharedLayouts(b.context)
		DeviceDestroy(b.context)
	}
	if b.context.Surface != nil {
		vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
		b.context.Surface = nil
	}
	if b.context.debugMessenger != nil {
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = nil
	}
	if b.context.Instance != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

// VulkanQueue submits onto one hardware queue. The presentable queue
// weaves the swapchain handshake into its submissions: the pending
// acquire semaphore gates execution and the render complete semaphore
// is signaled for present to wait on.
type VulkanQueue struct {
	backend     *Backend
	handle      vk.Queue
	presentable bool
}

func (q *VulkanQueue) Submit(lists ...gpu.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, list := range lists {
		cl := list.(*VulkanCommandList)
		if cl.open {
			err := fmt.Errorf("submitting a command list that was not closed")
			core.LogError(err.Error())
			return err
		}
		buffers = append(buffers, cl.Buffer)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if q.presentable && q.backend.context.PendingWaitSemaphore != nil {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{q.backend.context.PendingWaitSemaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		q.backend.context.PendingWaitSemaphore = nil
	}
	if q.presentable && !q.backend.context.RenderCompletePending {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{q.backend.context.RenderCompleteSemaphore}
		q.backend.context.RenderCompletePending = true
	}

	res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	q.backend.noteResult(res)
	if res == vk.ErrorDeviceLost {
		return core.ErrDeviceRemoved
	}
	if res != vk.Success {
		err := fmt.Errorf("queue submission failed")
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (q *VulkanQueue) Signal(fence gpu.Fence, value uint64) error {
	f := fence.(*VulkanFence)
	vkFence, err := f.acquireFence()
	if err != nil {
		return err
	}
	res := vk.QueueSubmit(q.handle, 0, nil, vkFence)
	q.backend.noteResult(res)
	if res == vk.ErrorDeviceLost {
		return core.ErrDeviceRemoved
	}
	if res != vk.Success {
		err := fmt.Errorf("fence signal submission failed")
		core.LogError(err.Error())
		return err
	}
	f.enqueue(value, vkFence)
	return nil
}

func (q *VulkanQueue) TimestampFrequency() uint64 {
	return q.backend.Capabilities().TimestampFrequency
}
