package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport VulkanSwapchainSupportInfo

	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool
	TransferCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format

	// TimestampPeriod is nanoseconds per timestamp tick.
	TimestampPeriod float32
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

type vulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

type vulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	TransferFamilyIndex int32
}

func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	presentSharesGraphicsQueue := context.Device.GraphicsQueueIndex == context.Device.PresentQueueIndex
	transferSharesGraphicsQueue := context.Device.GraphicsQueueIndex == context.Device.TransferQueueIndex
	indexCount := 1
	if !presentSharesGraphicsQueue {
		indexCount++
	}
	if !transferSharesGraphicsQueue {
		indexCount++
	}
	indices := make([]uint32, 0, indexCount)
	indices = append(indices, uint32(context.Device.GraphicsQueueIndex))
	if !presentSharesGraphicsQueue {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}
	if !transferSharesGraphicsQueue {
		indices = append(indices, uint32(context.Device.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, indexCount)
	for i := 0; i < indexCount; i++ {
		queueCreateInfos[i].SType = vk.StructureTypeDeviceQueueCreateInfo
		queueCreateInfos[i].QueueFamilyIndex = indices[i]
		queueCreateInfos[i].QueueCount = 1
		queueCreateInfos[i].PQueuePriorities = []float32{1.0}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceFeatures.SamplerAnisotropy = vk.True

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if runtime.GOOS == "darwin" {
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(indexCount),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(
		context.Device.PhysicalDevice,
		&deviceCreateInfo,
		context.Allocator,
		&context.Device.LogicalDevice); res != vk.Success {
		err := fmt.Errorf("failed to create logical device")
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.GraphicsQueueIndex), 0, &context.Device.GraphicsQueue)
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.PresentQueueIndex), 0, &context.Device.PresentQueue)
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.TransferQueueIndex), 0, &context.Device.TransferQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(
		context.Device.LogicalDevice,
		&poolCreateInfo,
		context.Allocator,
		&context.Device.GraphicsCommandPool); res != vk.Success {
		err := fmt.Errorf("failed to create graphics command pool")
		core.LogError(err.Error())
		return err
	}

	transferPoolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.TransferQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(
		context.Device.LogicalDevice,
		&transferPoolCreateInfo,
		context.Allocator,
		&context.Device.TransferCommandPool); res != vk.Success {
		err := fmt.Errorf("failed to create transfer command pool")
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Command pools created.")

	if !deviceDetectDepthFormat(context.Device) {
		err := fmt.Errorf("failed to find a supported depth format")
		core.LogError(err.Error())
		return err
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil
	context.Device.TransferQueue = nil

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
	vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.TransferCommandPool, context.Allocator)

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	context.Device.GraphicsQueueIndex = -1
	context.Device.PresentQueueIndex = -1
	context.Device.TransferQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		err := fmt.Errorf("failed to get physical device surface capabilities")
		core.LogError(err.Error())
		return err
	}
	supportInfo.Capabilities.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get physical device surface formats")
		core.LogError(err.Error())
		return err
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			err := fmt.Errorf("failed to get physical device surface formats")
			core.LogError(err.Error())
			return err
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get physical device surface present modes")
		core.LogError(err.Error())
		return err
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			err := fmt.Errorf("failed to get physical device surface present modes")
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func deviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func selectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to enumerate physical devices")
		core.LogError(err.Error())
		return err
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		err := fmt.Errorf("failed to enumerate physical devices")
		core.LogError(err.Error())
		return err
	}

	requirements := vulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	for _, pd := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		properties.Limits.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()

		queueInfo, supportInfo, meets := deviceMeetsRequirements(pd, context.Surface, &features, &requirements)
		if !meets {
			continue
		}

		core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))

		context.Device.PhysicalDevice = pd
		context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		context.Device.TransferQueueIndex = queueInfo.TransferFamilyIndex
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory
		context.Device.SwapchainSupport = *supportInfo
		context.Device.TimestampPeriod = properties.Limits.TimestampPeriod
		return nil
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements")
	core.LogError(err.Error())
	return err
}

func deviceHasExtension(pd vk.PhysicalDevice, name string) bool {
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &availableExtensionCount, nil); res != vk.Success {
		return false
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false
	}
	for i := range availableExtensions {
		availableExtensions[i].Deref()
		end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
		if name == vk.ToString(availableExtensions[i].ExtensionName[:end+1]) {
			return true
		}
	}
	return false
}

func deviceMeetsRequirements(
	pd vk.PhysicalDevice,
	surface vk.Surface,
	features *vk.PhysicalDeviceFeatures,
	requirements *vulkanPhysicalDeviceRequirements,
) (*vulkanPhysicalDeviceQueueFamilyInfo, *VulkanSwapchainSupportInfo, bool) {
	queueInfo := &vulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	// Prefer a dedicated transfer family: the one with the fewest
	// additional capabilities.
	minTransferScore := uint8(255)
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		currentTransferScore := uint8(0)

		if queueInfo.GraphicsFamilyIndex == -1 && queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
			currentTransferScore++
		}
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			currentTransferScore++
		}
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			if currentTransferScore <= minTransferScore {
				minTransferScore = currentTransferScore
				queueInfo.TransferFamilyIndex = int32(i)
			}
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent); res == vk.Success && supportsPresent == vk.True {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}

	if requirements.Graphics && queueInfo.GraphicsFamilyIndex == -1 {
		return nil, nil, false
	}
	if requirements.Present && queueInfo.PresentFamilyIndex == -1 {
		return nil, nil, false
	}
	if requirements.Transfer && queueInfo.TransferFamilyIndex == -1 {
		return nil, nil, false
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy != vk.True {
		return nil, nil, false
	}
	for _, name := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(pd, name) {
			return nil, nil, false
		}
	}

	supportInfo := &VulkanSwapchainSupportInfo{}
	if err := DeviceQuerySwapchainSupport(pd, surface, supportInfo); err != nil {
		return nil, nil, false
	}
	if supportInfo.FormatCount < 1 || supportInfo.PresentModeCount < 1 {
		return nil, nil, false
	}
	return queueInfo, supportInfo, true
}
