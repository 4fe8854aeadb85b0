package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/renderer/gpu"
)

func VulkanResultIsSuccess(result vk.Result) bool {
	switch result {
	default:
		fallthrough
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset,
		vk.Incomplete, vk.Suboptimal, vk.ThreadIdle, vk.ThreadDone,
		vk.OperationDeferred, vk.OperationNotDeferred, vk.PipelineCompileRequired:
		return true
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorInitializationFailed,
		vk.ErrorDeviceLost, vk.ErrorMemoryMapFailed, vk.ErrorLayerNotPresent,
		vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent, vk.ErrorIncompatibleDriver,
		vk.ErrorTooManyObjects, vk.ErrorFormatNotSupported, vk.ErrorFragmentedPool,
		vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse, vk.ErrorOutOfDate, vk.ErrorIncompatibleDisplay,
		vk.ErrorInvalidShaderNv, vk.ErrorOutOfPoolMemory, vk.ErrorInvalidExternalHandle,
		vk.ErrorFragmentation, vk.ErrorInvalidDeviceAddress, vk.ErrorFullScreenExclusiveModeLost,
		vk.ErrorUnknown:
		return false
	}
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	for i := range list {
		list[i] = VulkanSafeString(list[i])
	}
	return list
}

func FindFirstZeroInByteArray(arr []byte) int {
	end := 0
	for i, b := range arr {
		if b == 0 {
			end = i
			break
		}
	}
	return end
}

func VulkanFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatR8Unorm:
		return vk.FormatR8Unorm
	case gpu.FormatR32Float:
		return vk.FormatR32Sfloat
	case gpu.FormatRG32Float:
		return vk.FormatR32g32Sfloat
	case gpu.FormatRGB32Float:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat
	case gpu.FormatR16Uint:
		return vk.FormatR16Uint
	case gpu.FormatR32Uint:
		return vk.FormatR32Uint
	}
	return vk.FormatUndefined
}

// stateSync maps an abstract resource state to the image layout,
// access mask and pipeline stage a barrier needs.
func stateSync(s gpu.ResourceState) (vk.ImageLayout, vk.AccessFlags, vk.PipelineStageFlags) {
	switch s {
	case gpu.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gpu.StateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case gpu.StateDepthRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case gpu.StateShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit)
	case gpu.StateUnorderedAccess:
		return vk.ImageLayoutGeneral,
			vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case gpu.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gpu.StateCopySource:
		return vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessTransferReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gpu.StatePresent:
		return vk.ImageLayoutPresentSrc,
			vk.AccessFlags(vk.AccessMemoryReadBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return vk.ImageLayoutUndefined,
		vk.AccessFlags(0),
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

// sliceUint32 reinterprets SPIR-V bytes as the word slice the loader
// expects. Callers validate the length is word aligned.
func sliceUint32(data []byte) []uint32 {
	const wordSize = 4
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/wordSize)
}
