package vulkan

import (
	"errors"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// The vulkan binding this backend is written against wraps no ray
// tracing entry points: there is no vkCreateAccelerationStructure or
// vkCmdTraceRays wrapper at any extension spelling, so the shadow ray
// work cannot be recorded even on hardware that carries the
// extension. Capabilities therefore reports ray tracing unsupported
// and the renderer shades without shadows for the process lifetime.
// These stubs keep the device interface complete; none of them is
// reachable while capabilities are honored.

var errRayTracingUnavailable = errors.New("ray tracing entry points are not exposed by the vulkan binding")

func (b *Backend) NewRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	core.LogError(errRayTracingUnavailable.Error())
	return nil, errRayTracingUnavailable
}

func (b *Backend) NewAccelStructure(size uint64, inputs gpu.AccelInputs) (gpu.AccelStructure, error) {
	core.LogError(errRayTracingUnavailable.Error())
	return nil, errRayTracingUnavailable
}

func (b *Backend) AccelPrebuildInfo(inputs gpu.AccelInputs) gpu.AccelPrebuildInfo {
	return gpu.AccelPrebuildInfo{}
}

func (cl *VulkanCommandList) SetAccelStructure(slot uint32, as gpu.AccelStructure) {
	core.LogWarn("acceleration structure bind recorded without ray tracing support")
}

func (cl *VulkanCommandList) DispatchRays(width, height uint32) {
	core.LogWarn("dispatch rays recorded without ray tracing support")
}

func (cl *VulkanCommandList) BuildAccelerationStructure(dst gpu.AccelStructure, scratch gpu.Buffer, inputs gpu.AccelInputs) {
	core.LogWarn("acceleration structure build recorded without ray tracing support")
}
