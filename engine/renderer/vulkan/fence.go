package vulkan

import (
	"fmt"
	stdmath "math"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
)

/**
 * @brief Emulates a monotonically increasing GPU timeline on top of
 * binary fences: every Signal submits an empty batch carrying a
 * vk.Fence, which signals once all prior work on the queue completes.
 */
type VulkanFence struct {
	context *VulkanContext

	mu        sync.Mutex
	completed uint64
	// pending maps a timeline value to the fence that proves it.
	// Values signal in submission order, so a signaled entry retires
	// every value at or below it.
	pending map[uint64]vk.Fence
	free    []vk.Fence
}

func NewVulkanFence(context *VulkanContext, initialValue uint64) *VulkanFence {
	return &VulkanFence{
		context:   context,
		completed: initialValue,
		pending:   make(map[uint64]vk.Fence),
	}
}

// acquireFence returns a reset binary fence, reusing retired ones.
func (vf *VulkanFence) acquireFence() (vk.Fence, error) {
	if n := len(vf.free); n > 0 {
		fence := vf.free[n-1]
		vf.free = vf.free[:n-1]
		if res := vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{fence}); res != vk.Success {
			err := fmt.Errorf("failed to reset fence")
			core.LogError(err.Error())
			return nil, err
		}
		return fence, nil
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if res := vk.CreateFence(vf.context.Device.LogicalDevice, &fenceCreateInfo, vf.context.Allocator, &fence); res != vk.Success {
		err := fmt.Errorf("failed to create fence")
		core.LogError(err.Error())
		return nil, err
	}
	return fence, nil
}

// enqueue registers value as pending behind the given binary fence.
// Called by the queue right after the signaling submission.
func (vf *VulkanFence) enqueue(value uint64, fence vk.Fence) {
	vf.mu.Lock()
	vf.pending[value] = fence
	vf.mu.Unlock()
}

// poll retires every pending value whose fence has signaled. Caller
// holds vf.mu.
func (vf *VulkanFence) poll() {
	for value, fence := range vf.pending {
		if vk.GetFenceStatus(vf.context.Device.LogicalDevice, fence) != vk.Success {
			continue
		}
		if value > vf.completed {
			vf.completed = value
		}
		vf.free = append(vf.free, fence)
		delete(vf.pending, value)
	}
}

func (vf *VulkanFence) CompletedValue() uint64 {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.poll()
	return vf.completed
}

func (vf *VulkanFence) Wait(value uint64, timeout time.Duration) error {
	timeoutNs := uint64(stdmath.MaxUint64)
	deadline := time.Time{}
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
		deadline = time.Now().Add(timeout)
	}

	vf.mu.Lock()
	vf.poll()
	if vf.completed >= value {
		vf.mu.Unlock()
		return nil
	}
	// Wait on the smallest pending value that covers the target.
	var waitValue uint64 = stdmath.MaxUint64
	var waitFence vk.Fence
	for v, f := range vf.pending {
		if v >= value && v < waitValue {
			waitValue = v
			waitFence = f
		}
	}
	vf.mu.Unlock()

	if waitFence != nil {
		result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{waitFence}, vk.True, timeoutNs)
		switch result {
		case vk.Success:
		case vk.Timeout:
			return core.ErrTimedOut
		case vk.ErrorDeviceLost:
			return core.ErrDeviceRemoved
		default:
			err := fmt.Errorf("fence wait failed for value %d", value)
			core.LogError(err.Error())
			return err
		}
		vf.mu.Lock()
		vf.poll()
		vf.mu.Unlock()
		return nil
	}

	// The value has not been signaled on the queue yet; poll until it
	// appears or the deadline passes.
	for {
		vf.mu.Lock()
		vf.poll()
		done := vf.completed >= value
		vf.mu.Unlock()
		if done {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return core.ErrTimedOut
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (vf *VulkanFence) Destroy() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	for _, fence := range vf.pending {
		vk.DestroyFence(vf.context.Device.LogicalDevice, fence, vf.context.Allocator)
	}
	vf.pending = map[uint64]vk.Fence{}
	for _, fence := range vf.free {
		vk.DestroyFence(vf.context.Device.LogicalDevice, fence, vf.context.Allocator)
	}
	vf.free = nil
}
