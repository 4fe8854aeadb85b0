package ui

import (
	"fmt"
	"sort"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

/**
 * @brief Hands out stable integer handles into the shared
 * shader-visible descriptor heap. Freed handles are reused
 * smallest-first. Only the main thread may mutate the registry.
 */
type ViewRegistry struct {
	heap gpu.DescriptorHeap

	// next is the lowest index never handed out.
	next uint32
	// free holds returned handles, kept sorted ascending.
	free []uint32
	// bound tracks live handles for teardown and validation.
	bound map[uint32]bool
}

func NewViewRegistry(heap gpu.DescriptorHeap) *ViewRegistry {
	return &ViewRegistry{
		heap:  heap,
		bound: make(map[uint32]bool),
	}
}

// BindTextureView registers t in the descriptor heap and returns its
// handle. The smallest previously freed handle is reused before a new
// index is allocated. core.ErrViewRegistryExhausted is returned when
// the heap is full.
func (vr *ViewRegistry) BindTextureView(t gpu.Texture, desc gpu.ViewDesc) (uint32, error) {
	var handle uint32
	if len(vr.free) > 0 {
		handle = vr.free[0]
		vr.free = vr.free[1:]
	} else {
		if vr.next >= vr.heap.Capacity() {
			core.LogError(core.ErrViewRegistryExhausted.Error())
			return 0, core.ErrViewRegistryExhausted
		}
		handle = vr.next
		vr.next++
	}
	if err := vr.heap.WriteTextureView(handle, t, desc); err != nil {
		err = fmt.Errorf("failed to write texture view at slot %d: %w", handle, err)
		core.LogError(err.Error())
		return 0, err
	}
	vr.bound[handle] = true
	return handle, nil
}

// UnbindTextureView returns handle to the free list and immediately
// rewrites its heap slot to a null descriptor so the slot never points
// at a destroyed resource.
func (vr *ViewRegistry) UnbindTextureView(handle uint32) error {
	if !vr.bound[handle] {
		err := fmt.Errorf("unbind of view handle %d which is not bound", handle)
		core.LogWarn(err.Error())
		return err
	}
	delete(vr.bound, handle)
	if err := vr.heap.WriteNull(handle); err != nil {
		core.LogError(err.Error())
		return err
	}
	vr.free = append(vr.free, handle)
	sort.Slice(vr.free, func(i, j int) bool { return vr.free[i] < vr.free[j] })
	return nil
}

// IsBound reports whether handle currently maps to a live view.
func (vr *ViewRegistry) IsBound(handle uint32) bool {
	return vr.bound[handle]
}

// BoundCount reports how many handles are currently live.
func (vr *ViewRegistry) BoundCount() int {
	return len(vr.bound)
}

// FreeCount reports how many handles sit on the free list.
func (vr *ViewRegistry) FreeCount() int {
	return len(vr.free)
}

// Heap exposes the underlying descriptor heap for command binding.
func (vr *ViewRegistry) Heap() gpu.DescriptorHeap {
	return vr.heap
}
