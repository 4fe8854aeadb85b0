package ui

import (
	"errors"
	"testing"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/gpu/null"
)

func newTestRegistry(t *testing.T, capacity uint32) (*ViewRegistry, *null.Device) {
	t.Helper()
	device := null.NewDevice()
	heap, err := device.NewDescriptorHeap(capacity)
	if err != nil {
		t.Fatalf("NewDescriptorHeap: %v", err)
	}
	return NewViewRegistry(heap), device
}

func newTestTexture(t *testing.T, device *null.Device) gpu.Texture {
	t.Helper()
	tex, err := device.NewTexture(gpu.TextureDesc{Width: 4, Height: 4, Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	return tex
}

func TestBindReturnsDisjointHandles(t *testing.T) {
	vr, device := newTestRegistry(t, 16)

	seen := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		handle, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
		if err != nil {
			t.Fatalf("bind %d: %v", i, err)
		}
		if seen[handle] {
			t.Fatalf("handle %d handed out twice", handle)
		}
		seen[handle] = true
	}
	if vr.BoundCount() != 16 {
		t.Fatalf("BoundCount = %d, want 16", vr.BoundCount())
	}
}

func TestUnbindReusesSmallestHandleFirst(t *testing.T) {
	vr, device := newTestRegistry(t, 16)

	handles := make([]uint32, 5)
	for i := range handles {
		h, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
		if err != nil {
			t.Fatalf("bind %d: %v", i, err)
		}
		handles[i] = h
	}

	// Free out of order; reuse must still come back ascending.
	if err := vr.UnbindTextureView(handles[3]); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if err := vr.UnbindTextureView(handles[1]); err != nil {
		t.Fatalf("unbind: %v", err)
	}

	h, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if h != handles[1] {
		t.Fatalf("first reuse = %d, want %d", h, handles[1])
	}
	h, err = vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if h != handles[3] {
		t.Fatalf("second reuse = %d, want %d", h, handles[3])
	}

	// Free list exhausted; the next bind extends the range.
	h, err = vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if h != 5 {
		t.Fatalf("fresh handle = %d, want 5", h)
	}
}

func TestBindFailsWhenHeapIsFull(t *testing.T) {
	vr, device := newTestRegistry(t, 2)

	for i := 0; i < 2; i++ {
		if _, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm}); err != nil {
			t.Fatalf("bind %d: %v", i, err)
		}
	}
	if _, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm}); !errors.Is(err, core.ErrViewRegistryExhausted) {
		t.Fatalf("bind past capacity = %v, want ErrViewRegistryExhausted", err)
	}

	// An unbind makes room again.
	if err := vr.UnbindTextureView(0); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if _, err := vr.BindTextureView(newTestTexture(t, device), gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm}); err != nil {
		t.Fatalf("bind after unbind: %v", err)
	}
}

func TestUnbindRewritesSlotToNull(t *testing.T) {
	vr, device := newTestRegistry(t, 4)

	tex := newTestTexture(t, device)
	handle, err := vr.BindTextureView(tex, gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	heap := vr.Heap().(*null.DescriptorHeap)
	if heap.Slot(handle) != tex {
		t.Fatalf("slot %d does not point at the bound texture", handle)
	}

	if err := vr.UnbindTextureView(handle); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if heap.Slot(handle) != nil {
		t.Fatalf("slot %d still holds a texture after unbind", handle)
	}
	if vr.IsBound(handle) {
		t.Fatalf("handle %d still reported bound", handle)
	}
}

func TestUnbindUnknownHandleFails(t *testing.T) {
	vr, _ := newTestRegistry(t, 4)
	if err := vr.UnbindTextureView(3); err == nil {
		t.Fatal("unbind of a never-bound handle succeeded")
	}
}
