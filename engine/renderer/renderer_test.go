package renderer

import (
	"strings"
	"testing"

	"github.com/prism-engine/prism/engine/config"
	"github.com/prism-engine/prism/engine/renderer/gpu/null"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

func newTestRenderer(t *testing.T, width, height uint32) (*Renderer, *null.Device) {
	t.Helper()
	device := null.NewDevice()
	cfg := config.RendererConfig{
		FramesInFlight:    2,
		VSync:             true,
		RayTracedShadows:  true,
		DebugViewCapacity: 64,
		MaxGPUTimers:      8,
	}
	r, err := New(device, cfg, Shaders{}, 0, width, height)
	if err != nil {
		t.Fatalf("renderer.New: %v", err)
	}
	t.Cleanup(r.Shutdown)
	return r, device
}

func TestTenFramesPresentTenTimes(t *testing.T) {
	r, _ := newTestRenderer(t, 1280, 720)

	drawData := &metadata.DrawData{}
	for i := 0; i < 10; i++ {
		if err := r.DrawFrame(drawData, 0.016); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	if presents := r.swapchain.(*null.Swapchain).Presents(); presents != 10 {
		t.Fatalf("Presents = %d, want 10", presents)
	}
	if r.FenceValue() != 10 {
		t.Fatalf("FenceValue = %d, want 10", r.FenceValue())
	}
	if completed := r.frameFence.CompletedValue(); completed != 10 {
		t.Fatalf("fence CompletedValue = %d, want 10", completed)
	}
}

func TestResizeUpdatesSizedResources(t *testing.T) {
	r, _ := newTestRenderer(t, 1920, 1080)

	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}

	boundBefore := r.Overlay().Registry().BoundCount()

	if err := r.Resize(800, 600); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	if w, h := r.FrameSize(); w != 800 || h != 600 {
		t.Fatalf("FrameSize = %dx%d, want 800x600", w, h)
	}
	depth := r.DepthDesc()
	if depth.Width != 800 || depth.Height != 600 {
		t.Fatalf("depth buffer is %dx%d, want 800x600", depth.Width, depth.Height)
	}
	shadow := r.ShadowDesc()
	if shadow.Width != 800 || shadow.Height != 600 {
		t.Fatalf("shadow buffer is %dx%d, want 800x600", shadow.Width, shadow.Height)
	}

	// The old views were unbound and the new ones bound; the registry
	// must not leak handles across a resize.
	if bound := r.Overlay().Registry().BoundCount(); bound != boundBefore {
		t.Fatalf("BoundCount = %d after resize, want %d", bound, boundBefore)
	}
	if free := r.Overlay().Registry().FreeCount(); free != 0 {
		t.Fatalf("FreeCount = %d after resize, want 0 (handles reused)", free)
	}

	// Frames keep working at the new size.
	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame after resize: %v", err)
	}
}

func TestResizeIsIdempotent(t *testing.T) {
	r, _ := newTestRenderer(t, 1024, 768)

	if err := r.Resize(1024, 768); err != nil {
		t.Fatalf("first resize: %v", err)
	}
	depthFirst := r.DepthDesc()
	shadowFirst := r.ShadowDesc()
	bound := r.Overlay().Registry().BoundCount()

	if err := r.Resize(1024, 768); err != nil {
		t.Fatalf("second resize: %v", err)
	}
	if r.DepthDesc() != depthFirst {
		t.Fatalf("depth desc changed on same-size resize: %+v", r.DepthDesc())
	}
	if r.ShadowDesc() != shadowFirst {
		t.Fatalf("shadow desc changed on same-size resize: %+v", r.ShadowDesc())
	}
	if got := r.Overlay().Registry().BoundCount(); got != bound {
		t.Fatalf("BoundCount = %d after same-size resize, want %d", got, bound)
	}
}

func TestResizeIgnoresZeroExtent(t *testing.T) {
	r, _ := newTestRenderer(t, 640, 480)

	if err := r.Resize(0, 0); err != nil {
		t.Fatalf("zero resize: %v", err)
	}
	if w, h := r.FrameSize(); w != 640 || h != 480 {
		t.Fatalf("FrameSize = %dx%d after zero resize, want 640x480", w, h)
	}
}

func TestDeviceRemovedAtFrameIsNotFatal(t *testing.T) {
	r, device := newTestRenderer(t, 640, 480)

	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}
	fenceBefore := r.FenceValue()

	device.Remove()

	// A removed device abandons the frame without an error; the fence
	// is never signaled for it.
	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame on removed device: %v", err)
	}
	if r.FenceValue() != fenceBefore {
		t.Fatalf("FenceValue advanced to %d on a removed device", r.FenceValue())
	}
	if presents := r.swapchain.(*null.Swapchain).Presents(); presents != 1 {
		t.Fatalf("Presents = %d, want 1", presents)
	}
}

func TestShadowsDegradeWithoutDeviceSupport(t *testing.T) {
	device := null.NewDevice()
	device.DisableRayTracing()
	cfg := config.RendererConfig{
		FramesInFlight:    2,
		VSync:             true,
		RayTracedShadows:  true,
		DebugViewCapacity: 64,
		MaxGPUTimers:      8,
	}
	r, err := New(device, cfg, Shaders{}, 0, 640, 480)
	if err != nil {
		t.Fatalf("renderer.New: %v", err)
	}
	t.Cleanup(r.Shutdown)

	mesh := newTestMesh(t, device)
	r.SetScene([]metadata.Renderable{mesh})
	if err := r.PrepareScene(); err != nil {
		t.Fatalf("PrepareScene: %v", err)
	}
	if r.accel != nil {
		t.Fatal("acceleration structures built on a device without ray tracing")
	}

	device.ResetOps()
	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}

	var sawPresent bool
	for _, op := range device.Ops() {
		if strings.HasPrefix(op, "dispatch-rays") || strings.HasPrefix(op, "build-accel") {
			t.Fatalf("recorded %q without ray tracing support", op)
		}
		if op == "present" {
			sawPresent = true
		}
	}
	if !sawPresent {
		t.Fatal("no present recorded")
	}
}

func TestPreparedSceneRecordsShadowPasses(t *testing.T) {
	r, device := newTestRenderer(t, 640, 480)

	mesh := newTestMesh(t, device)
	r.SetScene([]metadata.Renderable{mesh})
	if err := r.PrepareScene(); err != nil {
		t.Fatalf("PrepareScene: %v", err)
	}
	if r.accel == nil || r.accel.TopLevel == nil {
		t.Fatal("PrepareScene left no top-level structure")
	}

	device.ResetOps()
	if err := r.DrawFrame(&metadata.DrawData{}, 0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}

	var sawRays, sawDispatch, sawPresent bool
	for _, op := range device.Ops() {
		switch {
		case strings.HasPrefix(op, "dispatch-rays"):
			sawRays = true
		case strings.HasPrefix(op, "dispatch "):
			sawDispatch = true
		case op == "present":
			sawPresent = true
		}
	}
	if !sawRays {
		t.Fatal("no ray dispatch recorded for a prepared scene")
	}
	if !sawDispatch {
		t.Fatal("no shadow filter dispatch recorded")
	}
	if !sawPresent {
		t.Fatal("no present recorded")
	}
}
