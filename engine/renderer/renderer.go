package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/prism-engine/prism/engine/config"
	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/components"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/metadata"
	"github.com/prism-engine/prism/engine/renderer/ui"
)

// frameConstantsStride keeps each frame slot's constant region on the
// 256-byte alignment constant buffers require.
const frameConstantsStride = 256

// defaultFrameTimeout bounds every steady-state fence wait so a hung
// GPU surfaces as core.ErrTimedOut instead of a dead main thread.
const defaultFrameTimeout = 10 * time.Second

const defaultIdleTimeout = 30 * time.Second

// Shaders carries the bytecode blobs the renderer's pipelines are
// built from. Loaded by name at boot; a missing blob is fatal there.
type Shaders struct {
	DepthVS   []byte
	ForwardVS []byte
	ForwardPS []byte

	/** @brief Ray tracing library: raygen + miss + closest hit. */
	ShadowLibrary []byte
	ShadowBlurCS  []byte

	OverlayVS []byte
	OverlayPS []byte
}

/**
 * @brief Owns the swapchain, the per-frame synchronization state and
 * the recorded pass order for a frame. One CPU thread records into one
 * command list reused every frame.
 */
type Renderer struct {
	device gpu.Device
	queue  gpu.Queue
	caps   gpu.Capabilities

	swapchain gpu.Swapchain
	width     uint32
	height    uint32

	slotCount  uint32
	frameIndex uint32
	// frameFence is the single graphics timeline. slotFenceValues[i]
	// is the value at which slot i's prior work retires.
	frameFence      gpu.Fence
	fenceValue      uint64
	slotFenceValues []uint64
	frameTimeout    time.Duration

	commandList gpu.CommandList

	depthBuffer  gpu.Texture
	shadowBuffer gpu.Texture
	depthView    uint32
	shadowView   uint32
	viewsBound   bool

	// shadowHeap exposes {shadow UAV, depth SRV} to the ray and filter
	// passes; the acceleration structure binds by address.
	shadowHeap gpu.DescriptorHeap

	frameConstants gpu.Buffer

	depthPipeline   gpu.Pipeline
	forwardPipeline gpu.Pipeline
	shadowPipeline  gpu.Pipeline
	blurPipeline    gpu.Pipeline

	rtEnabled bool

	camera      *components.Camera
	renderables []metadata.Renderable
	accel       *SceneAccel

	timers  *GPUTimerPool
	uploads *UploadEngine
	overlay *ui.Overlay

	lightDirection math.Vec3
	elapsed        float32
}

// New opens the rendering pipeline on an already-created device.
// Pipeline creation failures are fatal: the caller terminates.
func New(device gpu.Device, cfg config.RendererConfig, shaders Shaders, windowHandle uintptr, width, height uint32) (*Renderer, error) {
	r := &Renderer{
		device:         device,
		queue:          device.GraphicsQueue(),
		caps:           device.Capabilities(),
		width:          width,
		height:         height,
		slotCount:      cfg.FramesInFlight,
		frameTimeout:   defaultFrameTimeout,
		camera:         components.NewCamera(),
		lightDirection: math.NewVec3(-0.4, 1.0, 0.3).Normalized(),
	}

	r.rtEnabled = cfg.RayTracedShadows && r.caps.RayTracing
	if cfg.RayTracedShadows && !r.caps.RayTracing {
		core.LogWarn("ray tracing not supported by this device, shadow pass disabled")
	}

	var err error
	r.swapchain, err = device.NewSwapchain(gpu.SwapchainDesc{
		Width:        width,
		Height:       height,
		BufferCount:  cfg.FramesInFlight,
		Format:       gpu.FormatBGRA8Unorm,
		VSync:        cfg.VSync,
		WindowHandle: windowHandle,
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	r.frameFence, err = device.NewFence(0)
	if err != nil {
		r.fail()
		core.LogError(err.Error())
		return nil, err
	}
	r.slotFenceValues = make([]uint64, r.slotCount)

	r.commandList, err = device.NewCommandList()
	if err != nil {
		r.fail()
		core.LogError(err.Error())
		return nil, err
	}

	r.frameConstants, err = device.NewBuffer(gpu.BufferDesc{
		Size:   uint64(r.slotCount) * frameConstantsStride,
		Upload: true,
	})
	if err != nil {
		r.fail()
		core.LogError(err.Error())
		return nil, err
	}

	r.timers, err = NewGPUTimerPool(device, cfg.MaxGPUTimers)
	if err != nil {
		r.fail()
		return nil, err
	}
	r.uploads = NewUploadEngine(device)

	r.overlay, err = ui.NewOverlay(device, ui.OverlayConfig{
		ViewCapacity: cfg.DebugViewCapacity,
		FrameSlots:   r.slotCount,
		VS:           shaders.OverlayVS,
		PS:           shaders.OverlayPS,
		ColorFormat:  gpu.FormatBGRA8Unorm,
	})
	if err != nil {
		r.fail()
		return nil, err
	}

	if err := r.createPipelines(shaders); err != nil {
		r.fail()
		return nil, err
	}

	r.shadowHeap, err = device.NewDescriptorHeap(2)
	if err != nil {
		r.fail()
		core.LogError(err.Error())
		return nil, err
	}

	if err := r.createSizedResources(); err != nil {
		r.fail()
		return nil, err
	}

	r.camera.SetPosition(math.NewVec3(0, 1.5, 4))
	r.camera.SetProjection(math.DegToRad(60), float32(width)/float32(height), 0.1, 1000.0)

	core.LogInfo("renderer ready: %dx%d, %d frame slots, ray tracing %v", width, height, r.slotCount, r.rtEnabled)
	return r, nil
}

func (r *Renderer) createPipelines(shaders Shaders) error {
	vertexAttributes := []gpu.VertexAttribute{
		{Format: gpu.FormatRGB32Float, Offset: 0},  // position
		{Format: gpu.FormatRGB32Float, Offset: 12}, // normal
		{Format: gpu.FormatRG32Float, Offset: 24},  // texcoord
	}
	vertexStride := uint32(32)

	var err error
	r.depthPipeline, err = r.device.NewGraphicsPipeline(gpu.GraphicsPipelineDesc{
		VS:           shaders.DepthVS,
		VertexStride: vertexStride,
		Attributes:   vertexAttributes[:2],
		DepthOnly:    true,
		DepthFormat:  gpu.FormatD32Float,
		DepthTest:    true,
		DepthWrite:   true,
	})
	if err != nil {
		err = fmt.Errorf("failed to create depth prepass pipeline: %w", err)
		core.LogError(err.Error())
		return err
	}

	r.forwardPipeline, err = r.device.NewGraphicsPipeline(gpu.GraphicsPipelineDesc{
		VS:           shaders.ForwardVS,
		PS:           shaders.ForwardPS,
		VertexStride: vertexStride,
		Attributes:   vertexAttributes,
		ColorFormat:  gpu.FormatBGRA8Unorm,
		DepthFormat:  gpu.FormatD32Float,
		DepthTest:    true,
		DepthWrite:   false,
	})
	if err != nil {
		err = fmt.Errorf("failed to create forward pipeline: %w", err)
		core.LogError(err.Error())
		return err
	}

	if r.rtEnabled {
		r.shadowPipeline, err = r.device.NewRayTracingPipeline(gpu.RayTracingPipelineDesc{
			Library:      shaders.ShadowLibrary,
			MaxRecursion: 1,
		})
		if err != nil {
			err = fmt.Errorf("failed to create shadow ray pipeline: %w", err)
			core.LogError(err.Error())
			return err
		}
		r.blurPipeline, err = r.device.NewComputePipeline(gpu.ComputePipelineDesc{
			CS: shaders.ShadowBlurCS,
		})
		if err != nil {
			err = fmt.Errorf("failed to create shadow filter pipeline: %w", err)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// createSizedResources builds everything derived from the framebuffer
// size: depth buffer, shadow buffer and their debug views.
func (r *Renderer) createSizedResources() error {
	var err error
	r.depthBuffer, err = r.device.NewTexture(gpu.TextureDesc{
		Width:        r.width,
		Height:       r.height,
		Format:       gpu.FormatD32Float,
		DepthStencil: true,
	})
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	r.shadowBuffer, err = r.device.NewTexture(gpu.TextureDesc{
		Width:           r.width,
		Height:          r.height,
		Format:          gpu.FormatRG32Float,
		UnorderedAccess: true,
	})
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	registry := r.overlay.Registry()
	r.depthView, err = registry.BindTextureView(r.depthBuffer, gpu.ViewDesc{Format: gpu.FormatR32Float})
	if err != nil {
		return err
	}
	r.shadowView, err = registry.BindTextureView(r.shadowBuffer, gpu.ViewDesc{Format: gpu.FormatRG32Float})
	if err != nil {
		return err
	}
	r.viewsBound = true

	if err := r.shadowHeap.WriteTextureView(0, r.shadowBuffer, gpu.ViewDesc{Format: gpu.FormatRG32Float}); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := r.shadowHeap.WriteTextureView(1, r.depthBuffer, gpu.ViewDesc{Format: gpu.FormatR32Float}); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

// releaseSizedResources tears down in the reverse order: views are
// unbound before their textures are destroyed.
func (r *Renderer) releaseSizedResources() {
	if r.viewsBound {
		registry := r.overlay.Registry()
		registry.UnbindTextureView(r.shadowView)
		registry.UnbindTextureView(r.depthView)
		r.viewsBound = false
	}
	if r.shadowBuffer != nil {
		r.shadowBuffer.Destroy()
		r.shadowBuffer = nil
	}
	if r.depthBuffer != nil {
		r.depthBuffer.Destroy()
		r.depthBuffer = nil
	}
}

// SetScene replaces the renderable set. PrepareScene must run before
// the first frame afterwards.
func (r *Renderer) SetScene(renderables []metadata.Renderable) {
	r.renderables = renderables
}

// PrepareScene builds the ray tracing acceleration structures for the
// current renderable set and drains the queue so they are complete
// before the first shadow dispatch.
func (r *Renderer) PrepareScene() error {
	if !r.rtEnabled {
		return nil
	}
	if r.accel != nil {
		r.accel.Destroy()
		r.accel = nil
	}
	accel, err := BuildSceneAccel(r.device, r.renderables)
	if err != nil {
		return err
	}
	r.accel = accel
	return nil
}

// Camera returns the renderer-owned camera.
func (r *Renderer) Camera() *components.Camera { return r.camera }

// Uploads returns the texture upload engine.
func (r *Renderer) Uploads() *UploadEngine { return r.uploads }

// Timers returns the GPU timing pool.
func (r *Renderer) Timers() *GPUTimerPool { return r.timers }

// Overlay returns the debug overlay, owner of the view registry.
func (r *Renderer) Overlay() *ui.Overlay { return r.overlay }

// FenceValue reports the last signaled frame fence value.
func (r *Renderer) FenceValue() uint64 { return r.fenceValue }

// FrameSize reports the current framebuffer dimensions.
func (r *Renderer) FrameSize() (uint32, uint32) { return r.width, r.height }

// DepthDesc reports the depth buffer's description.
func (r *Renderer) DepthDesc() gpu.TextureDesc { return r.depthBuffer.Desc() }

// ShadowDesc reports the shadow buffer's description.
func (r *Renderer) ShadowDesc() gpu.TextureDesc { return r.shadowBuffer.Desc() }

// WaitIdle signals the graphics timeline one past the last frame and
// blocks until the GPU reaches it. Used before teardown, before resize
// and for synchronous uploads.
func (r *Renderer) WaitIdle() error {
	r.fenceValue++
	if err := r.queue.Signal(r.frameFence, r.fenceValue); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := r.frameFence.Wait(r.fenceValue, defaultIdleTimeout); err != nil {
		err = fmt.Errorf("idle wait for fence value %d: %w", r.fenceValue, err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// ReloadShaders swaps every pipeline for one built from freshly
// compiled blobs. The GPU is drained first, so this is a frame hitch,
// not a seamless swap.
func (r *Renderer) ReloadShaders(shaders Shaders) error {
	if err := r.WaitIdle(); err != nil {
		return err
	}
	for _, p := range []gpu.Pipeline{r.depthPipeline, r.forwardPipeline, r.shadowPipeline, r.blurPipeline} {
		if p != nil {
			p.Destroy()
		}
	}
	r.depthPipeline, r.forwardPipeline, r.shadowPipeline, r.blurPipeline = nil, nil, nil, nil
	if err := r.createPipelines(shaders); err != nil {
		return err
	}
	core.LogInfo("pipelines rebuilt from reloaded shaders")
	return nil
}

// Resize recreates every size-derived resource. Destroy strictly
// precedes the swapchain resize; the swapchain cannot resize while
// references to its buffers remain.
func (r *Renderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogDebug("ignoring resize to %dx%d", width, height)
		return nil
	}
	if err := r.WaitIdle(); err != nil {
		return err
	}
	r.releaseSizedResources()
	if err := r.swapchain.Resize(width, height); err != nil {
		core.LogError(err.Error())
		return err
	}
	r.width = width
	r.height = height
	if err := r.createSizedResources(); err != nil {
		return err
	}
	r.camera.SetAspect(float32(width) / float32(height))
	r.frameIndex = r.swapchain.CurrentBackBufferIndex()
	core.LogInfo("resized to %dx%d", width, height)
	return nil
}

// Shutdown drains the GPU and releases every resource.
func (r *Renderer) Shutdown() {
	if err := r.WaitIdle(); err != nil && !errors.Is(err, core.ErrDeviceRemoved) {
		core.LogWarn("shutdown idle wait failed: %s", err.Error())
	}
	r.uploads.Shutdown()
	if r.accel != nil {
		r.accel.Destroy()
		r.accel = nil
	}
	r.releaseSizedResources()
	if r.shadowHeap != nil {
		r.shadowHeap.Destroy()
	}
	if r.overlay != nil {
		r.overlay.Destroy()
	}
	if r.timers != nil {
		r.timers.Destroy()
	}
	for _, p := range []gpu.Pipeline{r.depthPipeline, r.forwardPipeline, r.shadowPipeline, r.blurPipeline} {
		if p != nil {
			p.Destroy()
		}
	}
	if r.frameConstants != nil {
		r.frameConstants.Destroy()
	}
	if r.frameFence != nil {
		r.frameFence.Destroy()
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
	}
}

// fail releases whatever New managed to create before erroring out.
func (r *Renderer) fail() {
	if r.overlay != nil {
		r.overlay.Destroy()
		r.overlay = nil
	}
	if r.timers != nil {
		r.timers.Destroy()
		r.timers = nil
	}
	if r.frameConstants != nil {
		r.frameConstants.Destroy()
		r.frameConstants = nil
	}
	if r.frameFence != nil {
		r.frameFence.Destroy()
		r.frameFence = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
}
