package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	stdmath "math"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

const blurGroupSize = 8

// DrawFrame records and submits one complete frame: depth prepass,
// ray-traced shadows and filtering when available, forward shading,
// the debug overlay, then present. Strictly sequential on the calling
// thread.
func (r *Renderer) DrawFrame(drawData *metadata.DrawData, deltaTime float32) error {
	r.elapsed += deltaTime
	slot := r.frameIndex

	// 1. Acquire: the slot's prior GPU work must be complete before
	// any of its resources are touched.
	if target := r.slotFenceValues[slot]; target > 0 {
		if err := r.frameFence.Wait(target, r.frameTimeout); err != nil {
			err = fmt.Errorf("frame slot %d wait for fence value %d: %w", slot, target, err)
			core.LogError(err.Error())
			return err
		}
		// The slot's previous frame has fully retired; its resolved
		// timestamps are now safe to read.
		if err := r.timers.Collect(); err != nil {
			return err
		}
	}

	// 2. Reset recording state.
	if err := r.commandList.Reset(); err != nil {
		if errors.Is(err, core.ErrDeviceRemoved) {
			core.LogWarn("device removed, skipping frame")
			return nil
		}
		core.LogError(err.Error())
		return err
	}
	r.timers.NewFrame()
	r.writeFrameConstants(slot)

	cl := r.commandList
	cl.SetViewportScissor(r.width, r.height)
	cl.SetConstantBuffer(0, r.frameConstants, uint64(slot)*frameConstantsStride)

	// 3. Depth prepass.
	r.timers.BeginTiming(cl, "depth_prepass")
	cl.ClearDepth(r.depthBuffer, 1.0)
	cl.SetRenderTargets(nil, r.depthBuffer)
	cl.SetPipeline(r.depthPipeline)
	for _, renderable := range r.renderables {
		renderable.RecordDepthDraw(cl)
	}
	r.timers.EndTiming(cl, "depth_prepass")

	// The shadow passes need a built top-level structure; until the
	// scene has been prepared the frame falls back to unshadowed
	// forward shading.
	shadowsActive := r.rtEnabled && r.accel != nil && r.accel.TopLevel != nil
	if shadowsActive {
		// 4. Shadow rays: one ray per pixel from the reconstructed
		// world position toward the light.
		r.timers.BeginTiming(cl, "shadow_rays")
		cl.Transition(r.depthBuffer, gpu.StateDepthWrite, gpu.StateShaderResource)
		cl.SetPipeline(r.shadowPipeline)
		cl.SetDescriptorHeap(r.shadowHeap)
		cl.SetDescriptorTable(1, 0)
		cl.SetAccelStructure(2, r.accel.TopLevel)
		cl.DispatchRays(r.width, r.height)
		cl.UAVBarrierTexture(r.shadowBuffer)
		r.timers.EndTiming(cl, "shadow_rays")

		// 5. Adaptive filter over the shadow buffer.
		r.timers.BeginTiming(cl, "shadow_filter")
		cl.SetPipeline(r.blurPipeline)
		cl.SetDescriptorHeap(r.shadowHeap)
		cl.SetDescriptorTable(1, 0)
		groupsX := (r.width + blurGroupSize - 1) / blurGroupSize
		groupsY := (r.height + blurGroupSize - 1) / blurGroupSize
		cl.Dispatch(groupsX, groupsY, 1)
		cl.UAVBarrierTexture(r.shadowBuffer)
		r.timers.EndTiming(cl, "shadow_filter")

		cl.Transition(r.shadowBuffer, gpu.StateUnorderedAccess, gpu.StateShaderResource)
		cl.Transition(r.depthBuffer, gpu.StateShaderResource, gpu.StateDepthRead)
	} else {
		cl.Transition(r.depthBuffer, gpu.StateDepthWrite, gpu.StateDepthRead)
	}

	// 6. Forward pass against the acquired back buffer.
	backIndex := r.swapchain.CurrentBackBufferIndex()
	backBuffer := r.swapchain.BackBuffer(backIndex)

	r.timers.BeginTiming(cl, "forward")
	cl.Transition(backBuffer, gpu.StatePresent, gpu.StateRenderTarget)
	cl.ClearRenderTarget(backBuffer, 0.05, 0.05, 0.08, 1.0)
	cl.SetRenderTargets(backBuffer, r.depthBuffer)
	cl.SetPipeline(r.forwardPipeline)
	cl.SetDescriptorHeap(r.overlay.Registry().Heap())
	if shadowsActive {
		cl.SetDescriptorTable(1, r.shadowView)
	}
	for _, renderable := range r.renderables {
		renderable.RecordDraw(cl)
	}
	r.timers.EndTiming(cl, "forward")

	// 7. Debug overlay on the same color target, no depth.
	r.timers.BeginTiming(cl, "overlay")
	cl.SetRenderTargets(backBuffer, nil)
	if err := r.overlay.Render(cl, drawData, slot, r.width, r.height, 0, 0); err != nil {
		return err
	}
	r.timers.EndTiming(cl, "overlay")

	// Return size-derived resources to their frame-entry states.
	if shadowsActive {
		cl.Transition(r.shadowBuffer, gpu.StateShaderResource, gpu.StateUnorderedAccess)
	}
	cl.Transition(r.depthBuffer, gpu.StateDepthRead, gpu.StateDepthWrite)

	// 8. Barrier + submit.
	r.timers.Resolve(cl)
	cl.Transition(backBuffer, gpu.StateRenderTarget, gpu.StatePresent)
	if err := cl.Close(); err != nil {
		return err
	}
	if err := r.queue.Submit(cl); err != nil {
		if errors.Is(err, core.ErrDeviceRemoved) {
			core.LogWarn("device removed at submit, skipping frame")
			return nil
		}
		core.LogError(err.Error())
		return err
	}

	// 9. Present. Device removal abandons the frame: log, leave the
	// fence unsignaled and let the next frame try again.
	if err := r.swapchain.Present(); err != nil {
		if errors.Is(err, core.ErrDeviceRemoved) {
			core.LogWarn("device removed at present, skipping frame")
			return nil
		}
		core.LogError(err.Error())
		return err
	}

	// 10. Retire: signal, advance, and block if the next slot is still
	// in flight.
	r.fenceValue++
	if err := r.queue.Signal(r.frameFence, r.fenceValue); err != nil {
		core.LogError(err.Error())
		return err
	}
	r.slotFenceValues[slot] = r.fenceValue
	r.frameIndex = r.swapchain.CurrentBackBufferIndex()
	if target := r.slotFenceValues[r.frameIndex]; target > 0 && r.frameFence.CompletedValue() < target {
		if err := r.frameFence.Wait(target, r.frameTimeout); err != nil {
			err = fmt.Errorf("retire wait for fence value %d: %w", target, err)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// writeFrameConstants fills the slot's 256-byte constant region. Only
// called after the slot's fence wait, so the GPU cannot be reading it.
func (r *Renderer) writeFrameConstants(slot uint32) {
	uniforms := metadata.FrameUniforms{
		View:           r.camera.GetView(),
		Projection:     r.camera.GetProjection(),
		CameraPosition: vec4From(r.camera.GetPosition(), 1),
		LightDirection: vec4From(r.lightDirection, 0),
		Params:         math.NewVec4(r.elapsed, 2.0, float32(r.width), float32(r.height)),
	}
	mapped, err := r.frameConstants.Map()
	if err != nil {
		core.LogError(err.Error())
		return
	}
	encodeFrameUniforms(mapped[uint64(slot)*frameConstantsStride:], uniforms)
	r.frameConstants.Unmap()
}

func vec4From(v math.Vec3, w float32) math.Vec4 {
	return math.NewVec4(v.X, v.Y, v.Z, w)
}

func encodeFrameUniforms(dst []byte, u metadata.FrameUniforms) {
	offset := 0
	putMat4 := func(m math.Mat4) {
		for _, f := range m.Data {
			binary.LittleEndian.PutUint32(dst[offset:], stdmath.Float32bits(f))
			offset += 4
		}
	}
	putVec4 := func(v math.Vec4) {
		for _, f := range [4]float32{v.X, v.Y, v.Z, v.W} {
			binary.LittleEndian.PutUint32(dst[offset:], stdmath.Float32bits(f))
			offset += 4
		}
	}
	putMat4(u.View)
	putMat4(u.Projection)
	putVec4(u.CameraPosition)
	putVec4(u.LightDirection)
	putVec4(u.Params)
}
