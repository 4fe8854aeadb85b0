package renderer

import (
	"fmt"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

/**
 * @brief The ray-tracing scene: one bottom-level structure per
 * renderable plus one top-level structure over their instances. Built
 * once before the first frame; the test scene is static.
 */
type SceneAccel struct {
	TopLevel gpu.AccelStructure

	bottomLevel    []gpu.AccelStructure
	instanceBuffer gpu.Buffer
	scratch        gpu.Buffer
}

// BuildSceneAccel sizes, allocates and builds every acceleration
// structure in one command list submission, then drains the queue so
// the structures are ready before any shadow ray dispatch. A zero
// prebuild size for any build is a configuration error and aborts.
func BuildSceneAccel(device gpu.Device, renderables []metadata.Renderable) (*SceneAccel, error) {
	type pending struct {
		renderable metadata.Renderable
		inputs     gpu.AccelInputs
		info       gpu.AccelPrebuildInfo
	}

	var builds []pending
	for _, r := range renderables {
		geoms := r.AccelGeometry()
		if len(geoms) == 0 {
			continue
		}
		inputs := gpu.AccelInputs{Geometries: geoms}
		info := device.AccelPrebuildInfo(inputs)
		if info.ResultSize == 0 {
			err := fmt.Errorf("acceleration structure prebuild returned zero size for %d geometries", len(geoms))
			core.LogError(err.Error())
			return nil, err
		}
		builds = append(builds, pending{renderable: r, inputs: inputs, info: info})
	}
	if len(builds) == 0 {
		err := fmt.Errorf("no ray-traceable geometry in the scene")
		core.LogError(err.Error())
		return nil, err
	}

	sa := &SceneAccel{}

	// One scratch allocation sized to the largest requirement; builds
	// reuse it sequentially with UAV barriers in between.
	var maxScratch uint64
	for _, b := range builds {
		if b.info.ScratchSize > maxScratch {
			maxScratch = b.info.ScratchSize
		}
	}

	topInputs := gpu.AccelInputs{TopLevel: true, InstanceCount: uint32(len(builds))}
	topInfo := device.AccelPrebuildInfo(topInputs)
	if topInfo.ResultSize == 0 {
		err := fmt.Errorf("top-level acceleration structure prebuild returned zero size for %d instances", len(builds))
		core.LogError(err.Error())
		return nil, err
	}
	if topInfo.ScratchSize > maxScratch {
		maxScratch = topInfo.ScratchSize
	}

	var err error
	sa.scratch, err = device.NewBuffer(gpu.BufferDesc{Size: maxScratch, UnorderedAccess: true})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	for _, b := range builds {
		as, err := device.NewAccelStructure(b.info.ResultSize, b.inputs)
		if err != nil {
			sa.Destroy()
			core.LogError(err.Error())
			return nil, err
		}
		sa.bottomLevel = append(sa.bottomLevel, as)
		b.renderable.SetAccelStructure(as)
	}

	sa.instanceBuffer, err = device.NewBuffer(gpu.BufferDesc{
		Size:   uint64(len(builds)) * gpu.InstanceDescSize,
		Upload: true,
	})
	if err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	if err := sa.writeInstances(renderables); err != nil {
		sa.Destroy()
		return nil, err
	}

	sa.TopLevel, err = device.NewAccelStructure(topInfo.ResultSize, topInputs)
	if err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}

	cl, err := device.NewCommandList()
	if err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	if err := cl.Reset(); err != nil {
		sa.Destroy()
		return nil, err
	}
	for _, b := range builds {
		cl.BuildAccelerationStructure(b.renderable.AccelStructure(), sa.scratch, b.inputs)
		// The next build reuses the scratch buffer; its writes must be
		// visible first.
		cl.UAVBarrier(sa.scratch)
	}
	topInputs.InstanceBuffer = sa.instanceBuffer
	cl.BuildAccelerationStructure(sa.TopLevel, sa.scratch, topInputs)
	cl.UAVBarrier(sa.scratch)
	if err := cl.Close(); err != nil {
		sa.Destroy()
		return nil, err
	}

	queue := device.GraphicsQueue()
	if err := queue.Submit(cl); err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	fence, err := device.NewFence(0)
	if err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	defer fence.Destroy()
	if err := queue.Signal(fence, 1); err != nil {
		sa.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	if err := fence.Wait(1, 30*time.Second); err != nil {
		sa.Destroy()
		core.LogError("timed out waiting for acceleration structure builds")
		return nil, err
	}
	return sa, nil
}

// writeInstances serializes one instance record per ray-traceable
// renderable: a row-major 3x4 transform plus the bottom-level
// structure address.
func (sa *SceneAccel) writeInstances(renderables []metadata.Renderable) error {
	mapped, err := sa.instanceBuffer.Map()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	defer sa.instanceBuffer.Unmap()

	offset := 0
	id := uint32(0)
	for _, r := range renderables {
		as := r.AccelStructure()
		if as == nil {
			continue
		}
		desc := gpu.InstanceDesc{
			Transform:    transform3x4(r.WorldTransform()),
			InstanceID:   id,
			Mask:         0xFF,
			AccelAddress: as.GPUAddress(),
		}
		desc.Encode(mapped[offset : offset+gpu.InstanceDescSize])
		offset += gpu.InstanceDescSize
		id++
	}
	return nil
}

// transform3x4 converts a column-major Mat4 into the row-major 3x4
// layout instance records use.
func transform3x4(m math.Mat4) [12]float32 {
	return [12]float32{
		m.Data[0], m.Data[4], m.Data[8], m.Data[12],
		m.Data[1], m.Data[5], m.Data[9], m.Data[13],
		m.Data[2], m.Data[6], m.Data[10], m.Data[14],
	}
}

func (sa *SceneAccel) Destroy() {
	if sa.TopLevel != nil {
		sa.TopLevel.Destroy()
		sa.TopLevel = nil
	}
	for _, as := range sa.bottomLevel {
		as.Destroy()
	}
	sa.bottomLevel = nil
	if sa.instanceBuffer != nil {
		sa.instanceBuffer.Destroy()
		sa.instanceBuffer = nil
	}
	if sa.scratch != nil {
		sa.scratch.Destroy()
		sa.scratch = nil
	}
}
