// Package null implements the gpu interfaces entirely in software. It
// records enough state for headless runs and ordering assertions
// without touching a real driver.
package null

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// Device is a simulated GPU. Submitted work "completes" immediately,
// unless SignalLatency delays fence signals to exercise waiters.
type Device struct {
	caps gpu.Capabilities

	graphics *Queue
	copy     *Queue

	// SignalLatency delays every queue Signal by the given duration on
	// a background goroutine. Zero means signals land synchronously.
	SignalLatency time.Duration

	removed atomic.Bool

	mu  sync.Mutex
	ops []string

	timestamp atomic.Uint64
}

// NewDevice opens a simulated device. Ray tracing is reported as
// supported so every pass can run.
func NewDevice() *Device {
	d := &Device{
		caps: gpu.Capabilities{
			RayTracing:           true,
			TimestampFrequency:   1_000_000_000,
			UploadPitchAlignment: 256,
		},
	}
	d.graphics = &Queue{device: d, name: "graphics"}
	d.copy = &Queue{device: d, name: "copy"}
	return d
}

func (d *Device) Capabilities() gpu.Capabilities { return d.caps }

// DisableRayTracing makes the device report ray tracing unsupported,
// the shape of a backend whose binding exposes no such entry points.
func (d *Device) DisableRayTracing() { d.caps.RayTracing = false }
func (d *Device) GraphicsQueue() gpu.Queue       { return d.graphics }
func (d *Device) CopyQueue() gpu.Queue           { return d.copy }

func (d *Device) record(format string, args ...any) {
	d.mu.Lock()
	d.ops = append(d.ops, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

// Ops returns a copy of every recorded operation in submission order.
func (d *Device) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

// ResetOps clears the recorded operation log.
func (d *Device) ResetOps() {
	d.mu.Lock()
	d.ops = d.ops[:0]
	d.mu.Unlock()
}

// Remove marks the device as lost.
func (d *Device) Remove() { d.removed.Store(true) }

func (d *Device) Removed() bool { return d.removed.Load() }

func (d *Device) nextTimestamp() uint64 { return d.timestamp.Add(1000) }

func (d *Device) NewFence(initialValue uint64) (gpu.Fence, error) {
	f := &Fence{}
	f.value.Store(initialValue)
	f.cond = sync.NewCond(&f.mu)
	return f, nil
}

func (d *Device) NewCommandList() (gpu.CommandList, error) {
	return &CommandList{device: d}, nil
}

func (d *Device) NewBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	return &Buffer{desc: desc, data: make([]byte, desc.Size), address: nextAddress(desc.Size)}, nil
}

func (d *Device) NewTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	return &Texture{desc: desc}, nil
}

func (d *Device) NewDescriptorHeap(capacity uint32) (gpu.DescriptorHeap, error) {
	return &DescriptorHeap{slots: make([]gpu.Texture, capacity)}, nil
}

func (d *Device) NewQueryHeap(count uint32) (gpu.QueryHeap, error) {
	return &QueryHeap{count: count}, nil
}

func (d *Device) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	sc := &Swapchain{device: d, desc: desc}
	sc.recreateBuffers()
	return sc, nil
}

func (d *Device) NewGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	return &Pipeline{kind: "graphics"}, nil
}

func (d *Device) NewComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return &Pipeline{kind: "compute"}, nil
}

func (d *Device) NewRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	if !d.caps.RayTracing {
		return nil, core.ErrRayTracingUnsupported
	}
	return &Pipeline{kind: "raytracing"}, nil
}

func (d *Device) AccelPrebuildInfo(inputs gpu.AccelInputs) gpu.AccelPrebuildInfo {
	if inputs.TopLevel {
		if inputs.InstanceCount == 0 {
			return gpu.AccelPrebuildInfo{}
		}
		return gpu.AccelPrebuildInfo{
			ResultSize:  uint64(inputs.InstanceCount) * 256,
			ScratchSize: uint64(inputs.InstanceCount) * 128,
		}
	}
	var prims uint64
	for _, g := range inputs.Geometries {
		prims += uint64(g.IndexCount / 3)
	}
	if prims == 0 {
		return gpu.AccelPrebuildInfo{}
	}
	return gpu.AccelPrebuildInfo{ResultSize: prims * 64, ScratchSize: prims * 32}
}

func (d *Device) NewAccelStructure(size uint64, inputs gpu.AccelInputs) (gpu.AccelStructure, error) {
	return &AccelStructure{size: size, address: nextAddress(size)}, nil
}

func (d *Device) Destroy() {}

// addressCounter hands out fake, non-overlapping GPU virtual
// addresses so instance records stay distinguishable in tests.
var addressCounter atomic.Uint64

func nextAddress(size uint64) uint64 {
	if size == 0 {
		size = 1
	}
	return addressCounter.Add((size + 255) &^ 255)
}
