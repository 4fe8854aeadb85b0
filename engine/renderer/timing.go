package renderer

import (
	"encoding/binary"
	"fmt"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

/**
 * @brief One named GPU timing region: a start/end query pair plus the
 * last resolved duration.
 */
type GPUTimer struct {
	Name       string
	startIndex uint32
	endIndex   uint32
	// begun is set when this frame recorded a start timestamp and
	// cleared once the matching end lands or the frame resets.
	begun   bool
	written bool
	/** @brief Last resolved duration in milliseconds. */
	DurationMS float64
}

/**
 * @brief Writes timestamp query pairs for named regions into a fixed
 * query heap and resolves them once per frame. Names register lazily
 * on first BeginTiming.
 */
type GPUTimerPool struct {
	queryHeap gpu.QueryHeap
	readback  gpu.Buffer
	frequency uint64

	maxTimers  uint32
	writeIndex uint32

	timers map[string]*GPUTimer
	order  []string
}

func NewGPUTimerPool(device gpu.Device, maxTimers uint32) (*GPUTimerPool, error) {
	// Two slots per region: start and end.
	heap, err := device.NewQueryHeap(maxTimers * 2)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	readback, err := device.NewBuffer(gpu.BufferDesc{
		Size:     uint64(maxTimers) * 2 * 8,
		Readback: true,
	})
	if err != nil {
		heap.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	return &GPUTimerPool{
		queryHeap: heap,
		readback:  readback,
		frequency: device.GraphicsQueue().TimestampFrequency(),
		maxTimers: maxTimers,
		timers:    make(map[string]*GPUTimer),
	}, nil
}

// BeginTiming writes the start timestamp for name, registering the
// name on first use.
func (tp *GPUTimerPool) BeginTiming(cl gpu.CommandList, name string) {
	t := tp.timers[name]
	if t == nil {
		if uint32(len(tp.order)) >= tp.maxTimers {
			core.LogWarn("gpu timer capacity %d exceeded, ignoring region %s", tp.maxTimers, name)
			return
		}
		t = &GPUTimer{Name: name}
		tp.timers[name] = t
		tp.order = append(tp.order, name)
	}
	if tp.writeIndex+2 > tp.queryHeap.Count() {
		core.LogWarn("gpu timestamp heap exhausted, ignoring region %s", name)
		return
	}
	t.startIndex = tp.writeIndex
	tp.writeIndex++
	t.begun = true
	cl.WriteTimestamp(tp.queryHeap, t.startIndex)
}

// EndTiming writes the end timestamp for name. Ending a region that
// was never begun logs a warning and does nothing.
func (tp *GPUTimerPool) EndTiming(cl gpu.CommandList, name string) {
	t := tp.timers[name]
	if t == nil || !t.begun {
		core.LogWarn("EndTiming for region %s that was never begun, ignoring", name)
		return
	}
	if tp.writeIndex >= tp.queryHeap.Count() {
		return
	}
	t.endIndex = tp.writeIndex
	tp.writeIndex++
	t.begun = false
	t.written = true
	cl.WriteTimestamp(tp.queryHeap, t.endIndex)
}

// NewFrame resets the write index; regions re-register their slots as
// they are begun during the new frame.
func (tp *GPUTimerPool) NewFrame() {
	tp.writeIndex = 0
	for _, t := range tp.timers {
		t.begun = false
		t.written = false
	}
}

// Resolve records the query resolution into the readback buffer. Call
// at the end of command recording, after every region has ended.
func (tp *GPUTimerPool) Resolve(cl gpu.CommandList) {
	if tp.writeIndex == 0 {
		return
	}
	cl.ResolveQueries(tp.queryHeap, 0, tp.writeIndex, tp.readback, 0)
}

// Collect computes each written region's duration from the readback
// buffer. Only call once the frame's fence is known complete.
func (tp *GPUTimerPool) Collect() error {
	data, err := tp.readback.Map()
	if err != nil {
		err = fmt.Errorf("failed to map timing readback buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	defer tp.readback.Unmap()
	for _, name := range tp.order {
		t := tp.timers[name]
		if !t.written {
			continue
		}
		start := binary.LittleEndian.Uint64(data[t.startIndex*8:])
		end := binary.LittleEndian.Uint64(data[t.endIndex*8:])
		if end < start {
			continue
		}
		t.DurationMS = float64(end-start) / float64(tp.frequency) * 1000.0
	}
	return nil
}

// Duration reports the last resolved duration for name in
// milliseconds, and whether the name is registered.
func (tp *GPUTimerPool) Duration(name string) (float64, bool) {
	t, ok := tp.timers[name]
	if !ok {
		return 0, false
	}
	return t.DurationMS, true
}

// Names returns the registered region names in registration order.
func (tp *GPUTimerPool) Names() []string {
	out := make([]string, len(tp.order))
	copy(out, tp.order)
	return out
}

func (tp *GPUTimerPool) Destroy() {
	tp.readback.Destroy()
	tp.queryHeap.Destroy()
}
