package null

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// Queue executes submitted lists synchronously; the simulated GPU has
// no pipeline depth.
type Queue struct {
	device *Device
	name   string
}

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	if q.device.Removed() {
		return core.ErrDeviceRemoved
	}
	for _, l := range lists {
		cl := l.(*CommandList)
		if !cl.closed {
			err := fmt.Errorf("submitted an open command list on queue %s", q.name)
			core.LogError(err.Error())
			return err
		}
		q.device.mu.Lock()
		q.device.ops = append(q.device.ops, cl.ops...)
		q.device.mu.Unlock()
	}
	return nil
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	if q.device.Removed() {
		return core.ErrDeviceRemoved
	}
	f := fence.(*Fence)
	if q.device.SignalLatency > 0 {
		delay := q.device.SignalLatency
		go func() {
			time.Sleep(delay)
			f.signal(value)
		}()
		return nil
	}
	f.signal(value)
	return nil
}

func (q *Queue) TimestampFrequency() uint64 {
	return q.device.caps.TimestampFrequency
}

// Fence is a software timeline: an atomic value plus a condition
// variable for blocking waiters.
type Fence struct {
	value atomic.Uint64
	mu    sync.Mutex
	cond  *sync.Cond
}

func (f *Fence) signal(value uint64) {
	f.mu.Lock()
	if value > f.value.Load() {
		f.value.Store(value)
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *Fence) CompletedValue() uint64 { return f.value.Load() }

func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	if f.value.Load() >= value {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if timeout <= 0 {
		for f.value.Load() < value {
			f.cond.Wait()
		}
		return nil
	}
	// The expiry flag is flipped under the same lock the wait loop
	// holds, so the waiter itself observes the timeout and no helper
	// goroutine is left parked on the condition.
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		f.mu.Lock()
		timedOut = true
		f.mu.Unlock()
		f.cond.Broadcast()
	})
	defer timer.Stop()
	for f.value.Load() < value {
		if timedOut {
			return core.ErrTimedOut
		}
		f.cond.Wait()
	}
	return nil
}

func (f *Fence) Destroy() {}

// Buffer is plain host memory. Map always succeeds.
type Buffer struct {
	desc    gpu.BufferDesc
	data    []byte
	address uint64
}

func (b *Buffer) Map() ([]byte, error) { return b.data, nil }
func (b *Buffer) Unmap()               {}
func (b *Buffer) GPUAddress() uint64   { return b.address }
func (b *Buffer) Size() uint64         { return b.desc.Size }
func (b *Buffer) Destroy()             { b.data = nil }

type Texture struct {
	desc gpu.TextureDesc
}

func (t *Texture) Desc() gpu.TextureDesc { return t.desc }
func (t *Texture) Destroy()              {}

// DescriptorHeap tracks which texture each slot points at; a nil slot
// is a null descriptor.
type DescriptorHeap struct {
	mu    sync.Mutex
	slots []gpu.Texture
}

func (h *DescriptorHeap) Capacity() uint32 { return uint32(len(h.slots)) }

func (h *DescriptorHeap) WriteTextureView(index uint32, t gpu.Texture, desc gpu.ViewDesc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.slots)) {
		return fmt.Errorf("descriptor write at %d exceeds heap capacity %d", index, len(h.slots))
	}
	h.slots[index] = t
	return nil
}

func (h *DescriptorHeap) WriteNull(index uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.slots)) {
		return fmt.Errorf("descriptor write at %d exceeds heap capacity %d", index, len(h.slots))
	}
	h.slots[index] = nil
	return nil
}

// Slot reports the texture bound at index, nil for null descriptors.
func (h *DescriptorHeap) Slot(index uint32) gpu.Texture {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[index]
}

func (h *DescriptorHeap) Destroy() {}

// QueryHeap stores synthetic timestamps written during execution.
type QueryHeap struct {
	count  uint32
	mu     sync.Mutex
	values []uint64
}

func (q *QueryHeap) Count() uint32 { return q.count }
func (q *QueryHeap) Destroy()      {}

func (q *QueryHeap) write(index uint32, value uint64) {
	q.mu.Lock()
	if q.values == nil {
		q.values = make([]uint64, q.count)
	}
	if index < q.count {
		q.values[index] = value
	}
	q.mu.Unlock()
}

func (q *QueryHeap) read(index uint32) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.values == nil || index >= q.count {
		return 0
	}
	return q.values[index]
}

type Pipeline struct {
	kind string
}

func (p *Pipeline) Destroy() {}

type AccelStructure struct {
	size    uint64
	address uint64
}

func (a *AccelStructure) GPUAddress() uint64 { return a.address }
func (a *AccelStructure) Destroy()           {}

// Swapchain cycles a fixed set of simulated back buffers and counts
// presents.
type Swapchain struct {
	device *Device
	desc   gpu.SwapchainDesc

	mu       sync.Mutex
	buffers  []*Texture
	current  uint32
	presents uint64
}

func (s *Swapchain) recreateBuffers() {
	s.buffers = make([]*Texture, s.desc.BufferCount)
	for i := range s.buffers {
		s.buffers[i] = &Texture{desc: gpu.TextureDesc{
			Width:        s.desc.Width,
			Height:       s.desc.Height,
			Format:       s.desc.Format,
			RenderTarget: true,
		}}
	}
	s.current = 0
}

func (s *Swapchain) BufferCount() uint32 { return s.desc.BufferCount }

func (s *Swapchain) CurrentBackBufferIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Swapchain) BackBuffer(index uint32) gpu.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[index]
}

func (s *Swapchain) Present() error {
	if s.device.Removed() {
		return core.ErrDeviceRemoved
	}
	s.mu.Lock()
	s.presents++
	s.current = (s.current + 1) % s.desc.BufferCount
	s.mu.Unlock()
	s.device.record("present")
	return nil
}

// Presents reports how many frames have been presented.
func (s *Swapchain) Presents() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

func (s *Swapchain) Resize(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desc.Width = width
	s.desc.Height = height
	s.recreateBuffers()
	s.device.record("swapchain-resize %dx%d", width, height)
	return nil
}

func (s *Swapchain) Destroy() {}
