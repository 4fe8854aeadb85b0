package renderer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

/**
 * @brief One reusable staging slot: an upload buffer, a dedicated copy
 * command list and a fence. At most one upload is ever in flight per
 * context; the busy flag is claimed with a compare-and-swap.
 */
type stagingContext struct {
	buffer     gpu.Buffer
	list       gpu.CommandList
	fence      gpu.Fence
	fenceValue uint64
	busy       atomic.Bool
}

// UploadTicket is handed back for every queued upload and becomes
// signaled once the upload's GPU work completes.
type UploadTicket struct {
	done chan struct{}
}

// Wait blocks until the upload has completed on the GPU.
func (t *UploadTicket) Wait() {
	<-t.done
}

// WaitTimeout blocks until completion or until timeout passes, in
// which case core.ErrTimedOut is returned. A timeout <= 0 waits
// without bound.
func (t *UploadTicket) WaitTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		<-t.done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return nil
	case <-timer.C:
		return core.ErrTimedOut
	}
}

// Done reports completion without blocking.
func (t *UploadTicket) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

/**
 * @brief Uploads 2D pixel data into GPU textures without blocking the
 * render loop. The staging pool only grows; contexts are reused once
 * their fence retires.
 */
type UploadEngine struct {
	device gpu.Device
	queue  gpu.Queue

	pitchAlignment uint32

	mu       sync.Mutex
	contexts []*stagingContext
}

func NewUploadEngine(device gpu.Device) *UploadEngine {
	return &UploadEngine{
		device:         device,
		queue:          device.CopyQueue(),
		pitchAlignment: device.Capabilities().UploadPitchAlignment,
	}
}

func alignUp(value, alignment uint32) uint32 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// QueueTexture2DUpload copies data (tightly packed rows of
// width*format.Size() bytes) into dst and returns a ticket signaled at
// GPU completion. Pass gpu.StateNone for before/after to skip the
// corresponding transition.
func (ue *UploadEngine) QueueTexture2DUpload(dst gpu.Texture, format gpu.Format, data []byte, width, height uint32, before, after gpu.ResourceState) (*UploadTicket, error) {
	srcPitch := width * format.Size()
	if srcPitch == 0 || height == 0 {
		err := fmt.Errorf("texture upload with empty extent %dx%d", width, height)
		core.LogError(err.Error())
		return nil, err
	}
	if uint64(len(data)) < uint64(srcPitch)*uint64(height) {
		err := fmt.Errorf("texture upload data is %d bytes, need %d", len(data), uint64(srcPitch)*uint64(height))
		core.LogError(err.Error())
		return nil, err
	}

	dstPitch := alignUp(srcPitch, ue.pitchAlignment)
	required := uint64(dstPitch) * uint64(height)

	sc, err := ue.claimContext(required)
	if err != nil {
		return nil, err
	}

	mapped, err := sc.buffer.Map()
	if err != nil {
		sc.busy.Store(false)
		core.LogError(err.Error())
		return nil, err
	}
	for row := uint32(0); row < height; row++ {
		src := data[row*srcPitch : (row+1)*srcPitch]
		copy(mapped[uint64(row)*uint64(dstPitch):], src)
	}
	sc.buffer.Unmap()

	if err := sc.list.Reset(); err != nil {
		sc.busy.Store(false)
		return nil, err
	}
	sc.list.Transition(dst, before, gpu.StateCopyDest)
	sc.list.CopyBufferToTexture(dst, sc.buffer, 0, dstPitch)
	sc.list.Transition(dst, gpu.StateCopyDest, after)
	if err := sc.list.Close(); err != nil {
		sc.busy.Store(false)
		return nil, err
	}
	if err := ue.queue.Submit(sc.list); err != nil {
		sc.busy.Store(false)
		core.LogError(err.Error())
		return nil, err
	}
	sc.fenceValue++
	target := sc.fenceValue
	if err := ue.queue.Signal(sc.fence, target); err != nil {
		sc.busy.Store(false)
		core.LogError(err.Error())
		return nil, err
	}

	ticket := &UploadTicket{done: make(chan struct{})}
	// Yield-spin rather than a blocking OS wait so short uploads never
	// park a thread.
	go func() {
		for sc.fence.CompletedValue() < target {
			runtime.Gosched()
		}
		sc.busy.Store(false)
		// Queue before signaling the ticket, so a waiter that drains
		// the queue right after Wait always sees the event.
		core.EventEnqueue(core.EventContext{
			Type: core.EVENT_CODE_UPLOAD_COMPLETED,
			Data: &core.UploadEvent{Width: width, Height: height, Bytes: required},
		})
		close(ticket.done)
	}()
	return ticket, nil
}

// claimContext finds an idle context with at least required bytes of
// staging space, or grows the pool with an exactly-sized one. The
// returned context has its busy flag already set.
func (ue *UploadEngine) claimContext(required uint64) (*stagingContext, error) {
	ue.mu.Lock()
	for _, sc := range ue.contexts {
		if sc.buffer.Size() < required {
			continue
		}
		if sc.busy.CompareAndSwap(false, true) {
			ue.mu.Unlock()
			return sc, nil
		}
	}
	ue.mu.Unlock()

	buffer, err := ue.device.NewBuffer(gpu.BufferDesc{Size: required, Upload: true})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	list, err := ue.device.NewCommandList()
	if err != nil {
		buffer.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	fence, err := ue.device.NewFence(0)
	if err != nil {
		buffer.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	sc := &stagingContext{buffer: buffer, list: list, fence: fence}
	sc.busy.Store(true)

	ue.mu.Lock()
	ue.contexts = append(ue.contexts, sc)
	ue.mu.Unlock()
	return sc, nil
}

// ContextCount reports the current staging pool size.
func (ue *UploadEngine) ContextCount() int {
	ue.mu.Lock()
	defer ue.mu.Unlock()
	return len(ue.contexts)
}

// Shutdown waits out every in-flight upload and releases the pool.
func (ue *UploadEngine) Shutdown() {
	ue.mu.Lock()
	contexts := ue.contexts
	ue.contexts = nil
	ue.mu.Unlock()
	for _, sc := range contexts {
		for sc.busy.Load() {
			runtime.Gosched()
		}
		sc.fence.Destroy()
		sc.buffer.Destroy()
	}
}
