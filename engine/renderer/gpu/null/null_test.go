package null

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

func TestFenceWaitTimesOut(t *testing.T) {
	device := NewDevice()
	fence, err := device.NewFence(0)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	defer fence.Destroy()

	if err := fence.Wait(1, 5*time.Millisecond); !errors.Is(err, core.ErrTimedOut) {
		t.Fatalf("Wait on unsignaled fence = %v, want ErrTimedOut", err)
	}
}

func TestFenceWaitReturnsOnceSignaled(t *testing.T) {
	device := NewDevice()
	device.SignalLatency = 5 * time.Millisecond
	fence, err := device.NewFence(0)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	defer fence.Destroy()

	if err := device.GraphicsQueue().Signal(fence, 3); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := fence.Wait(3, time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v := fence.CompletedValue(); v != 3 {
		t.Fatalf("CompletedValue = %d, want 3", v)
	}

	// Waiting for an already reached value returns immediately.
	if err := fence.Wait(2, time.Millisecond); err != nil {
		t.Fatalf("Wait on reached value: %v", err)
	}
}

func TestFenceTimedWaitsLeaveNoWaitersBehind(t *testing.T) {
	device := NewDevice()
	fence, err := device.NewFence(0)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	defer fence.Destroy()

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		if err := fence.Wait(1, time.Millisecond); !errors.Is(err, core.ErrTimedOut) {
			t.Fatalf("wait %d = %v, want ErrTimedOut", i, err)
		}
	}
	// Expired timers finish asynchronously; give them a moment.
	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines grew from %d to %d after timed-out waits", before, runtime.NumGoroutine())
		}
		time.Sleep(time.Millisecond)
	}

	// The fence still works after all that timing out.
	if err := device.GraphicsQueue().Signal(fence, 1); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := fence.Wait(1, time.Second); err != nil {
		t.Fatalf("Wait after signal: %v", err)
	}
}

func TestFenceValueNeverRegresses(t *testing.T) {
	device := NewDevice()
	fence, _ := device.NewFence(0)
	defer fence.Destroy()
	queue := device.GraphicsQueue()

	if err := queue.Signal(fence, 5); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	// A stale signal with a lower value must not move the timeline
	// backwards.
	if err := queue.Signal(fence, 2); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if v := fence.CompletedValue(); v != 5 {
		t.Fatalf("CompletedValue = %d, want 5", v)
	}
}

func TestFenceWaitersWakeConcurrently(t *testing.T) {
	device := NewDevice()
	device.SignalLatency = 2 * time.Millisecond
	fence, _ := device.NewFence(0)
	defer fence.Destroy()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fence.Wait(1, time.Second)
		}(i)
	}
	if err := device.GraphicsQueue().Signal(fence, 1); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("waiter %d: %v", i, err)
		}
	}
}

func TestSubmitRejectsOpenLists(t *testing.T) {
	device := NewDevice()
	cl, err := device.NewCommandList()
	if err != nil {
		t.Fatalf("NewCommandList: %v", err)
	}
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := device.GraphicsQueue().Submit(cl); err == nil {
		t.Fatal("submitting an open command list succeeded")
	}
	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := device.GraphicsQueue().Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestRemovedDeviceFailsSubmitsAndPresents(t *testing.T) {
	device := NewDevice()
	sc, err := device.NewSwapchain(gpu.SwapchainDesc{Width: 64, Height: 64, BufferCount: 2, Format: gpu.FormatBGRA8Unorm})
	if err != nil {
		t.Fatalf("NewSwapchain: %v", err)
	}
	defer sc.Destroy()

	device.Remove()
	if !device.Removed() {
		t.Fatal("Removed = false after Remove")
	}
	if err := sc.Present(); !errors.Is(err, core.ErrDeviceRemoved) {
		t.Fatalf("Present = %v, want ErrDeviceRemoved", err)
	}
	cl, _ := device.NewCommandList()
	if err := cl.Reset(); !errors.Is(err, core.ErrDeviceRemoved) {
		t.Fatalf("Reset = %v, want ErrDeviceRemoved", err)
	}
}
