package renderer

import (
	"testing"

	"github.com/prism-engine/prism/engine/renderer/gpu/null"
)

func TestTimingDurationsAreNonnegative(t *testing.T) {
	device := null.NewDevice()
	pool, err := NewGPUTimerPool(device, 4)
	if err != nil {
		t.Fatalf("NewGPUTimerPool: %v", err)
	}
	defer pool.Destroy()

	cl, err := device.NewCommandList()
	if err != nil {
		t.Fatalf("NewCommandList: %v", err)
	}
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	pool.NewFrame()
	pool.BeginTiming(cl, "depth")
	pool.EndTiming(cl, "depth")
	pool.BeginTiming(cl, "forward")
	pool.EndTiming(cl, "forward")
	pool.Resolve(cl)
	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := device.GraphicsQueue().Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := pool.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	names := pool.Names()
	if len(names) != 2 || names[0] != "depth" || names[1] != "forward" {
		t.Fatalf("Names = %v", names)
	}
	for _, name := range names {
		ms, ok := pool.Duration(name)
		if !ok {
			t.Fatalf("region %s not registered", name)
		}
		if ms < 0 {
			t.Fatalf("region %s duration %v ms is negative", name, ms)
		}
	}
}

func TestEndTimingWithoutBeginIsNoop(t *testing.T) {
	device := null.NewDevice()
	pool, err := NewGPUTimerPool(device, 4)
	if err != nil {
		t.Fatalf("NewGPUTimerPool: %v", err)
	}
	defer pool.Destroy()

	cl, _ := device.NewCommandList()
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	pool.NewFrame()
	pool.EndTiming(cl, "never_begun")

	if _, ok := pool.Duration("never_begun"); ok {
		t.Fatal("EndTiming without Begin registered a region")
	}
	if len(pool.Names()) != 0 {
		t.Fatalf("Names = %v, want empty", pool.Names())
	}
}

func TestEndTimingAfterSkippedBeginIsNoop(t *testing.T) {
	device := null.NewDevice()
	pool, err := NewGPUTimerPool(device, 4)
	if err != nil {
		t.Fatalf("NewGPUTimerPool: %v", err)
	}
	defer pool.Destroy()

	cl, _ := device.NewCommandList()
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	pool.NewFrame()
	pool.BeginTiming(cl, "depth")
	pool.EndTiming(cl, "depth")

	// The next frame never begins the region again; its end must not
	// pair with the previous frame's start slot.
	pool.NewFrame()
	device.ResetOps()
	pool.EndTiming(cl, "depth")
	if ops := device.Ops(); len(ops) != 0 {
		t.Fatalf("EndTiming without Begin recorded %v", ops)
	}
	if pool.timers["depth"].written {
		t.Fatal("region marked written without a start timestamp")
	}

	// A second end after a balanced pair is likewise ignored.
	pool.BeginTiming(cl, "depth")
	pool.EndTiming(cl, "depth")
	device.ResetOps()
	pool.EndTiming(cl, "depth")
	if ops := device.Ops(); len(ops) != 0 {
		t.Fatalf("double EndTiming recorded %v", ops)
	}
}

func TestTimerCapacityIsEnforced(t *testing.T) {
	device := null.NewDevice()
	pool, err := NewGPUTimerPool(device, 2)
	if err != nil {
		t.Fatalf("NewGPUTimerPool: %v", err)
	}
	defer pool.Destroy()

	cl, _ := device.NewCommandList()
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	pool.NewFrame()
	pool.BeginTiming(cl, "a")
	pool.EndTiming(cl, "a")
	pool.BeginTiming(cl, "b")
	pool.EndTiming(cl, "b")
	// Over capacity: ignored, not fatal.
	pool.BeginTiming(cl, "c")
	pool.EndTiming(cl, "c")

	if len(pool.Names()) != 2 {
		t.Fatalf("Names = %v, want 2 regions", pool.Names())
	}
	if _, ok := pool.Duration("c"); ok {
		t.Fatal("over-capacity region was registered")
	}
}

func TestTimingSurvivesMultipleFrames(t *testing.T) {
	device := null.NewDevice()
	pool, err := NewGPUTimerPool(device, 4)
	if err != nil {
		t.Fatalf("NewGPUTimerPool: %v", err)
	}
	defer pool.Destroy()

	cl, _ := device.NewCommandList()
	for frame := 0; frame < 3; frame++ {
		if err := cl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		pool.NewFrame()
		pool.BeginTiming(cl, "frame")
		pool.EndTiming(cl, "frame")
		pool.Resolve(cl)
		if err := cl.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := device.GraphicsQueue().Submit(cl); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := pool.Collect(); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if ms, ok := pool.Duration("frame"); !ok || ms < 0 {
			t.Fatalf("frame %d duration = %v, %v", frame, ms, ok)
		}
	}
	if len(pool.Names()) != 1 {
		t.Fatalf("region re-registered across frames: %v", pool.Names())
	}
}
