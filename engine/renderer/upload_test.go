package renderer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/gpu/null"
)

func uploadTestTexture(t *testing.T, device *null.Device, width, height uint32) gpu.Texture {
	t.Helper()
	tex, err := device.NewTexture(gpu.TextureDesc{Width: width, Height: height, Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	return tex
}

func TestUploadCompletesAndReusesContext(t *testing.T) {
	device := null.NewDevice()
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	data := make([]byte, 16*16*4)
	for i := 0; i < 3; i++ {
		tex := uploadTestTexture(t, device, 16, 16)
		ticket, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, data, 16, 16, gpu.StateNone, gpu.StateShaderResource)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		ticket.Wait()
		if !ticket.Done() {
			t.Fatalf("ticket %d not done after Wait", i)
		}
	}
	// Sequential same-size uploads must share one staging context.
	if n := ue.ContextCount(); n != 1 {
		t.Fatalf("ContextCount = %d after sequential uploads, want 1", n)
	}
}

func TestUploadCompletionEventCarriesExtent(t *testing.T) {
	if !core.EventSystemInitialize() {
		t.Fatal("event system initialize failed")
	}
	defer core.EventSystemShutdown()

	var got *core.UploadEvent
	core.EventRegister(core.EVENT_CODE_UPLOAD_COMPLETED, func(context core.EventContext) bool {
		got, _ = context.Data.(*core.UploadEvent)
		return true
	})

	device := null.NewDevice()
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	tex := uploadTestTexture(t, device, 16, 16)
	data := make([]byte, 16*16*4)
	ticket, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, data, 16, 16, gpu.StateNone, gpu.StateShaderResource)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	ticket.Wait()
	core.ProcessQueued()

	if got == nil {
		t.Fatal("no completion event delivered")
	}
	if got.Width != 16 || got.Height != 16 {
		t.Fatalf("event extent %dx%d, want 16x16", got.Width, got.Height)
	}
	if want := uint64(alignUp(16*4, 256)) * 16; got.Bytes != want {
		t.Fatalf("event bytes %d, want %d", got.Bytes, want)
	}
}

func TestConcurrentUploadsNeverShareAContext(t *testing.T) {
	device := null.NewDevice()
	// Delay fence signals so uploads genuinely overlap.
	device.SignalLatency = 5 * time.Millisecond
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	const workers = 8
	data := make([]byte, 32*32*4)

	var wg sync.WaitGroup
	tickets := make([]*UploadTicket, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tex := uploadTestTexture(t, device, 32, 32)
			tickets[i], errs[i] = ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, data, 32, 32, gpu.StateNone, gpu.StateShaderResource)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("upload %d: %v", i, errs[i])
		}
		tickets[i].Wait()
	}

	// Every overlapping upload claimed its own context, so the pool
	// grew past one but never past the worker count.
	n := ue.ContextCount()
	if n < 2 || n > workers {
		t.Fatalf("ContextCount = %d after %d concurrent uploads", n, workers)
	}

	// All contexts are idle again once every ticket is signaled.
	ue.mu.Lock()
	for i, sc := range ue.contexts {
		if sc.busy.Load() {
			t.Errorf("context %d still busy after completion", i)
		}
	}
	ue.mu.Unlock()
}

func TestOversizeUploadGrowsExactSizeContext(t *testing.T) {
	device := null.NewDevice()
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	small := make([]byte, 16*4)
	tex := uploadTestTexture(t, device, 16, 1)
	ticket, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, small, 16, 1, gpu.StateNone, gpu.StateShaderResource)
	if err != nil {
		t.Fatalf("small upload: %v", err)
	}
	ticket.Wait()
	if n := ue.ContextCount(); n != 1 {
		t.Fatalf("ContextCount = %d, want 1", n)
	}

	// 300 pixels/row does not fit the first context; a new context is
	// allocated with exactly the pitch-aligned footprint.
	const width, height = 300, 4
	big := make([]byte, width*height*4)
	tex = uploadTestTexture(t, device, width, height)
	ticket, err = ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, big, width, height, gpu.StateNone, gpu.StateShaderResource)
	if err != nil {
		t.Fatalf("big upload: %v", err)
	}
	ticket.Wait()

	if n := ue.ContextCount(); n != 2 {
		t.Fatalf("ContextCount = %d after oversize upload, want 2", n)
	}
	wantPitch := alignUp(width*4, device.Capabilities().UploadPitchAlignment)
	wantSize := uint64(wantPitch) * height
	ue.mu.Lock()
	got := ue.contexts[1].buffer.Size()
	ue.mu.Unlock()
	if got != wantSize {
		t.Fatalf("new staging buffer is %d bytes, want %d", got, wantSize)
	}
}

func TestUploadRowsArePitchAligned(t *testing.T) {
	device := null.NewDevice()
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	// 10 pixels/row = 40 source bytes; the staging pitch rounds up to
	// the device's 256-byte alignment.
	const width, height = 10, 3
	data := make([]byte, width*height*4)
	for i := range data {
		data[i] = byte(i)
	}
	tex := uploadTestTexture(t, device, width, height)
	ticket, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, data, width, height, gpu.StateNone, gpu.StateShaderResource)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	ticket.Wait()

	ue.mu.Lock()
	sc := ue.contexts[0]
	ue.mu.Unlock()
	mapped, err := sc.buffer.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	pitch := alignUp(width*4, device.Capabilities().UploadPitchAlignment)
	for row := 0; row < height; row++ {
		src := data[row*width*4 : (row+1)*width*4]
		dst := mapped[row*int(pitch) : row*int(pitch)+width*4]
		for i := range src {
			if src[i] != dst[i] {
				t.Fatalf("row %d byte %d = %d, want %d", row, i, dst[i], src[i])
			}
		}
	}
}

func TestUploadRejectsShortData(t *testing.T) {
	device := null.NewDevice()
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	tex := uploadTestTexture(t, device, 16, 16)
	if _, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, make([]byte, 8), 16, 16, gpu.StateNone, gpu.StateNone); err == nil {
		t.Fatal("upload with short data succeeded")
	}
	if _, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, nil, 0, 0, gpu.StateNone, gpu.StateNone); err == nil {
		t.Fatal("upload with empty extent succeeded")
	}
}

func TestTicketWaitTimeout(t *testing.T) {
	device := null.NewDevice()
	device.SignalLatency = 50 * time.Millisecond
	ue := NewUploadEngine(device)
	defer ue.Shutdown()

	data := make([]byte, 8*8*4)
	tex := uploadTestTexture(t, device, 8, 8)
	ticket, err := ue.QueueTexture2DUpload(tex, gpu.FormatRGBA8Unorm, data, 8, 8, gpu.StateNone, gpu.StateNone)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := ticket.WaitTimeout(time.Millisecond); !errors.Is(err, core.ErrTimedOut) {
		t.Fatalf("WaitTimeout = %v, want ErrTimedOut", err)
	}
	if err := ticket.WaitTimeout(time.Second); err != nil {
		t.Fatalf("WaitTimeout after signal: %v", err)
	}
}
