package core

import (
	"sync"

	"github.com/prism-engine/prism/engine/containers"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Data is *KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Data is *KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Mouse button pressed. Data is *ButtonEvent.
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x04
	// Mouse button released. Data is *ButtonEvent.
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x05
	// Mouse moved. Data is *MouseEvent.
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x06
	// Mouse wheel scrolled. Data is *MouseEvent.
	EVENT_CODE_MOUSE_WHEEL SystemEventCode = 0x07
	// Resized/resolution changed from the OS. Data is *SystemEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// Window focus gained or lost. Data is *FocusEvent.
	EVENT_CODE_FOCUS SystemEventCode = 0x09
	// Unicode character input. Data is *TextEvent.
	EVENT_CODE_TEXT_INPUT SystemEventCode = 0x0A
	// A watched asset changed on disk. Data is *AssetEvent.
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x0B
	// A background texture upload reached the GPU. Data is *UploadEvent.
	EVENT_CODE_UPLOAD_COMPLETED SystemEventCode = 0x0C

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type KeyEvent struct {
	KeyCode KeyCode
}

type ButtonEvent struct {
	Button Button
}

type MouseEvent struct {
	X, Y   int32
	WheelX float64
	WheelY float64
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type FocusEvent struct {
	Focused bool
}

type TextEvent struct {
	Char rune
}

type AssetEvent struct {
	Path string
}

type UploadEvent struct {
	Width  uint32
	Height uint32
	// Bytes is the pitch-aligned size staged for the copy.
	Bytes uint64
}

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// FnOnEvent handles a fired event. Returning true marks the event as
// consumed; it is not passed to any further listener.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	callback FnOnEvent
}

type eventSystemState struct {
	registered map[SystemEventCode][]*registeredEvent
	// Events fired off the main thread land here and are drained by
	// ProcessQueued on the main thread once per frame.
	queued   *containers.RingQueue
	queuedMu sync.Mutex
}

var onceEvent sync.Once
var eventState *eventSystemState = nil

const maxQueuedEvents = 512

func EventSystemInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]*registeredEvent),
			queued:     containers.NewRingQueue(maxQueuedEvents),
		}
	})
	return eventState != nil
}

func EventSystemShutdown() error {
	if eventState != nil {
		eventState.registered = make(map[SystemEventCode][]*registeredEvent)
	}
	return nil
}

// EventRegister subscribes a callback to the given code. Listeners are
// invoked in registration order until one consumes the event.
func EventRegister(code SystemEventCode, onEvent FnOnEvent) bool {
	if eventState == nil {
		return false
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		callback: onEvent,
	})
	return true
}

// EventFire dispatches synchronously to the listeners of code. Returns
// true if some listener consumed the event. Main thread only.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	for _, e := range eventState.registered[context.Type] {
		if e.callback(context) {
			return true
		}
	}
	return false
}

// EventEnqueue queues an event for dispatch on the main thread. Safe to
// call from any goroutine. A full queue drops the event with a warning.
func EventEnqueue(context EventContext) {
	if eventState == nil {
		return
	}
	eventState.queuedMu.Lock()
	err := eventState.queued.Enqueue(context)
	eventState.queuedMu.Unlock()
	if err != nil {
		LogWarn("event queue full, dropping event code %d", context.Type)
	}
}

// ProcessQueued drains events enqueued by background goroutines.
// Called once per frame from the main loop.
func ProcessQueued() {
	if eventState == nil {
		return
	}
	for {
		eventState.queuedMu.Lock()
		v, err := eventState.queued.Dequeue()
		eventState.queuedMu.Unlock()
		if err != nil {
			return
		}
		if ctx, ok := v.(EventContext); ok {
			EventFire(ctx)
		}
	}
}
