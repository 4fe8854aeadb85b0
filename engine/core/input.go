package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_ENTER     KeyCode = 0x0D
	KEY_TAB       KeyCode = 0x09
	KEY_SHIFT     KeyCode = 0x10
	KEY_CONTROL   KeyCode = 0x11
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_END       KeyCode = 0x23
	KEY_HOME      KeyCode = 0x24
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_INSERT    KeyCode = 0x2D
	KEY_DELETE    KeyCode = 0x2E
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F2        KeyCode = 0x71
	KEY_F3        KeyCode = 0x72
	KEY_F4        KeyCode = 0x73
	KEY_F5        KeyCode = 0x74
	KEY_F6        KeyCode = 0x75
	KEY_F7        KeyCode = 0x76
	KEY_F8        KeyCode = 0x77
	KEY_F9        KeyCode = 0x78
	KEY_F10       KeyCode = 0x79
	KEY_F11       KeyCode = 0x7A
	KEY_F12       KeyCode = 0x7B
	KEYS_MAX_KEYS KeyCode = 0x100
)

// Mouse state structure
type MouseState struct {
	X       int32
	Y       int32
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input state structure that holds current and previous states for keyboard and mouse
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
}

var onceInput sync.Once
var inputInitialized bool = false
var inputState *InputState = nil

func InputInitialize() error {
	onceInput.Do(func() {
		inputState = &InputState{}
		inputInitialized = true
	})
	LogInfo("Input subsystem initialized.")
	return nil
}

func InputShutdown() error {
	inputInitialized = false
	return nil
}

// InputUpdate copies current states to previous states. Should always
// be the last thing a frame does with input.
func InputUpdate(deltaTime float64) error {
	if !inputInitialized {
		return nil
	}
	inputState.KeyboardPrevious = inputState.KeyboardCurrent
	inputState.MousePrevious = inputState.MouseCurrent
	return nil
}

// keyboard input
func InputIsKeyDown(key KeyCode) bool {
	if !inputInitialized {
		return false
	}
	return inputState.KeyboardCurrent.Keys[key]
}

func InputIsKeyUp(key KeyCode) bool {
	if !inputInitialized {
		return false
	}
	return !inputState.KeyboardCurrent.Keys[key]
}

func InputWasKeyDown(key KeyCode) bool {
	if !inputInitialized {
		return false
	}
	return inputState.KeyboardPrevious.Keys[key]
}

func InputProcessKey(key KeyCode, pressed bool) error {
	if !inputInitialized || key >= KEYS_MAX_KEYS {
		return nil
	}
	// Only handle this if the state actually changed.
	if inputState.KeyboardCurrent.Keys[key] != pressed {
		inputState.KeyboardCurrent.Keys[key] = pressed

		code := EVENT_CODE_KEY_RELEASED
		if pressed {
			code = EVENT_CODE_KEY_PRESSED
		}
		EventFire(EventContext{
			Type: code,
			Data: &KeyEvent{
				KeyCode: key,
			},
		})
	}
	return nil
}

// mouse input
func InputIsButtonDown(button Button) bool {
	if !inputInitialized {
		return false
	}
	return inputState.MouseCurrent.Buttons[button]
}

func InputWasButtonDown(button Button) bool {
	if !inputInitialized {
		return false
	}
	return inputState.MousePrevious.Buttons[button]
}

func InputGetMousePosition() (int32, int32) {
	if !inputInitialized {
		return 0, 0
	}
	return inputState.MouseCurrent.X, inputState.MouseCurrent.Y
}

func InputGetPreviousMousePosition() (int32, int32) {
	if !inputInitialized {
		return 0, 0
	}
	return inputState.MousePrevious.X, inputState.MousePrevious.Y
}

func InputProcessButton(button Button, pressed bool) error {
	if !inputInitialized {
		return nil
	}
	// If the state changed, fire an event.
	if inputState.MouseCurrent.Buttons[button] != pressed {
		inputState.MouseCurrent.Buttons[button] = pressed

		code := EVENT_CODE_BUTTON_RELEASED
		if pressed {
			code = EVENT_CODE_BUTTON_PRESSED
		}
		EventFire(EventContext{
			Type: code,
			Data: &ButtonEvent{
				Button: button,
			},
		})
	}
	return nil
}

func InputProcessMouseMove(x, y int32) error {
	if !inputInitialized {
		return nil
	}
	// Only process if actually different.
	if inputState.MouseCurrent.X != x || inputState.MouseCurrent.Y != y {
		inputState.MouseCurrent.X = x
		inputState.MouseCurrent.Y = y

		EventFire(EventContext{
			Type: EVENT_CODE_MOUSE_MOVED,
			Data: &MouseEvent{
				X: x,
				Y: y,
			},
		})
	}
	return nil
}

func InputProcessMouseWheel(xoff, yoff float64) error {
	if !inputInitialized {
		return nil
	}
	EventFire(EventContext{
		Type: EVENT_CODE_MOUSE_WHEEL,
		Data: &MouseEvent{
			WheelX: xoff,
			WheelY: yoff,
		},
	})
	return nil
}

func InputProcessChar(char rune) error {
	if !inputInitialized {
		return nil
	}
	EventFire(EventContext{
		Type: EVENT_CODE_TEXT_INPUT,
		Data: &TextEvent{
			Char: char,
		},
	})
	return nil
}

func InputProcessFocus(focused bool) error {
	if !inputInitialized {
		return nil
	}
	EventFire(EventContext{
		Type: EVENT_CODE_FOCUS,
		Data: &FocusEvent{
			Focused: focused,
		},
	})
	return nil
}
