package core

import (
	"errors"
)

var (
	// ErrDeviceRemoved reports that the GPU was lost or reset during
	// presentation. The current frame is abandoned; no structural
	// recovery is attempted.
	ErrDeviceRemoved = errors.New("graphics device removed or reset")
	// ErrTimedOut reports that a fence wait expired before the GPU
	// reached the requested timeline value.
	ErrTimedOut = errors.New("fence wait timed out")
	// ErrViewRegistryExhausted reports that every slot of the
	// shader-visible descriptor heap is already bound.
	ErrViewRegistryExhausted = errors.New("debug view registry exhausted")
	// ErrRayTracingUnsupported reports that the device cannot build or
	// dispatch ray tracing work. The shadow pass is disabled for the
	// process lifetime when this is detected.
	ErrRayTracingUnsupported = errors.New("ray tracing not supported on this device")
	// ErrSwapchainOutOfDate reports that the swapchain no longer
	// matches the surface and must be resized before presenting.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrUnknown            = errors.New("unknown")
)
