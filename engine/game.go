package engine

import (
	"github.com/prism-engine/prism/engine/config"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

// Game is the application half of the engine contract: the hooks are
// filled in by the embedding application and invoked by the engine at
// well-defined points of the frame.
type Game struct {
	ApplicationConfig *config.ApplicationConfig

	// State holds whatever the application wants to carry between
	// hooks.
	State interface{}

	// Engine is set before any hook runs.
	Engine *Engine

	// FnBoot runs before any subsystem exists; only configuration may
	// be touched.
	FnBoot func() error
	// FnInitialize runs once every subsystem is up; load assets and
	// build the scene here.
	FnInitialize func() error
	// FnUpdate runs once per frame before rendering.
	FnUpdate func(deltaTime float64) error
	// FnBuildOverlay fills the debug overlay draw data for the frame.
	FnBuildOverlay func(drawData *metadata.DrawData, deltaTime float64) error
	// FnOnResize runs after the renderer finished a resize.
	FnOnResize func(width, height uint32) error
	// FnShutdown runs before the engine tears its subsystems down.
	FnShutdown func() error
}
