package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prism-engine/prism/engine/assets"
	"github.com/prism-engine/prism/engine/config"
	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/platform"
	"github.com/prism-engine/prism/engine/renderer"
	"github.com/prism-engine/prism/engine/renderer/metadata"
	"github.com/prism-engine/prism/engine/renderer/vulkan"
)

type Stage uint8

const (
	EngineStageUninitialized Stage = iota
	EngineStageInitializing
	EngineStageInitialized
	EngineStageRunning
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	platform     *platform.Platform
	assetManager *assets.AssetManager
	backend      *vulkan.Backend
	renderer     *renderer.Renderer

	width  uint32
	height uint32

	clock    *core.Clock
	lastTime float64

	shadersDirty bool
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = config.Default()
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		platform:     platform.New(),
		isRunning:    true,
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}
	g.Engine = e

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.assetManager = am
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig

	switch cfg.LogLevel {
	case "info":
		core.SetLogLevel(core.InfoLevel)
	case "warn":
		core.SetLogLevel(core.WarnLevel)
	case "error":
		core.SetLogLevel(core.ErrorLevel)
	default:
		core.SetLogLevel(core.DebugLevel)
	}

	if err := core.InputInitialize(); err != nil {
		return err
	}
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)

	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}

	if err := e.platform.Startup(cfg.Name, cfg.StartPosX, cfg.StartPosY, cfg.StartWidth, cfg.StartHeight); err != nil {
		return err
	}

	assetRoot := cfg.AssetRoot
	if !filepath.IsAbs(assetRoot) {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		assetRoot = filepath.Join(wd, assetRoot)
	}
	if err := e.assetManager.Initialize(assetRoot); err != nil {
		return err
	}

	backend, err := vulkan.NewBackend(e.platform, cfg.Name, e.width, e.height, cfg.LogLevel == "debug")
	if err != nil {
		return err
	}
	e.backend = backend

	shaders, err := e.loadShaders()
	if err != nil {
		return err
	}
	r, err := renderer.New(backend, cfg.Renderer, shaders, 0, e.width, e.height)
	if err != nil {
		return err
	}
	e.renderer = r

	// The overlay gets first refusal on pointer input while it is
	// capturing the mouse.
	core.EventRegister(core.EVENT_CODE_BUTTON_PRESSED, r.Overlay().HandleEvent)
	core.EventRegister(core.EVENT_CODE_BUTTON_RELEASED, r.Overlay().HandleEvent)
	core.EventRegister(core.EVENT_CODE_MOUSE_MOVED, r.Overlay().HandleEvent)
	core.EventRegister(core.EVENT_CODE_MOUSE_WHEEL, r.Overlay().HandleEvent)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// loadShaders pulls every pipeline blob the renderer needs. Shadow
// shaders are optional when ray tracing is disabled in config.
func (e *Engine) loadShaders() (renderer.Shaders, error) {
	var shaders renderer.Shaders
	load := func(name string, dst *[]byte, required bool) error {
		resource, err := e.assetManager.LoadAsset(name, metadata.ResourceTypeShader, nil)
		if err != nil {
			if !required {
				core.LogWarn("optional shader %s not found", name)
				return nil
			}
			return err
		}
		*dst = resource.Data.([]byte)
		return nil
	}

	rt := e.gameInstance.ApplicationConfig.Renderer.RayTracedShadows
	steps := []struct {
		name     string
		dst      *[]byte
		required bool
	}{
		{"depth_prepass.vert", &shaders.DepthVS, true},
		{"forward.vert", &shaders.ForwardVS, true},
		{"forward.frag", &shaders.ForwardPS, true},
		{"shadow_rays.lib", &shaders.ShadowLibrary, rt},
		{"shadow_blur.comp", &shaders.ShadowBlurCS, rt},
		{"overlay.vert", &shaders.OverlayVS, true},
		{"overlay.frag", &shaders.OverlayPS, true},
	}
	for _, s := range steps {
		if err := load(s.name, s.dst, s.required); err != nil {
			return shaders, err
		}
	}
	return shaders, nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
		}

		// Events fired from loader and upload goroutines.
		core.ProcessQueued()

		if e.isSuspended {
			continue
		}

		if e.shadersDirty {
			e.shadersDirty = false
			if shaders, err := e.loadShaders(); err != nil {
				core.LogError("shader reload failed: %s", err.Error())
			} else if err := e.renderer.ReloadShaders(shaders); err != nil {
				core.LogError("pipeline rebuild failed: %s", err.Error())
			}
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogFatal("game update failed, shutting down")
				e.isRunning = false
				break
			}
		}

		drawData := &metadata.DrawData{}
		if e.gameInstance.FnBuildOverlay != nil {
			if err := e.gameInstance.FnBuildOverlay(drawData, delta); err != nil {
				core.LogError(err.Error())
			}
		}
		drawData.Accumulate()

		if err := e.renderer.DrawFrame(drawData, float32(delta)); err != nil {
			core.LogFatal("frame submission failed, shutting down: %s", err)
			e.isRunning = false
			break
		}

		core.MetricsUpdate(platform.GetAbsoluteTime() - frameStartTime)

		// Input state copy happens last so this frame's edges stay
		// visible to the game until here.
		core.InputUpdate(delta)
		e.lastTime = currentTime
	}

	return e.Shutdown()
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	if e.backend != nil {
		e.backend.Destroy()
	}
	e.assetManager.Shutdown()
	if err := core.EventSystemShutdown(); err != nil {
		return err
	}
	if err := core.InputShutdown(); err != nil {
		return err
	}
	return e.platform.Shutdown()
}

func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

func (e *Engine) Assets() *assets.AssetManager { return e.assetManager }

func (e *Engine) Device() *vulkan.Backend { return e.backend }

func (e *Engine) FramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("quit requested, shutting down")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		return false
	}
	if ke.KeyCode == core.KEY_ESCAPE {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	}
	return false
}

func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok {
		return false
	}
	if filepath.Ext(ae.Path) == ".spv" {
		core.LogInfo("shader %s changed on disk, scheduling pipeline rebuild", filepath.Base(ae.Path))
		e.shadersDirty = true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		return false
	}
	width, height := se.WindowWidth, se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height

	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}
	if err := e.renderer.Resize(width, height); err != nil {
		core.LogError(err.Error())
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return true
}
