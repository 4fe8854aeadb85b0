package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/prism-engine/prism/engine/core"
)

// ApplicationConfig describes everything the engine needs to bring a
// window and a renderer up. Loaded from a TOML file next to the binary;
// a missing file falls back to Default().
type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting size.
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`
	// Root directory for shaders, models and fonts.
	AssetRoot string `toml:"asset_root"`
	// One of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	Renderer RendererConfig `toml:"renderer"`
}

// RendererConfig holds the renderer knobs that are fixed for the
// process lifetime.
type RendererConfig struct {
	// Swapchain buffer count; also the number of frame slots.
	FramesInFlight uint32 `toml:"frames_in_flight"`
	VSync          bool   `toml:"vsync"`
	// Ray-traced shadows are attempted only when true; the device may
	// still veto them at startup.
	RayTracedShadows bool `toml:"ray_traced_shadows"`
	// Capacity of the shader-visible heap backing debug texture views.
	DebugViewCapacity uint32 `toml:"debug_view_capacity"`
	// Named GPU timing regions resolved per frame.
	MaxGPUTimers uint32 `toml:"max_gpu_timers"`
}

func Default() *ApplicationConfig {
	return &ApplicationConfig{
		Name:        "Prism Engine",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  1280,
		StartHeight: 720,
		AssetRoot:   "assets",
		LogLevel:    "debug",
		Renderer: RendererConfig{
			FramesInFlight:    2,
			VSync:             true,
			RayTracedShadows:  true,
			DebugViewCapacity: 64,
			MaxGPUTimers:      16,
		},
	}
}

// Load reads the TOML config at path. A missing file returns defaults;
// a malformed file is an error.
func Load(path string) (*ApplicationConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Renderer.FramesInFlight < 2 {
		cfg.Renderer.FramesInFlight = 2
	}
	return cfg, nil
}

// ParseLogLevel maps the config string onto a core log level.
func (c *ApplicationConfig) ParseLogLevel() core.LogLevel {
	switch c.LogLevel {
	case "info":
		return core.InfoLevel
	case "warn":
		return core.WarnLevel
	case "error":
		return core.ErrorLevel
	default:
		return core.DebugLevel
	}
}
