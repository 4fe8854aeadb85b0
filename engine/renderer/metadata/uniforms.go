package metadata

import (
	"github.com/prism-engine/prism/engine/math"
)

/**
 * @brief Per-frame constants uploaded once per frame slot and bound to
 * every pass. Laid out for std140-style packing.
 */
type FrameUniforms struct {
	View       math.Mat4
	Projection math.Mat4
	/** @brief World-space camera position, w unused. */
	CameraPosition math.Vec4
	/** @brief Normalized direction toward the light, w unused. */
	LightDirection math.Vec4
	/** @brief x = time in seconds, y = shadow blur radius. */
	Params math.Vec4
}

/** @brief Per-object constants: one slot per renderable per frame. */
type ObjectUniforms struct {
	Model math.Mat4
}

/** @brief Constants for the 2D overlay pass. */
type OverlayUniforms struct {
	Projection math.Mat4
}
