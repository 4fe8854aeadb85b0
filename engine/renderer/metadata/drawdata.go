package metadata

import (
	"github.com/prism-engine/prism/engine/math"
)

/**
 * @brief One batch of indexed triangles sharing a texture and a clip
 * rectangle within a draw list.
 */
type DrawCommand struct {
	/** @brief Index of the texture view in the debug view table. */
	TextureView uint32
	/** @brief Number of indices consumed by this command. */
	IndexCount uint32
	/** @brief Clip rectangle in framebuffer pixels: x, y, w, h. */
	ClipRect [4]int32
}

/**
 * @brief A contiguous run of 2D geometry recorded by one overlay
 * widget. Indices are local to the list's vertex array.
 */
type DrawList struct {
	Vertices []math.Vertex2D
	Indices  []uint16
	Commands []DrawCommand
}

/** @brief Everything the overlay pass renders this frame. */
type DrawData struct {
	Lists []*DrawList

	TotalVertexCount uint32
	TotalIndexCount  uint32
}

// AddQuad appends a textured, clipped quad to the list as a single
// command.
func (dl *DrawList) AddQuad(x, y, w, h float32, u0, v0, u1, v1 float32, colour math.Vec4, view uint32, clip [4]int32) {
	base := uint16(len(dl.Vertices))
	dl.Vertices = append(dl.Vertices,
		math.Vertex2D{Position: math.Vec2{X: x, Y: y}, Texcoord: math.Vec2{X: u0, Y: v0}, Colour: colour},
		math.Vertex2D{Position: math.Vec2{X: x + w, Y: y}, Texcoord: math.Vec2{X: u1, Y: v0}, Colour: colour},
		math.Vertex2D{Position: math.Vec2{X: x + w, Y: y + h}, Texcoord: math.Vec2{X: u1, Y: v1}, Colour: colour},
		math.Vertex2D{Position: math.Vec2{X: x, Y: y + h}, Texcoord: math.Vec2{X: u0, Y: v1}, Colour: colour},
	)
	dl.Indices = append(dl.Indices, base, base+1, base+2, base, base+2, base+3)
	// Consecutive quads sharing a texture and clip rect fold into one
	// command.
	if n := len(dl.Commands); n > 0 {
		last := &dl.Commands[n-1]
		if last.TextureView == view && last.ClipRect == clip {
			last.IndexCount += 6
			return
		}
	}
	dl.Commands = append(dl.Commands, DrawCommand{
		TextureView: view,
		IndexCount:  6,
		ClipRect:    clip,
	})
}

// Accumulate recomputes the draw data's totals from its lists.
func (dd *DrawData) Accumulate() {
	dd.TotalVertexCount = 0
	dd.TotalIndexCount = 0
	for _, dl := range dd.Lists {
		dd.TotalVertexCount += uint32(len(dl.Vertices))
		dd.TotalIndexCount += uint32(len(dl.Indices))
	}
}
