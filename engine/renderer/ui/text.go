package ui

import (
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

// AddText appends one textured quad per glyph of text to dl, starting
// at (x, y) in framebuffer pixels. Unknown codepoints are skipped.
// Newlines advance by the font's line height.
func AddText(dl *metadata.DrawList, font *metadata.FontAtlas, text string, x, y float32, colour math.Vec4, clip [4]int32) {
	penX := x
	penY := y
	var prev rune
	for _, r := range text {
		if r == '\n' {
			penX = x
			penY += float32(font.LineHeight)
			prev = 0
			continue
		}
		g := font.Glyphs[r]
		if g == nil {
			prev = r
			continue
		}
		penX += float32(font.Kerning(prev, r))

		u0 := float32(g.X) / float32(font.AtlasSizeX)
		v0 := float32(g.Y) / float32(font.AtlasSizeY)
		u1 := float32(g.X+g.Width) / float32(font.AtlasSizeX)
		v1 := float32(g.Y+g.Height) / float32(font.AtlasSizeY)

		dl.AddQuad(
			penX+float32(g.XOffset), penY+float32(g.YOffset),
			float32(g.Width), float32(g.Height),
			u0, v0, u1, v1,
			colour, font.View, clip,
		)
		penX += float32(g.XAdvance)
		prev = r
	}
}
