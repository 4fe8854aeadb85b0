package metadata

/** @brief One renderable glyph in the font atlas. */
type FontGlyph struct {
	Codepoint rune
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Amount     int16
}

/**
 * @brief A bitmap font: glyph metrics plus the RGBA atlas pixels
 * decoded at load time. The atlas is uploaded to the GPU once and
 * referenced by its debug view handle afterwards.
 */
type FontAtlas struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX uint32
	AtlasSizeY uint32

	Glyphs   map[rune]*FontGlyph
	Kernings map[[2]rune]int16

	/** @brief Tightly packed RGBA8 pixels, AtlasSizeX*AtlasSizeY*4. */
	Pixels []byte

	/** @brief Debug view handle once the atlas texture is bound. */
	View uint32
}

// Kerning reports the adjustment between two consecutive codepoints.
func (fa *FontAtlas) Kerning(a, b rune) int16 {
	if fa.Kernings == nil {
		return 0
	}
	return fa.Kernings[[2]rune{a, b}]
}
