package loaders

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
	xdraw "golang.org/x/image/draw"

	"github.com/prism-engine/prism/engine/renderer/metadata"
)

type BitmapFontLoader struct{}

/**
 * @brief Loads a bmfont .fnt descriptor plus its first page image,
 * decoded to tightly packed RGBA8 atlas pixels ready for upload.
 */
func (fl *BitmapFontLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bmfont load %q: %w", path, err)
	}
	desc := font.Descriptor

	atlas := &metadata.FontAtlas{
		Face:       desc.Info.Face,
		Size:       uint32(desc.Info.Size),
		LineHeight: int32(desc.Common.LineHeight),
		Baseline:   int32(desc.Common.Base),
		AtlasSizeX: uint32(desc.Common.ScaleW),
		AtlasSizeY: uint32(desc.Common.ScaleH),
		Glyphs:     make(map[rune]*metadata.FontGlyph, len(desc.Chars)),
		Kernings:   make(map[[2]rune]int16, len(desc.Kerning)),
	}

	for _, g := range desc.Chars {
		atlas.Glyphs[g.ID] = &metadata.FontGlyph{
			Codepoint: g.ID,
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
		}
	}
	for pair, k := range desc.Kerning {
		atlas.Kernings[[2]rune{pair.First, pair.Second}] = int16(k.Amount)
	}

	if len(desc.Pages) == 0 {
		return nil, fmt.Errorf("font %q has no atlas pages", path)
	}
	// Single-page fonts only; the overlay binds one atlas view.
	if len(desc.Pages) > 1 {
		return nil, fmt.Errorf("font %q has %d pages, only one is supported", path, len(desc.Pages))
	}
	var pageFile string
	for _, p := range desc.Pages {
		pageFile = p.File
	}
	pixels, w, h, err := decodeRGBA(filepath.Join(filepath.Dir(path), pageFile))
	if err != nil {
		return nil, err
	}
	if w != atlas.AtlasSizeX || h != atlas.AtlasSizeY {
		return nil, fmt.Errorf("font page %q is %dx%d, descriptor says %dx%d", pageFile, w, h, atlas.AtlasSizeX, atlas.AtlasSizeY)
	}
	atlas.Pixels = pixels

	return &metadata.Resource{
		FullPath: path,
		DataSize: uint64(len(atlas.Pixels)),
		Data:     atlas,
	}, nil
}

// decodeRGBA reads an image file and repacks it as tight RGBA8 rows.
func decodeRGBA(path string) ([]byte, uint32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %q: %w", path, err)
	}
	bounds := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Copy(rgba, image.Point{}, src, bounds, xdraw.Src, nil)
	return rgba.Pix, uint32(bounds.Dx()), uint32(bounds.Dy()), nil
}

func (fl *BitmapFontLoader) Unload(resource *metadata.Resource) error {
	if resource != nil && resource.Data != nil {
		if atlas, ok := resource.Data.(*metadata.FontAtlas); ok {
			atlas.Pixels = nil
			atlas.Glyphs = nil
			atlas.Kernings = nil
		}
	}
	return nil
}
