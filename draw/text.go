package draw

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// DefaultDPI is used for font faces when no DPI is given.
const DefaultDPI = 72

// NewFace returns a face of the Go Regular font at size points.
func NewFace(size float64) (font.Face, error) {
	return ParseFace(goregular.TTF, size, DefaultDPI)
}

// ParseFace parses a TrueType font and returns a face at size points.
func ParseFace(ttf []byte, size, dpi float64) (font.Face, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("draw: parse font: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	}), nil
}

// TextBounds returns the rectangle covered by s drawn with its baseline origin at pt.
//
// The rectangle is grown by one pixel on each side to cover anti-aliased glyph edges.
func TextBounds(face font.Face, pt image.Point, s string) image.Rectangle {
	b, _ := font.BoundString(face, s)
	return image.Rect(
		b.Min.X.Floor(), b.Min.Y.Floor(),
		b.Max.X.Ceil(), b.Max.Y.Ceil(),
	).Add(pt).Inset(-1)
}

// Text draws s in color c with its baseline origin at pt, and returns the touched region
// clipped to the destination bounds.
func Text(dst Image, face font.Face, pt image.Point, s string, c color.Color) image.Rectangle {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(s)
	return TextBounds(face, pt, s).Intersect(dst.Bounds())
}
