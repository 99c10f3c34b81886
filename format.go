package urmfb

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/BeatGlow/urmfb/pixel"
)

// PixelFormat is the memory layout of a single framebuffer pixel.
type PixelFormat uint32

// Supported pixel formats. The values are stable.
const (
	PixelFormatAny PixelFormat = iota // Any format, only valid in a Request
	RGB565                            // 16-bit 5-6-5 word
	RGB888                            // 24-bit, one byte per channel
	RGBA8888                          // 32-bit, one byte per channel
)

var pixelFormatNames = [...]string{
	PixelFormatAny: "any",
	RGB565:         "rgb565",
	RGB888:         "rgb888",
	RGBA8888:       "rgba8888",
}

// Valid reports whether f is a known pixel format, including PixelFormatAny.
func (f PixelFormat) Valid() bool {
	return f <= RGBA8888
}

func (f PixelFormat) String() string {
	if f.Valid() {
		return pixelFormatNames[f]
	}
	return fmt.Sprintf("PixelFormat(%d)", uint32(f))
}

// BytesPerPixel returns the pixel size in bytes, or 0 for PixelFormatAny.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB565:
		return 2
	case RGB888:
		return 3
	case RGBA8888:
		return 4
	default:
		return 0
	}
}

// ColorModel returns the color model of pixels in this format.
func (f PixelFormat) ColorModel() color.Model {
	switch f {
	case RGB565:
		return pixel.RGB565Model
	case RGB888:
		return pixel.RGB888Model
	case RGBA8888:
		return pixel.RGBA8888Model
	default:
		return nil
	}
}

func (f PixelFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("urmfb: invalid pixel format %d", uint32(f))
	}
	return []byte(f.String()), nil
}

func (f *PixelFormat) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range pixelFormatNames {
		if s == name {
			*f = PixelFormat(i)
			return nil
		}
	}
	return fmt.Errorf("urmfb: unknown pixel format %q", text)
}
