package pixel

import (
	"image/color"
	"testing"
)

func TestRGB565(t *testing.T) {
	tests := []struct {
		v       uint16
		r, g, b uint32
	}{
		{0x0000, 0x0000, 0x0000, 0x0000},
		{0xffff, 0xffff, 0xffff, 0xffff},
		{0xf800, 0xffff, 0x0000, 0x0000},
		{0x07e0, 0x0000, 0xffff, 0x0000},
		{0x001f, 0x0000, 0x0000, 0xffff},
	}
	for _, test := range tests {
		t.Run("", func(t *testing.T) {
			r, g, b, a := RGB565{V: test.v}.RGBA()
			if r != test.r {
				t.Errorf("expected red to be %#04x, got %#04x", test.r, r)
			}
			if g != test.g {
				t.Errorf("expected green to be %#04x, got %#04x", test.g, g)
			}
			if b != test.b {
				t.Errorf("expected blue to be %#04x, got %#04x", test.b, b)
			}
			if a != 0xffff {
				t.Errorf("expected opaque alpha, got %#04x", a)
			}
		})
	}
}

func TestRGB565Model(t *testing.T) {
	for v := 0; v <= 0xffff; v += 0x0101 {
		c := RGB565{V: uint16(v)}
		if got := RGB565Model.Convert(c); got != c {
			t.Fatalf("expected %#+v to convert to itself, got %#+v", c, got)
		}
		// Round trip through the 16-bit color space.
		r, g, b, _ := c.RGBA()
		rgba := color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: 0xffff}
		if got := RGB565Model.Convert(rgba); got != c {
			t.Fatalf("expected %#+v to round trip, got %#+v", c, got)
		}
	}
}

func TestRGB888(t *testing.T) {
	for y := 0; y < 256; y += 17 {
		c := RGB888{R: uint8(y), G: uint8(255 - y), B: uint8(y / 2)}
		r, g, b, a := c.RGBA()
		if want := uint32(y) * 0x101; r != want {
			t.Errorf("expected red to be %#04x, got %#04x", want, r)
		}
		if want := uint32(255-y) * 0x101; g != want {
			t.Errorf("expected green to be %#04x, got %#04x", want, g)
		}
		if want := uint32(y/2) * 0x101; b != want {
			t.Errorf("expected blue to be %#04x, got %#04x", want, b)
		}
		if a != 0xffff {
			t.Errorf("expected opaque alpha, got %#04x", a)
		}
		if got := RGB888Model.Convert(c); got != c {
			t.Errorf("expected %#+v to convert to itself, got %#+v", c, got)
		}
	}
}
