package urmfb

import (
	"encoding/binary"
	"fmt"
)

// Request describes a wanted framebuffer configuration. Acquire takes a list
// of requests as templates; zero values act as wildcards.
type Request struct {
	// Width and Height in pixels, after applying the orientation. Zero matches any size.
	Width  int
	Height int

	// Format of a pixel. PixelFormatAny matches any format.
	Format PixelFormat

	// Orientation of the framebuffer relative to the panel. OrientationAny matches any orientation.
	Orientation Orientation

	// LineStride is the number of bytes between vertically adjacent pixels. Zero matches any stride.
	LineStride int

	// Data is the pixel memory. It is ignored in requests and set on acquisition.
	Data []byte

	// Reserved for future extensions, must be zero.
	Reserved [9]uint32
}

// Validate checks the request for out of range values.
func (r *Request) Validate() error {
	switch {
	case r.Width < 0 || r.Height < 0:
		return fmt.Errorf("negative size %dx%d", r.Width, r.Height)
	case !r.Format.Valid():
		return fmt.Errorf("unknown pixel format %d", uint32(r.Format))
	case !r.Orientation.Valid():
		return fmt.Errorf("unknown orientation %d", uint32(r.Orientation))
	case r.LineStride < 0:
		return fmt.Errorf("negative line stride %d", r.LineStride)
	case r.LineStride > 0 && r.LineStride < r.Width*r.Format.BytesPerPixel():
		return fmt.Errorf("line stride %d is smaller than %d pixels of %s", r.LineStride, r.Width, r.Format)
	}
	for i, v := range r.Reserved {
		if v != 0 {
			return fmt.Errorf("reserved field %d is %#x, must be zero", i, v)
		}
	}
	return nil
}

// Matches reports whether the device mode satisfies the request.
func (r *Request) Matches(m Mode) bool {
	return (r.Width == 0 || r.Width == m.Width) &&
		(r.Height == 0 || r.Height == m.Height) &&
		(r.Format == PixelFormatAny || r.Format == m.Format) &&
		(r.Orientation == OrientationAny || r.Orientation == m.Orientation) &&
		(r.LineStride == 0 || r.LineStride == m.LineStride)
}

func (r Request) String() string {
	return fmt.Sprintf("%dx%d %s %s stride=%d", r.Width, r.Height, r.Format, r.Orientation, r.LineStride)
}

// Mode is a framebuffer configuration offered by a device.
type Mode struct {
	// Width and Height in pixels, after applying the orientation.
	Width  int
	Height int

	// Format of a pixel, never PixelFormatAny.
	Format PixelFormat

	// Orientation of the framebuffer relative to the panel, never OrientationAny.
	Orientation Orientation

	// LineStride is the number of bytes between vertically adjacent pixels.
	LineStride int

	// ByteOrder of multi byte pixel words, nil means little endian.
	ByteOrder binary.ByteOrder
}

// Packed returns a mode with the minimal line stride for its width and format.
func Packed(width, height int, format PixelFormat, orientation Orientation) Mode {
	return Mode{
		Width:       width,
		Height:      height,
		Format:      format,
		Orientation: orientation,
		LineStride:  width * format.BytesPerPixel(),
	}
}

// Size returns the number of bytes the mode's pixel memory spans.
func (m Mode) Size() int {
	if m.Height == 0 {
		return 0
	}
	return (m.Height-1)*m.LineStride + m.Width*m.Format.BytesPerPixel()
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d %s %s stride=%d", m.Width, m.Height, m.Format, m.Orientation, m.LineStride)
}

func (m Mode) byteOrder() binary.ByteOrder {
	if m.ByteOrder == nil {
		return binary.LittleEndian
	}
	return m.ByteOrder
}

// resolve fills the wildcards of r from the effective mode and pixel memory.
func (r Request) resolve(m Mode, pix []byte) Request {
	r.Width = m.Width
	r.Height = m.Height
	r.Format = m.Format
	r.Orientation = m.Orientation
	r.LineStride = m.LineStride
	r.Data = pix
	return r
}
