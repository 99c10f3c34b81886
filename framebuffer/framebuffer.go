// Package framebuffer provides access to the operating system's native framebuffer.
//
// This requires framebuffer device support in the operating system. A device is opened
// with [Open] and acquired like any other [urmfb.Device].
//
// Electrophoretic displays driven by the i.MX EPDC (the "mxc_epdc_fb" driver) are detected
// automatically. On those, region updates are sent to the controller with the waveform
// matching the update mode, and all four rotations are offered. Other framebuffers only
// offer their current configuration and are refreshed by panning the display.
//
// Supported pixel layouts are RGB565 (red in the high bits) and byte ordered RGB888 and
// RGBA8888. Devices with any other layout, such as XRGB8888 with red at bit 16, open but
// offer no modes.
package framebuffer

import (
	"errors"
	"fmt"

	"github.com/BeatGlow/urmfb"
)

// DefaultDevice is the framebuffer device opened by [Acquire] when no name is given.
const DefaultDevice = "/dev/fb0"

// Errors
var (
	ErrNotSupported = errors.New("framebuffer: not supported")
	ErrFormat       = errors.New("framebuffer: unsupported pixel format")
	ErrMode         = errors.New("framebuffer: unsupported mode")
)

// epdcID is the fix screen info id of the i.MX electrophoretic display controller.
const epdcID = "mxc_epdc_fb"

// From <linux/fb.h>
const (
	fbioGetVScreenInfo = 0x4600
	fbioPutVScreenInfo = 0x4601
	fbioGetFScreenInfo = 0x4602
	fbioPanDisplay     = 0x4606

	fbActivateNow   = 0
	fbActivateForce = 128
)

// From <linux/mxcfb.h>
const (
	mxcfbIOCType             = 'F'
	mxcfbSendUpdate          = 0x2e
	mxcfbWaitForUpdateComplt = 0x2f

	mxcfbUpdateModePartial = 0
	mxcfbUpdateModeFull    = 1

	mxcfbWaveformInit = 0
	mxcfbWaveformDU   = 1
	mxcfbWaveformGC16 = 2
	mxcfbWaveformGL16 = 3
	mxcfbWaveformA2   = 4
	mxcfbWaveformAuto = 257

	mxcfbTempUseAmbient = 0x1000
)

type linuxFrameBufferInfo struct {
	ID         [16]byte  // Identification string eg "TT Builtin"
	SmemStart  uintptr   // Start of frame buffer mem
	SmemLen    uint32    // Length of frame buffer mem
	Type       uint32    // FB_TYPE_
	TypeAux    uint32    // Interleave for interleaved Planes
	Visual     uint32    // FB_VISUAL_
	Xpanstep   uint16    // Zero if no hardware panning
	Ypanstep   uint16    // Zero if no hardware panning
	Ywrapstep  uint16    // Zero if no hardware ywrap
	LineLength uint32    // Length of a line in bytes
	MmioStart  uintptr   // Start of Memory Mapped I/O (physical address)
	MmioLen    uint32    // Length of Memory Mapped I/O
	Accel      uint32    // Type of acceleration available
	Reserved   [3]uint16 // Reserved for future compatibility
}

func (info *linuxFrameBufferInfo) id() string {
	for i, c := range info.ID {
		if c == 0 {
			return string(info.ID[:i])
		}
	}
	return string(info.ID[:])
}

// linuxBitField for the color
type linuxBitField struct {
	Offset   uint32 // Beginning of bitfield
	Length   uint32 // Length of bitfield
	MsbRight uint32 // != 0 : Most significant bit is right
}

// linuxVarScreenInfo contains device independent changeable information about a frame buffer device and a specific video mode.
type linuxVarScreenInfo struct {
	Xres                    uint32
	Yres                    uint32
	XresVirtual             uint32
	YresVirtual             uint32
	Xoffset                 uint32
	Yoffset                 uint32
	BitsPerPixel            uint32
	Grayscale               uint32
	Red, Green, Blue, Alpha linuxBitField
	Nonstd                  uint32
	Activate                uint32
	Height                  uint32
	Width                   uint32
	AccelFlags              uint32
	Pixclock                uint32
	LeftMargin              uint32
	RightMargin             uint32
	UpperMargin             uint32
	LowerMargin             uint32
	HsyncLen                uint32
	VsyncLen                uint32
	Sync                    uint32
	Vmode                   uint32
	Rotate                  uint32
	Colorspace              uint32
	Reserved                [4]uint32
}

type mxcfbRect struct {
	Top    uint32
	Left   uint32
	Width  uint32
	Height uint32
}

type mxcfbAltBufferData struct {
	PhysAddr        uint32
	Width           uint32
	Height          uint32
	AltUpdateRegion mxcfbRect
}

type mxcfbUpdateData struct {
	UpdateRegion  mxcfbRect
	WaveformMode  uint32
	UpdateMode    uint32
	UpdateMarker  uint32
	Temp          int32
	Flags         uint32
	DitherMode    int32
	QuantBit      int32
	AltBufferData mxcfbAltBufferData
}

type mxcfbUpdateMarkerData struct {
	UpdateMarker  uint32
	CollisionTest uint32
}

func (f linuxBitField) is(offset, length uint32) bool {
	return f.Offset == offset && f.Length == length && f.MsbRight == 0
}

// parsePixelFormat maps the channel layout of the variable screen info to a pixel format.
// Multi byte pixels are in the machine's byte order.
func parsePixelFormat(info *linuxVarScreenInfo) (urmfb.PixelFormat, error) {
	if info.Grayscale == 0 {
		switch info.BitsPerPixel {
		case 16:
			if info.Red.is(11, 5) && info.Green.is(5, 6) && info.Blue.is(0, 5) && info.Alpha.Length == 0 {
				return urmfb.RGB565, nil
			}
		case 24:
			if info.Red.is(0, 8) && info.Green.is(8, 8) && info.Blue.is(16, 8) && info.Alpha.Length == 0 {
				return urmfb.RGB888, nil
			}
		case 32:
			if info.Red.is(0, 8) && info.Green.is(8, 8) && info.Blue.is(16, 8) &&
				(info.Alpha.Length == 0 || info.Alpha.is(24, 8)) {
				return urmfb.RGBA8888, nil
			}
		}
	}
	return urmfb.PixelFormatAny, fmt.Errorf("%w: %d bpp, red %d/%d, green %d/%d, blue %d/%d, alpha %d/%d",
		ErrFormat, info.BitsPerPixel,
		info.Red.Offset, info.Red.Length,
		info.Green.Offset, info.Green.Length,
		info.Blue.Offset, info.Blue.Length,
		info.Alpha.Offset, info.Alpha.Length)
}

// orientation returns the orientation of a FB_ROTATE_* value.
func orientation(rotate uint32) urmfb.Orientation {
	return urmfb.Rotate0 + urmfb.Orientation(rotate%4)
}

// rotate returns the FB_ROTATE_* value of an unmirrored orientation.
func rotate(o urmfb.Orientation) uint32 {
	return uint32(o.Degrees() / 90)
}

// waveform returns the EPDC waveform and update mode for an update mode.
func waveform(mode urmfb.UpdateMode) (waveform, update uint32) {
	switch mode {
	case urmfb.UpdateClear:
		return mxcfbWaveformInit, mxcfbUpdateModeFull
	case urmfb.UpdateDirect:
		return mxcfbWaveformDU, mxcfbUpdateModePartial
	case urmfb.UpdateHQ:
		return mxcfbWaveformGC16, mxcfbUpdateModePartial
	case urmfb.UpdateMQ:
		return mxcfbWaveformGL16, mxcfbUpdateModePartial
	case urmfb.UpdateFast:
		return mxcfbWaveformA2, mxcfbUpdateModePartial
	default:
		return mxcfbWaveformAuto, mxcfbUpdateModePartial
	}
}

// modes lists the modes of a framebuffer in its current configuration. The current rotation
// comes first and keeps the driver's line length; the EPDC also offers the other rotations.
// There are none for an unsupported pixel format.
func modes(info *linuxVarScreenInfo, fix *linuxFrameBufferInfo, format urmfb.PixelFormat, epdc bool) []urmfb.Mode {
	if format == urmfb.PixelFormatAny {
		return nil
	}
	current := orientation(info.Rotate)
	modes := []urmfb.Mode{{
		Width:       int(info.Xres),
		Height:      int(info.Yres),
		Format:      format,
		Orientation: current,
		LineStride:  int(fix.LineLength),
	}}
	if !epdc {
		return modes
	}

	// Native panel size, as seen without rotation.
	w, h := int(info.Xres), int(info.Yres)
	if current.Transposed() {
		w, h = h, w
	}
	for _, o := range urmfb.Orientations {
		if o == current || o.Mirrored() {
			continue
		}
		if o.Transposed() {
			modes = append(modes, urmfb.Packed(h, w, format, o))
		} else {
			modes = append(modes, urmfb.Packed(w, h, format, o))
		}
	}
	return modes
}
