package framebuffer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/internal/ioctl"
)

var (
	mxcfbSendUpdateCmd = ioctl.Pointer(ioctl.Write, new(mxcfbUpdateData), mxcfbIOCType, mxcfbSendUpdate)
	mxcfbWaitUpdateCmd = ioctl.Pointer(ioctl.ReadWrite, new(mxcfbUpdateMarkerData), mxcfbIOCType, mxcfbWaitForUpdateComplt)
)

// Device is a Linux FrameBuffer device (fbdev).
type Device struct {
	name string
	f    *os.File

	mu     sync.Mutex
	fix    linuxFrameBufferInfo
	info   linuxVarScreenInfo
	format urmfb.PixelFormat
	epdc   bool
	marker uint32

	// owned devices are closed when their surface is unmapped.
	owned bool
}

// Open a Linux FrameBuffer device (fbdev) by name, typically /dev/fb[0..x].
func Open(name string) (*Device, error) {
	f, err := os.OpenFile(name, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}

	d := &Device{
		name: name,
		f:    f,
	}
	if err = d.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	d.epdc = d.fix.id() == epdcID
	return d, nil
}

// Acquire opens the framebuffer device name and acquires a framebuffer on it. The device is
// closed when the framebuffer is released. An empty name opens [DefaultDevice].
func Acquire(name string, requests []urmfb.Request, opts ...urmfb.Option) (*urmfb.Framebuffer, error) {
	if name == "" {
		name = DefaultDevice
	}
	d, err := Open(name)
	if err != nil {
		return nil, err
	}
	d.owned = true

	fb, err := urmfb.Acquire(d, requests, opts...)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return fb, nil
}

func (d *Device) fd() uintptr {
	return d.f.Fd()
}

// load reads the screen information and detects the pixel format.
func (d *Device) load() (err error) {
	if err = ioctl.Do(d.fd(), fbioGetFScreenInfo, &d.fix); err != nil {
		return err
	}
	if err = ioctl.Do(d.fd(), fbioGetVScreenInfo, &d.info); err != nil {
		return err
	}
	// Unsupported layouts open without modes, acquiring fails with urmfb.ErrNoMatch.
	if d.format, err = parsePixelFormat(&d.info); errors.Is(err, ErrFormat) {
		err = nil
	}
	return
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.name, d.fix.id())
}

// EPDC reports whether the device is an electrophoretic display controller.
func (d *Device) EPDC() bool {
	return d.epdc
}

// Modes returns the current configuration first, followed by the other rotations on EPDC devices.
func (d *Device) Modes() []urmfb.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return modes(&d.info, &d.fix, d.format, d.epdc)
}

// Map rotates the display if needed and maps the pixel memory.
func (d *Device) Map(m urmfb.Mode) (urmfb.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var supported bool
	for _, mode := range modes(&d.info, &d.fix, d.format, d.epdc) {
		if mode.Width == m.Width && mode.Height == m.Height && mode.Format == m.Format && mode.Orientation == m.Orientation {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w %s", ErrMode, m)
	}

	if m.Orientation != orientation(d.info.Rotate) {
		info := d.info
		info.Rotate = rotate(m.Orientation)
		info.Activate = fbActivateNow | fbActivateForce
		if err := ioctl.Do(d.fd(), fbioPutVScreenInfo, &info); err != nil {
			return nil, fmt.Errorf("framebuffer: rotate to %s: %w", m.Orientation, err)
		}
		if err := d.load(); err != nil {
			return nil, err
		}
	}

	mem, err := unix.Mmap(int(d.fd()), 0, int(d.fix.SmemLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("framebuffer: mmap %d bytes: %w", d.fix.SmemLen, err)
	}

	effective := urmfb.Mode{
		Width:       int(d.info.Xres),
		Height:      int(d.info.Yres),
		Format:      d.format,
		Orientation: orientation(d.info.Rotate),
		LineStride:  int(d.fix.LineLength),
		ByteOrder:   binary.NativeEndian,
	}
	offset := int(d.info.Yoffset)*effective.LineStride + int(d.info.Xoffset)*d.format.BytesPerPixel()
	if end := offset + effective.Size(); end > len(mem) {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("framebuffer: %s needs %d bytes, device has %d", effective, end, len(mem))
	}

	return &surface{
		dev:  d,
		mode: effective,
		mem:  mem,
		pix:  mem[offset : offset+effective.Size()],
	}, nil
}

// Close the framebuffer device.
func (d *Device) Close() error {
	return d.f.Close()
}

// update sends a region update to the EPDC and waits for it to complete.
func (d *Device) update(r image.Rectangle, mode urmfb.UpdateMode) error {
	d.mu.Lock()
	d.marker++
	if d.marker == 0 {
		d.marker++
	}
	marker := d.marker
	d.mu.Unlock()

	data := mxcfbUpdateData{
		UpdateRegion: mxcfbRect{
			Top:    uint32(r.Min.Y),
			Left:   uint32(r.Min.X),
			Width:  uint32(r.Dx()),
			Height: uint32(r.Dy()),
		},
		UpdateMarker: marker,
		Temp:         mxcfbTempUseAmbient,
	}
	data.WaveformMode, data.UpdateMode = waveform(mode)
	if err := ioctl.Do(d.fd(), mxcfbSendUpdateCmd, &data); err != nil {
		return fmt.Errorf("framebuffer: send update: %w", err)
	}

	wait := mxcfbUpdateMarkerData{UpdateMarker: marker}
	if err := ioctl.Do(d.fd(), mxcfbWaitUpdateCmd, &wait); err != nil {
		return fmt.Errorf("framebuffer: wait for update %d: %w", marker, err)
	}
	return nil
}

// pan asks the driver to display the current buffer.
func (d *Device) pan() error {
	d.mu.Lock()
	info := d.info
	d.mu.Unlock()

	err := ioctl.Do(d.fd(), fbioPanDisplay, &info)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
		// Not implemented by the driver, the memory is shown as is.
		return nil
	}
	return err
}

type surface struct {
	dev  *Device
	mode urmfb.Mode
	mem  []byte
	pix  []byte
}

func (s *surface) Pix() []byte {
	return s.pix
}

func (s *surface) Mode() urmfb.Mode {
	return s.mode
}

func (s *surface) Flush(ctx context.Context, r image.Rectangle, mode urmfb.UpdateMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dev.epdc {
		return s.dev.update(r, mode)
	}
	return s.dev.pan()
}

func (s *surface) Close() error {
	err := unix.Munmap(s.mem)
	if s.dev.owned {
		if cerr := s.dev.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
