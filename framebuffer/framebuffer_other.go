//go:build !linux

package framebuffer

import "github.com/BeatGlow/urmfb"

// Device is a framebuffer device. It can not be opened on this platform.
type Device struct{}

// Open returns ErrNotSupported.
func Open(_ string) (*Device, error) {
	return nil, ErrNotSupported
}

// Acquire returns ErrNotSupported.
func Acquire(_ string, _ []urmfb.Request, _ ...urmfb.Option) (*urmfb.Framebuffer, error) {
	return nil, ErrNotSupported
}

func (d *Device) String() string { return "framebuffer" }

func (d *Device) EPDC() bool { return false }

func (d *Device) Modes() []urmfb.Mode { return nil }

func (d *Device) Map(urmfb.Mode) (urmfb.Surface, error) { return nil, ErrNotSupported }

func (d *Device) Close() error { return nil }
