package urmfb

import (
	"context"
	"image"
)

// Device is a display framebuffers can be acquired on.
//
// Implementations must be comparable, typically a pointer type; the package
// tracks which devices currently have a framebuffer acquired.
type Device interface {
	String() string

	// Modes returns the configurations the device supports, in order of preference.
	Modes() []Mode

	// Map configures the device for one of its modes and returns the pixel memory.
	Map(Mode) (Surface, error)
}

// Surface is the pixel memory of a mapped device mode.
type Surface interface {
	// Pix returns the pixel memory, laid out as described by Mode.
	Pix() []byte

	// Mode returns the effective mode, which may differ from the requested
	// mode in its line stride.
	Mode() Mode

	// Flush pushes the pixels inside r to the panel and returns once the
	// update completed. The rectangle is in framebuffer coordinates and
	// is never empty.
	Flush(ctx context.Context, r image.Rectangle, mode UpdateMode) error

	// Close unmaps the pixel memory.
	Close() error
}
