// Package urmfb acquires framebuffers from display devices and pushes region updates to them.
//
// A caller describes the framebuffers it can work with as a list of [Request] templates. [Acquire]
// picks the first request that matches a mode offered by the [Device], maps the pixel memory and
// returns a [Framebuffer]. After drawing into the pixel memory, the caller pushes the changed region
// to the panel, either blocking with [Framebuffer.UpdateSync] or queued with [Framebuffer.UpdateAsync]
// and [Framebuffer.Await]. Updates are applied one at a time, in the order they were queued.
//
// Update modes select the refresh waveform on e-paper panels, see [UpdateMode].
//
// Devices are implemented in sub packages: framebuffer for Linux fbdev and e-paper
// controllers, panel for SPI LCD panels and virtual for an in-memory display.
//
// Setting the URMFB_DEBUG environment variable enables debug logging to stderr.
package urmfb

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.Nop()

func init() {
	if os.Getenv("URMFB_DEBUG") != "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Str("component", "urmfb").Logger()
	}
}
