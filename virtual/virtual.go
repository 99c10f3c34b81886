// Package virtual implements an in-memory display device.
//
// The display keeps a panel image in its native orientation. Every region update copies
// the framebuffer pixels onto the panel, so the panel shows what a real display would show.
// Updates are recorded and can be delayed or failed, which makes the display useful for
// tests and for previewing without hardware.
package virtual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/pixel"
)

// Defaults.
const (
	DefaultWidth  = 1404
	DefaultHeight = 1872
)

// Errors
var (
	ErrMode   = errors.New("virtual: unsupported mode")
	ErrMapped = errors.New("virtual: display is already mapped")
)

// Update is a recorded region update.
type Update struct {
	// Rect is the updated region in framebuffer coordinates.
	Rect image.Rectangle

	// Panel is the updated region in native panel coordinates.
	Panel image.Rectangle

	// Mode is the requested update mode.
	Mode urmfb.UpdateMode
}

// Config is the virtual display configuration.
type Config struct {
	// Width of the panel in pixels, in native orientation.
	Width int

	// Height of the panel in pixels, in native orientation.
	Height int

	// Formats the display offers, in order of preference. Defaults to RGB565.
	Formats []urmfb.PixelFormat

	// Orientations the display offers, in order of preference. Defaults to all orientations.
	Orientations []urmfb.Orientation

	// Latency simulates the refresh time per update mode.
	Latency map[urmfb.UpdateMode]time.Duration

	// OnFlush is called for every update before it is applied. A returned error fails the update.
	OnFlush func(Update) error
}

// Display is a virtual display.
type Display struct {
	config Config

	mu      sync.Mutex
	panel   *image.RGBA
	updates []Update
	mapped  bool
}

// New returns a virtual display. A nil config uses the defaults.
func New(config *Config) *Display {
	var c Config
	if config != nil {
		c = *config
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if len(c.Formats) == 0 {
		c.Formats = []urmfb.PixelFormat{urmfb.RGB565}
	}
	if len(c.Orientations) == 0 {
		c.Orientations = urmfb.Orientations
	}

	panel := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(panel, panel.Rect, image.White, image.Point{}, draw.Src)
	return &Display{
		config: c,
		panel:  panel,
	}
}

func (d *Display) String() string {
	return fmt.Sprintf("virtual %dx%d", d.config.Width, d.config.Height)
}

// Modes returns a packed mode for every configured orientation and format.
func (d *Display) Modes() []urmfb.Mode {
	native := image.Pt(d.config.Width, d.config.Height)
	modes := make([]urmfb.Mode, 0, len(d.config.Orientations)*len(d.config.Formats))
	for _, o := range d.config.Orientations {
		size := o.NativeSize(native)
		for _, f := range d.config.Formats {
			modes = append(modes, urmfb.Packed(size.X, size.Y, f, o))
		}
	}
	return modes
}

// Map allocates pixel memory for mode m, which must be one of the display's modes.
func (d *Display) Map(m urmfb.Mode) (urmfb.Surface, error) {
	var supported bool
	for _, mode := range d.Modes() {
		if supported = mode == m; supported {
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w %s", ErrMode, m)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapped {
		return nil, ErrMapped
	}
	d.mapped = true

	pix := make([]byte, m.Size())
	s := &surface{
		display: d,
		mode:    m,
		pix:     pix,
		image:   urmfb.NewImage(m, pix),
	}
	s.image.Fill(color.White)
	return s, nil
}

// Snapshot returns a copy of the panel image.
func (d *Display) Snapshot() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := image.NewRGBA(d.panel.Rect)
	copy(out.Pix, d.panel.Pix)
	return out
}

// Updates returns the recorded updates, oldest first.
func (d *Display) Updates() []Update {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Update(nil), d.updates...)
}

// EncodePNG writes the panel image as PNG.
func (d *Display) EncodePNG(w io.Writer) error {
	return png.Encode(w, d.Snapshot())
}

// WritePNG atomically replaces the file at path with the panel image.
func (d *Display) WritePNG(path string) error {
	var buf bytes.Buffer
	if err := d.EncodePNG(&buf); err != nil {
		return fmt.Errorf("virtual: encode snapshot: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("virtual: write snapshot: %w", err)
	}
	return nil
}

type surface struct {
	display *Display
	mode    urmfb.Mode
	pix     []byte
	image   pixel.Image
	closed  bool
}

func (s *surface) Pix() []byte {
	return s.pix
}

func (s *surface) Mode() urmfb.Mode {
	return s.mode
}

func (s *surface) Flush(ctx context.Context, r image.Rectangle, mode urmfb.UpdateMode) error {
	size := image.Pt(s.mode.Width, s.mode.Height)
	u := Update{
		Rect:  r,
		Panel: s.mode.Orientation.TransformRect(r, size),
		Mode:  mode,
	}

	if latency := s.display.config.Latency[mode]; latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	if s.display.config.OnFlush != nil {
		if err := s.display.config.OnFlush(u); err != nil {
			return err
		}
	}

	d := s.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return errors.New("virtual: flush on closed surface")
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			p := s.mode.Orientation.Transform(image.Pt(x, y), size)
			d.panel.Set(p.X, p.Y, s.image.At(x, y))
		}
	}
	d.updates = append(d.updates, u)
	return nil
}

func (s *surface) Close() error {
	d := s.display
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	d.mapped = false
	return nil
}
