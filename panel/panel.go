// Package panel drives small SPI LCD panels with a MIPI DCS compatible controller.
//
// The panel keeps its own display memory, so the framebuffer lives in host memory and
// region updates are written to the controller by setting the column and row window and
// streaming the rows of the region. Orientations are applied by the controller through
// its memory data access control register.
package panel

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/BeatGlow/urmfb"
)

// MIPI DCS commands shared by the supported controllers.
const (
	cmdSWRESET = 0x01 // Software Reset
	cmdSLPOUT  = 0x11 // Sleep Out
	cmdNORON   = 0x13 // Normal Display Mode On
	cmdINVOFF  = 0x20 // Display Inversion Off
	cmdINVON   = 0x21 // Display Inversion On
	cmdDISPOFF = 0x28 // Display Off
	cmdDISPON  = 0x29 // Display On
	cmdCASET   = 0x2A // Column Address Set
	cmdRASET   = 0x2B // Row Address Set
	cmdRAMWR   = 0x2C // Memory Write
	cmdMADCTL  = 0x36 // Memory Data Access Control
	cmdCOLMOD  = 0x3A // Interface Pixel Format
)

// Memory Data Access Control (MADCTL) bit fields.
const (
	_                     byte = 1 << iota // D0: reserved
	_                                      // D1: reserved
	madctlDataLatchOrder                   // D2: MH
	madctlBGR                              // D3: RGB
	madctlLineAddressOrder                 // D4: ML
	madctlPageColumnOrder                  // D5: MV
	madctlColumnAddressOrder               // D6: MX
	madctlPageAddressOrder                 // D7: MY
)

// Backlight PWM frequency.
const backlightFrequency = 2 * physic.KiloHertz

// sleep is replaced in tests.
var sleep = time.Sleep

// Config is the panel configuration.
type Config struct {
	// Width and Height of the panel in its native orientation. Zero uses the controller default.
	Width  int
	Height int

	// ColOffset and RowOffset position the panel inside the controller memory.
	ColOffset int
	RowOffset int

	// Orientations offered, in order of preference. Defaults to all orientations.
	Orientations []urmfb.Orientation

	// BGR panels have their red and blue sub pixels swapped.
	BGR bool

	// Invert the display colors, most IPS panels need this.
	Invert bool

	// Backlight pin, driven with PWM if set.
	Backlight gpio.PinOut

	// Brightness of the backlight, zero means full brightness.
	Brightness uint8

	// BatchSize is the maximum number of pixel bytes sent per data transfer.
	BatchSize int

	Logger zerolog.Logger
}

// controller describes a panel controller.
type controller struct {
	name          string
	width, height int // default size
	maxWidth      int
	maxHeight     int
	init          [][]byte
}

// Device is a SPI panel.
type Device struct {
	c          Conn
	controller controller
	config     Config
	log        zerolog.Logger

	mu          sync.Mutex
	orientation urmfb.Orientation
	mapped      bool
}

func newDevice(c Conn, ctrl controller, config *Config) (*Device, error) {
	var conf Config
	if config != nil {
		conf = *config
	}
	if conf.Width == 0 {
		conf.Width = ctrl.width
	}
	if conf.Height == 0 {
		conf.Height = ctrl.height
	}
	if conf.Width > ctrl.maxWidth || conf.Height > ctrl.maxHeight {
		return nil, fmt.Errorf("%s: invalid size %dx%d, maximum size is %dx%d",
			ctrl.name, conf.Width, conf.Height, ctrl.maxWidth, ctrl.maxHeight)
	}
	if len(conf.Orientations) == 0 {
		conf.Orientations = urmfb.Orientations
	}
	for _, o := range conf.Orientations {
		if o == urmfb.OrientationAny || !o.Valid() {
			return nil, fmt.Errorf("%s: invalid orientation %s", ctrl.name, o)
		}
	}
	if conf.Brightness == 0 {
		conf.Brightness = 0xff
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = int(DefaultSPIConfig.BatchSize)
	}

	d := &Device{
		c:          c,
		controller: ctrl,
		config:     conf,
		log:        conf.Logger.With().Str("panel", ctrl.name).Logger(),
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() (err error) {
	if err = d.SetBrightness(d.config.Brightness); err != nil {
		return
	}

	// reset the device.
	if err = d.c.Reset(gpio.High); err != nil {
		return
	}
	sleep(100 * time.Millisecond)
	if err = d.c.Reset(gpio.Low); err != nil {
		return
	}
	sleep(100 * time.Millisecond)
	if err = d.c.Reset(gpio.High); err != nil {
		return
	}
	sleep(10 * time.Millisecond)

	if err = d.c.Command(cmdSWRESET); err != nil {
		return
	}
	sleep(150 * time.Millisecond)
	if err = d.c.Command(cmdSLPOUT); err != nil {
		return
	}
	sleep(150 * time.Millisecond)

	if err = d.commands(d.controller.init); err != nil {
		return
	}
	invert := byte(cmdINVOFF)
	if d.config.Invert {
		invert = cmdINVON
	}
	if err = d.commands([][]byte{
		{cmdCOLMOD, 0x05}, // 16-bits per pixel
		{invert},
		{cmdNORON},
		{cmdDISPON},
	}); err != nil {
		return
	}
	sleep(100 * time.Millisecond)

	d.log.Debug().Int("width", d.config.Width).Int("height", d.config.Height).Msg("initialized")
	return d.setOrientation(d.config.Orientations[0])
}

func (d *Device) commands(commands [][]byte) (err error) {
	for _, command := range commands {
		if err = d.c.Command(command[0], command[1:]...); err != nil {
			return
		}
	}
	return
}

func (d *Device) String() string {
	return fmt.Sprintf("%s %dx%d on %s", d.controller.name, d.config.Width, d.config.Height, d.c)
}

// Modes returns a RGB565 mode for every configured orientation.
func (d *Device) Modes() []urmfb.Mode {
	native := image.Pt(d.config.Width, d.config.Height)
	modes := make([]urmfb.Mode, 0, len(d.config.Orientations))
	for _, o := range d.config.Orientations {
		size := o.NativeSize(native)
		m := urmfb.Packed(size.X, size.Y, urmfb.RGB565, o)
		m.ByteOrder = binary.BigEndian
		modes = append(modes, m)
	}
	return modes
}

// Map sets the panel orientation and allocates the framebuffer.
func (d *Device) Map(m urmfb.Mode) (urmfb.Surface, error) {
	var supported bool
	for _, mode := range d.Modes() {
		if supported = mode == m; supported {
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%s: unsupported mode %s", d.controller.name, m)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapped {
		return nil, fmt.Errorf("%s: already mapped", d.controller.name)
	}
	if err := d.setOrientation(m.Orientation); err != nil {
		return nil, err
	}
	d.mapped = true
	return &surface{
		dev:  d,
		mode: m,
		pix:  make([]byte, m.Size()),
	}, nil
}

// madctl returns the memory data access control value for an orientation.
func madctl(o urmfb.Orientation, bgr bool) byte {
	var v byte
	switch o.Degrees() {
	case 90:
		v = madctlColumnAddressOrder | madctlPageColumnOrder
	case 180:
		v = madctlColumnAddressOrder | madctlPageAddressOrder
	case 270:
		v = madctlPageAddressOrder | madctlPageColumnOrder
	}
	if o.Mirrored() {
		v ^= madctlColumnAddressOrder
	}
	if bgr {
		v |= madctlBGR
	}
	return v
}

func (d *Device) setOrientation(o urmfb.Orientation) error {
	v := madctl(o, d.config.BGR)
	d.log.Debug().Stringer("orientation", o).Uint8("madctl", v).Msg("orientation")
	if err := d.c.Command(cmdMADCTL, v); err != nil {
		return err
	}
	d.orientation = o
	return nil
}

// setWindow selects the region of the controller memory that is written next.
func (d *Device) setWindow(r image.Rectangle) error {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	if d.orientation.Transposed() {
		x0 += d.config.RowOffset
		y0 += d.config.ColOffset
		x1 += d.config.RowOffset
		y1 += d.config.ColOffset
	} else {
		x0 += d.config.ColOffset
		y0 += d.config.RowOffset
		x1 += d.config.ColOffset
		y1 += d.config.RowOffset
	}
	return d.commands([][]byte{
		{cmdCASET, byte(x0 >> 8), byte(x0), byte(x1 >> 8), byte(x1)}, // Column address
		{cmdRASET, byte(y0 >> 8), byte(y0), byte(y1 >> 8), byte(y1)}, // Row address
		{cmdRAMWR}, // Write to RAM
	})
}

// Show toggles the display on or off.
func (d *Device) Show(show bool) error {
	command := byte(cmdDISPOFF)
	if show {
		command = cmdDISPON
	}
	return d.c.Command(command)
}

// SetBrightness sets the backlight duty cycle. It is a no-op without backlight pin.
func (d *Device) SetBrightness(level uint8) error {
	if d.config.Backlight == nil {
		return nil
	}
	const step = gpio.DutyMax / 0xff
	duty := step * gpio.Duty(level)
	d.log.Debug().Stringer("duty", duty).Stringer("rate", backlightFrequency).Msg("backlight")
	return d.config.Backlight.PWM(duty, backlightFrequency)
}

// Close turns the display off and closes the connection.
func (d *Device) Close() error {
	if err := d.Show(false); err != nil {
		_ = d.c.Close()
		return err
	}
	return d.c.Close()
}

type surface struct {
	dev  *Device
	mode urmfb.Mode
	pix  []byte
}

func (s *surface) Pix() []byte {
	return s.pix
}

func (s *surface) Mode() urmfb.Mode {
	return s.mode
}

// Flush writes the region to the controller. The panel has a single refresh mode, so only
// UpdateClear is honored, by writing the whole frame.
func (s *surface) Flush(ctx context.Context, r image.Rectangle, mode urmfb.UpdateMode) error {
	if mode == urmfb.UpdateClear {
		r = image.Rect(0, 0, s.mode.Width, s.mode.Height)
	}

	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mapped {
		return fmt.Errorf("%s: flush on closed surface", d.controller.name)
	}
	if err := d.setWindow(r); err != nil {
		return err
	}

	var (
		bpp   = s.mode.Format.BytesPerPixel()
		row   = r.Dx() * bpp
		rows  = max(1, d.config.BatchSize/row)
		batch = make([]byte, 0, rows*row)
	)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := y*s.mode.LineStride + r.Min.X*bpp
		batch = append(batch, s.pix[i:i+row]...)
		if len(batch)+row > cap(batch) || y == r.Max.Y-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.c.Data(batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return nil
}

func (s *surface) Close() error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mapped = false
	return nil
}
