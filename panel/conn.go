package panel

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/BeatGlow/urmfb/conn"
)

// Conn errors.
var (
	ErrResetPin = errors.New("panel: reset GPIO pin is invalid")
	ErrDCPin    = errors.New("panel: data/command (DC) GPIO pin is invalid")
)

// Conn is the connection interface for communicating with hardware.
type Conn interface {
	String() string

	// Close the connection.
	Close() error

	// Reset sets the reset pin to the provided level.
	Reset(gpio.Level) error

	// Command sends a command byte with optional arguments.
	Command(byte, ...byte) error

	// Data sends data bytes.
	Data(...byte) error
}

// SPIConfig describes the SPI bus configuration.
type SPIConfig struct {
	Bus       int
	Device    int
	Mode      conn.SPIMode
	SpeedHz   uint32
	DataLow   bool
	BatchSize uint

	// Reset and DC default to the pins named by DefaultResetPin and DefaultDCPin.
	Reset gpio.PinOut
	DC    gpio.PinOut
	CE    gpio.PinOut

	Logger zerolog.Logger
}

// Default pin names.
const (
	DefaultResetPin = "GPIO25"
	DefaultDCPin    = "GPIO24"
)

// DefaultSPIConfig are the default configuration values.
var DefaultSPIConfig = SPIConfig{
	Mode:      conn.SPIMode3,
	SpeedHz:   40_000_000,
	BatchSize: 4096,
	Logger:    zerolog.Nop(),
}

// ValidSPISpeeds are common valid SPI bus speeds.
var ValidSPISpeeds = []uint32{
	500_000,
	1_000_000,
	2_000_000,
	4_000_000,
	8_000_000,
	16_000_000,
	20_000_000,
	24_000_000,
	28_000_000,
	32_000_000,
	36_000_000,
	40_000_000,
	48_000_000,
	50_000_000,
	52_000_000,
}

type spiConn struct {
	bus       *conn.SPI
	log       zerolog.Logger
	reset     gpio.PinOut
	dc        gpio.PinOut
	dcLevel   gpio.Level
	dcSet     bool
	cs        gpio.PinOut
	dataLow   bool
	batchSize int
}

// OpenSPI opens a SPI connection with GPIO reset and data/command lines.
// The GPIO registry must be initialized, see periph.io/x/host/v3.
func OpenSPI(config *SPIConfig) (Conn, error) {
	if config == nil {
		config = new(SPIConfig)
		*config = DefaultSPIConfig
	}

	reset, dc := config.Reset, config.DC
	if reset == nil {
		if pin := gpioreg.ByName(DefaultResetPin); pin != nil {
			reset = pin
		}
	}
	if dc == nil {
		if pin := gpioreg.ByName(DefaultDCPin); pin != nil {
			dc = pin
		}
	}
	if reset == nil || reset == gpio.INVALID {
		return nil, ErrResetPin
	}
	if dc == nil || dc == gpio.INVALID {
		return nil, ErrDCPin
	}

	speed := config.SpeedHz
	if speed == 0 {
		speed = DefaultSPIConfig.SpeedHz
	}
	var valid bool
	for _, v := range ValidSPISpeeds {
		if valid = v == speed; valid {
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("panel: invalid SPI speed %dHz", speed)
	}

	batchSize := int(config.BatchSize)
	if batchSize == 0 {
		batchSize = int(DefaultSPIConfig.BatchSize)
	}

	c, err := conn.OpenSPI(config.Bus, config.Device)
	if err != nil {
		return nil, err
	}
	if err = c.SetMode(config.Mode); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err = c.SetMaxSpeed(int(speed)); err != nil {
		_ = c.Close()
		return nil, err
	}

	return &spiConn{
		bus:       c,
		log:       config.Logger.With().Str("bus", c.String()).Logger(),
		batchSize: batchSize,
		dataLow:   config.DataLow,
		reset:     reset,
		dc:        dc,
		cs:        config.CE,
	}, nil
}

func (c *spiConn) String() string {
	return fmt.Sprintf("SPI bus %s", c.bus)
}

func (c *spiConn) Close() error {
	return c.bus.Close()
}

func (c *spiConn) Reset(level gpio.Level) error {
	return c.reset.Out(level)
}

func (c *spiConn) updateDC(level gpio.Level) error {
	if !c.dcSet || c.dcLevel != level {
		if err := c.dc.Out(level); err != nil {
			return err
		}
		c.dcLevel, c.dcSet = level, true
	}
	return nil
}

func (c *spiConn) updateCS(level gpio.Level) error {
	if c.cs == nil {
		return nil
	}
	return c.cs.Out(level)
}

func (c *spiConn) Command(cmnd byte, data ...byte) (err error) {
	if err = c.updateCS(gpio.Low); err != nil {
		return
	}
	if err = c.updateDC(gpio.Level(c.dataLow)); err != nil {
		return
	}
	if _, err = c.bus.Write([]byte{cmnd}); err != nil {
		return
	}
	if len(data) > 0 {
		if err = c.updateDC(gpio.Level(!c.dataLow)); err != nil {
			return
		}
		if err = c.writeChunked(data); err != nil {
			return
		}
	}
	return c.updateCS(gpio.High)
}

func (c *spiConn) Data(data ...byte) (err error) {
	if len(data) == 0 {
		return
	}
	if err = c.updateDC(gpio.Level(!c.dataLow)); err != nil {
		return
	}
	if err = c.updateCS(gpio.Low); err != nil {
		return
	}
	if err = c.writeChunked(data); err != nil {
		return
	}
	return c.updateCS(gpio.High)
}

// writeChunked writes data in transfers of at most batchSize bytes, the spidev transfer limit.
func (c *spiConn) writeChunked(data []byte) (err error) {
	if len(data) > c.batchSize {
		c.log.Trace().Int("bytes", len(data)).Int("chunks", (len(data)+c.batchSize-1)/c.batchSize).Msg("chunked write")
	}
	for len(data) > 0 {
		n := len(data)
		if n > c.batchSize {
			n = c.batchSize
		}
		if _, err = c.bus.Write(data[:n]); err != nil {
			return
		}
		data = data[n:]
	}
	return
}
