// Package config loads the urmfb command configuration.
//
// Values are layered: defaults, then the YAML file, then URMFB_* environment variables,
// then command line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/BeatGlow/urmfb"
)

// EnvPrefix is the prefix of all environment variables.
const EnvPrefix = "URMFB_"

// Device kinds.
const (
	DeviceFramebuffer = "fbdev"
	DeviceST7789      = "st7789"
	DeviceST7735      = "st7735"
	DeviceVirtual     = "virtual"
)

// Config is the command configuration.
type Config struct {
	// Device kind, one of fbdev, st7789, st7735 or virtual.
	Device string `yaml:"device" env:"DEVICE"`

	// Path of the framebuffer device.
	Path string `yaml:"path" env:"FBDEV"`

	// Request is the wanted framebuffer configuration.
	Request Request `yaml:"request" envPrefix:"REQUEST_"`

	// Update is the update mode used for drawing.
	Update urmfb.UpdateMode `yaml:"update" env:"UPDATE"`

	// QueueSize of the asynchronous update queue.
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`

	SPI     SPI     `yaml:"spi" envPrefix:"SPI_"`
	Panel   Panel   `yaml:"panel" envPrefix:"PANEL_"`
	Virtual Virtual `yaml:"virtual" envPrefix:"VIRTUAL_"`

	// Metrics is the listen address of the metrics server, empty to disable it.
	Metrics string `yaml:"metrics" env:"METRICS"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" env:"DEBUG"`
}

// Request mirrors urmfb.Request without the pixel memory.
type Request struct {
	Width       int               `yaml:"width" env:"WIDTH"`
	Height      int               `yaml:"height" env:"HEIGHT"`
	Format      urmfb.PixelFormat `yaml:"format" env:"FORMAT"`
	Orientation urmfb.Orientation `yaml:"orientation" env:"ORIENTATION"`
	LineStride  int               `yaml:"line_stride" env:"LINE_STRIDE"`
}

// SPI bus settings.
type SPI struct {
	Bus     int    `yaml:"bus" env:"BUS"`
	Device  int    `yaml:"device" env:"DEVICE"`
	SpeedHz uint32 `yaml:"speed_hz" env:"SPEED_HZ"`
	Reset   string `yaml:"reset" env:"RESET"`
	DC      string `yaml:"dc" env:"DC"`
	CE      string `yaml:"ce" env:"CE"`
}

// Panel settings.
type Panel struct {
	Width      int    `yaml:"width" env:"WIDTH"`
	Height     int    `yaml:"height" env:"HEIGHT"`
	ColOffset  int    `yaml:"col_offset" env:"COL_OFFSET"`
	RowOffset  int    `yaml:"row_offset" env:"ROW_OFFSET"`
	BGR        bool   `yaml:"bgr" env:"BGR"`
	Invert     bool   `yaml:"invert" env:"INVERT"`
	Backlight  string `yaml:"backlight" env:"BACKLIGHT"`
	Brightness uint8  `yaml:"brightness" env:"BRIGHTNESS"`
}

// Virtual display settings.
type Virtual struct {
	Width    int    `yaml:"width" env:"WIDTH"`
	Height   int    `yaml:"height" env:"HEIGHT"`
	Snapshot string `yaml:"snapshot" env:"SNAPSHOT"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Device:    DeviceFramebuffer,
		Path:      "/dev/fb0",
		Update:    urmfb.UpdateAny,
		QueueSize: urmfb.DefaultQueueSize,
		SPI: SPI{
			SpeedHz: 40_000_000,
			Reset:   "GPIO25",
			DC:      "GPIO24",
		},
		Virtual: Virtual{
			Width:  320,
			Height: 240,
		},
	}
}

// Load returns the defaults overridden by the YAML file at path, if not empty, and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err = Decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Decode strictly decodes a YAML document into cfg, rejecting unknown fields.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// RegisterFlags binds the command line flags to cfg, using its values as defaults.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Device kind (fbdev, st7789, st7735, virtual)")
	fs.StringVar(&cfg.Path, "fbdev", cfg.Path, "Framebuffer device")
	fs.IntVar(&cfg.Request.Width, "width", cfg.Request.Width, "Framebuffer width (0 for any)")
	fs.IntVar(&cfg.Request.Height, "height", cfg.Request.Height, "Framebuffer height (0 for any)")
	fs.TextVar(&cfg.Request.Format, "format", cfg.Request.Format, "Pixel format (any, rgb565, rgb888, rgba8888)")
	fs.TextVar(&cfg.Request.Orientation, "rotate", cfg.Request.Orientation, "Orientation (any, 0, 90, 180, 270, 0m, 90m, 180m, 270m)")
	fs.TextVar(&cfg.Update, "update", cfg.Update, "Update mode (any, clear, direct, hq, mq, fast)")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Asynchronous update queue size")
	fs.IntVar(&cfg.SPI.Bus, "spi-bus", cfg.SPI.Bus, "SPI bus")
	fs.IntVar(&cfg.SPI.Device, "spi-dev", cfg.SPI.Device, "SPI device")
	fs.StringVar(&cfg.SPI.Reset, "reset", cfg.SPI.Reset, "Reset GPIO pin")
	fs.StringVar(&cfg.SPI.DC, "dc", cfg.SPI.DC, "Data/Command GPIO pin (DC)")
	fs.StringVar(&cfg.SPI.CE, "ce", cfg.SPI.CE, "Chip enable GPIO pin")
	fs.StringVar(&cfg.Panel.Backlight, "bl", cfg.Panel.Backlight, "Backlight GPIO pin")
	fs.BoolVar(&cfg.Panel.Invert, "invert", cfg.Panel.Invert, "Invert panel colors")
	fs.StringVar(&cfg.Virtual.Snapshot, "snapshot", cfg.Virtual.Snapshot, "Write the virtual display to this PNG file")
	fs.StringVar(&cfg.Metrics, "metrics", cfg.Metrics, "Metrics listen address, e.g. :9100")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	switch cfg.Device {
	case DeviceFramebuffer, DeviceST7789, DeviceST7735, DeviceVirtual:
	default:
		return fmt.Errorf("config: unknown device %q", cfg.Device)
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("config: queue size %d must be positive", cfg.QueueSize)
	}
	if !cfg.Update.Valid() {
		return fmt.Errorf("config: invalid update mode %d", uint32(cfg.Update))
	}
	r := cfg.FramebufferRequest()
	if err := r.Validate(); err != nil {
		return fmt.Errorf("config: request: %w", err)
	}
	return nil
}

// FramebufferRequest returns the configured framebuffer request.
func (cfg *Config) FramebufferRequest() urmfb.Request {
	return urmfb.Request{
		Width:       cfg.Request.Width,
		Height:      cfg.Request.Height,
		Format:      cfg.Request.Format,
		Orientation: cfg.Request.Orientation,
		LineStride:  cfg.Request.LineStride,
	}
}
