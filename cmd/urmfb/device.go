package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/framebuffer"
	"github.com/BeatGlow/urmfb/internal/config"
	"github.com/BeatGlow/urmfb/panel"
	"github.com/BeatGlow/urmfb/virtual"
)

// device is an opened display.
type device struct {
	urmfb.Device
	close func() error

	// virtual is set for virtual displays.
	virtual *virtual.Display
}

func openDevice(cfg config.Config, log zerolog.Logger) (*device, error) {
	switch cfg.Device {
	case config.DeviceFramebuffer:
		fb, err := framebuffer.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Debug().Bool("epdc", fb.EPDC()).Msg("opened framebuffer")
		return &device{Device: fb, close: fb.Close}, nil

	case config.DeviceST7789, config.DeviceST7735:
		return openPanel(cfg, log)

	case config.DeviceVirtual:
		d := virtual.New(&virtual.Config{
			Width:  cfg.Virtual.Width,
			Height: cfg.Virtual.Height,
			Formats: []urmfb.PixelFormat{
				urmfb.RGB565,
				urmfb.RGB888,
				urmfb.RGBA8888,
			},
		})
		return &device{Device: d, virtual: d}, nil

	default:
		return nil, fmt.Errorf("unsupported device %q", cfg.Device)
	}
}

func openPanel(cfg config.Config, log zerolog.Logger) (*device, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	c, err := panel.OpenSPI(&panel.SPIConfig{
		Bus:     cfg.SPI.Bus,
		Device:  cfg.SPI.Device,
		Mode:    panel.DefaultSPIConfig.Mode,
		SpeedHz: cfg.SPI.SpeedHz,
		Reset:   pin(cfg.SPI.Reset),
		DC:      pin(cfg.SPI.DC),
		CE:      pin(cfg.SPI.CE),
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("conn", c).Msg("opened connection")

	pc := &panel.Config{
		Width:      cfg.Panel.Width,
		Height:     cfg.Panel.Height,
		ColOffset:  cfg.Panel.ColOffset,
		RowOffset:  cfg.Panel.RowOffset,
		BGR:        cfg.Panel.BGR,
		Invert:     cfg.Panel.Invert,
		Backlight:  pin(cfg.Panel.Backlight),
		Brightness: cfg.Panel.Brightness,
		Logger:     log,
	}
	var d *panel.Device
	if cfg.Device == config.DeviceST7789 {
		d, err = panel.ST7789(c, pc)
	} else {
		d, err = panel.ST7735(c, pc)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &device{Device: d, close: d.Close}, nil
}

// pin looks up a GPIO pin by name, nil if name is empty or unknown.
func pin(name string) gpio.PinOut {
	if name == "" {
		return nil
	}
	if p := gpioreg.ByName(name); p != nil {
		return p
	}
	return nil
}

func (d *device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

var errNoSnapshot = errors.New("device has no snapshot")

// snapshot writes the panel contents as PNG, only virtual displays support it.
func (d *device) snapshot(w http.ResponseWriter) error {
	if d.virtual == nil {
		return errNoSnapshot
	}
	w.Header().Set("Content-Type", "image/png")
	return d.virtual.EncodePNG(w)
}
