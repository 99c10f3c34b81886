package urmfb

import (
	"image"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueueSize is the number of asynchronous updates that can be queued
// before UpdateAsync blocks.
const DefaultQueueSize = 32

// DefaultMaxFailed is the number of unawaited update errors a framebuffer keeps.
const DefaultMaxFailed = 1024

// Observer receives statistics about processed updates.
type Observer interface {
	// ObserveUpdate is called after an update was applied to the device.
	ObserveUpdate(device string, mode UpdateMode, r image.Rectangle, took time.Duration, err error)

	// ObserveQueue is called whenever the number of pending updates changes.
	ObserveQueue(device string, pending int)
}

// Option configures an acquired framebuffer.
type Option func(*options)

type options struct {
	queueSize int
	maxFailed int
	logger    zerolog.Logger
	observer  Observer
}

func defaultOptions() options {
	return options{
		queueSize: DefaultQueueSize,
		maxFailed: DefaultMaxFailed,
		logger:    logger,
	}
}

// WithQueueSize sets the capacity of the asynchronous update queue.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithMaxFailed sets how many errors of failed, not yet awaited updates are kept. Beyond it,
// the error of the oldest failed update is dropped and awaiting it returns nil.
func WithMaxFailed(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFailed = n
		}
	}
}

// WithLogger sets the logger, overriding the URMFB_DEBUG default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver reports update statistics to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
