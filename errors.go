package urmfb

import "errors"

// Errors
var (
	ErrNoMatch        = errors.New("urmfb: no request matches a device mode")
	ErrInvalidRequest = errors.New("urmfb: invalid request")
	ErrBusy           = errors.New("urmfb: device already has an acquired framebuffer")
	ErrInvalidMode    = errors.New("urmfb: invalid update mode")
	ErrUnknownHandle  = errors.New("urmfb: unknown update handle")
	ErrReleased       = errors.New("urmfb: framebuffer is released")
)
