package urmfb

import (
	"fmt"
	"sync"
)

var acquired = struct {
	sync.Mutex
	devices map[Device]struct{}
}{
	devices: make(map[Device]struct{}),
}

func claim(dev Device) bool {
	acquired.Lock()
	defer acquired.Unlock()
	if _, busy := acquired.devices[dev]; busy {
		return false
	}
	acquired.devices[dev] = struct{}{}
	return true
}

func unclaim(dev Device) {
	acquired.Lock()
	delete(acquired.devices, dev)
	acquired.Unlock()
}

// Select returns the index of the first request matching one of the modes, and the matching mode.
//
// Requests are tried in order; for every request, the modes are tried in order. It returns
// ErrNoMatch if nothing matches, or ErrInvalidRequest if a request is invalid.
func Select(requests []Request, modes []Mode) (int, Mode, error) {
	for i := range requests {
		if err := requests[i].Validate(); err != nil {
			return -1, Mode{}, fmt.Errorf("%w %d: %v", ErrInvalidRequest, i, err)
		}
	}
	for i := range requests {
		for _, m := range modes {
			if requests[i].Matches(m) {
				return i, m, nil
			}
		}
	}
	return -1, Mode{}, ErrNoMatch
}

// Acquire selects a framebuffer on dev matching one of the requests and maps it.
//
// The selection policy is described by [Select]. A device has at most one acquired framebuffer;
// ErrBusy is returned until it is released.
func Acquire(dev Device, requests []Request, opts ...Option) (*Framebuffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger.With().Str("device", dev.String()).Logger()

	index, mode, err := Select(requests, dev.Modes())
	if err != nil {
		log.Debug().Err(err).Int("requests", len(requests)).Msg("acquire failed")
		return nil, err
	}

	if !claim(dev) {
		return nil, ErrBusy
	}

	surface, err := dev.Map(mode)
	if err != nil {
		unclaim(dev)
		return nil, fmt.Errorf("urmfb: map %s on %s: %w", mode, dev, err)
	}

	effective := surface.Mode()
	if !requests[index].Matches(effective) {
		_ = surface.Close()
		unclaim(dev)
		return nil, fmt.Errorf("%w: %s changed to %s when mapped", ErrNoMatch, mode, effective)
	}
	if pix := surface.Pix(); len(pix) < effective.Size() {
		_ = surface.Close()
		unclaim(dev)
		return nil, fmt.Errorf("urmfb: %s mapped %d bytes, mode %s needs %d", dev, len(pix), effective, effective.Size())
	}

	f := newFramebuffer(dev, surface, index, requests[index].resolve(effective, surface.Pix()), o)
	log.Debug().Int("request", index).Stringer("mode", effective).Msg("acquired")
	return f, nil
}
