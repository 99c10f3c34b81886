package urmfb

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BeatGlow/urmfb/pixel"
)

// Handle identifies an asynchronous update. Handles of a framebuffer start at 1 and increase.
type Handle int64

type update struct {
	handle Handle
	rect   image.Rectangle
	mode   UpdateMode
}

// Framebuffer is an acquired framebuffer.
//
// The embedded Request holds the resolved configuration and the pixel memory. Drawing into
// Data is visible on the panel after the region is updated. Data must not be used after Release.
type Framebuffer struct {
	Request

	// Index of the request that was selected.
	Index int

	dev       Device
	surface   Surface
	mode      Mode
	image     pixel.Image
	log       zerolog.Logger
	observer  Observer
	maxFailed int

	queue chan update
	done  chan struct{}

	// send is held while handing out a handle and queueing it, so the queue is in handle
	// order. It is a channel so waiting for it can be canceled.
	send chan struct{}

	mu       sync.Mutex
	released bool
	last     Handle
	inflight map[Handle]chan struct{}
	failed   map[Handle]error
}

func newFramebuffer(dev Device, surface Surface, index int, request Request, o options) *Framebuffer {
	mode := surface.Mode()
	f := &Framebuffer{
		Request:   request,
		Index:     index,
		dev:       dev,
		surface:   surface,
		mode:      mode,
		image:     NewImage(mode, request.Data),
		log:       o.logger.With().Str("device", dev.String()).Logger(),
		observer:  o.observer,
		maxFailed: o.maxFailed,
		queue:     make(chan update, o.queueSize),
		done:      make(chan struct{}),
		send:      make(chan struct{}, 1),
		inflight:  make(map[Handle]chan struct{}),
		failed:    make(map[Handle]error),
	}
	go f.run()
	return f
}

// NewImage returns a drawable view of pixel memory laid out as described by m, or nil if the
// format is not concrete.
func NewImage(m Mode, pix []byte) pixel.Image {
	b := pixel.Buffer{
		Rect:   image.Rect(0, 0, m.Width, m.Height),
		Pix:    pix,
		Stride: m.LineStride,
	}
	switch m.Format {
	case RGB565:
		return &pixel.RGB565Image{Buffer: b, Order: m.byteOrder()}
	case RGB888:
		return &pixel.RGB888Image{Buffer: b}
	case RGBA8888:
		return &pixel.RGBA8888Image{Buffer: b}
	default:
		return nil
	}
}

func (f *Framebuffer) String() string {
	return f.dev.String() + " " + f.mode.String()
}

// Bounds returns the framebuffer rectangle.
func (f *Framebuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mode.Width, f.mode.Height)
}

// Mode returns the device mode the framebuffer was mapped with.
func (f *Framebuffer) Mode() Mode {
	return f.mode
}

// Image returns a drawable view of the pixel memory. It returns nil after Release.
func (f *Framebuffer) Image() pixel.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	return f.image
}

// Pending returns the number of queued updates that did not complete yet.
func (f *Framebuffer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

// UpdateSync pushes the region r to the panel and waits for the update to complete. It is
// applied after all previously queued updates.
func (f *Framebuffer) UpdateSync(ctx context.Context, r image.Rectangle, mode UpdateMode) error {
	h, err := f.UpdateAsync(ctx, r, mode)
	if err != nil {
		return err
	}
	return f.Await(ctx, h)
}

// UpdateAsync queues an update of region r and returns its handle. The region is clipped to
// the framebuffer; UpdateClear always updates the whole framebuffer. It blocks while the queue
// is full, until there is room or ctx is done.
func (f *Framebuffer) UpdateAsync(ctx context.Context, r image.Rectangle, mode UpdateMode) (Handle, error) {
	if !mode.Valid() {
		return 0, ErrInvalidMode
	}

	bounds := f.Bounds()
	if mode == UpdateClear {
		r = bounds
	} else {
		r = r.Canon().Intersect(bounds)
	}

	select {
	case f.send <- struct{}{}:
	default:
		// Another caller is queueing, possibly waiting for room.
		select {
		case f.send <- struct{}{}:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	defer func() { <-f.send }()

	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return 0, ErrReleased
	}
	f.last++
	u := update{handle: f.last, rect: r, mode: mode}
	f.inflight[u.handle] = make(chan struct{})
	f.observeQueue()
	f.mu.Unlock()

	select {
	case f.queue <- u:
		f.log.Debug().Int64("handle", int64(u.handle)).Stringer("rect", r).Stringer("mode", mode).Msg("queued")
		return u.handle, nil
	case <-ctx.Done():
		// The handle is spent, awaiting it reports why the update never ran.
		f.complete(u.handle, ctx.Err())
		return 0, ctx.Err()
	}
}

// Await waits for the update with handle h to complete and returns its error. The error of a
// failed update is only returned to the first caller awaiting it, see [WithMaxFailed].
func (f *Framebuffer) Await(ctx context.Context, h Handle) error {
	f.mu.Lock()
	if h <= 0 || h > f.last {
		f.mu.Unlock()
		return ErrUnknownHandle
	}
	done, waiting := f.inflight[h]
	f.mu.Unlock()

	if waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failed[h]
	delete(f.failed, h)
	return err
}

// Release stops accepting updates, waits for the queued updates to complete and unmaps the
// framebuffer. The device can be acquired again afterwards.
func (f *Framebuffer) Release() error {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return ErrReleased
	}
	f.released = true
	f.mu.Unlock()

	// No sender can queue once released is set, so the queue can be closed.
	f.send <- struct{}{}
	close(f.queue)
	<-f.send
	<-f.done

	err := f.surface.Close()
	unclaim(f.dev)
	f.Data = nil
	f.log.Debug().Err(err).Msg("released")
	return err
}

func (f *Framebuffer) run() {
	defer close(f.done)
	ctx := context.Background()
	for u := range f.queue {
		var (
			start = time.Now()
			err   error
		)
		if !u.rect.Empty() {
			err = f.surface.Flush(ctx, u.rect, u.mode)
		}
		took := time.Since(start)

		event := f.log.Debug()
		if err != nil {
			event = f.log.Warn().Err(err)
		}
		event.Int64("handle", int64(u.handle)).
			Stringer("rect", u.rect).
			Stringer("mode", u.mode).
			Dur("took", took).
			Msg("update")
		if f.observer != nil && !u.rect.Empty() {
			f.observer.ObserveUpdate(f.dev.String(), u.mode, u.rect, took, err)
		}

		f.complete(u.handle, err)
	}
}

// complete marks the update done and wakes up its waiters.
func (f *Framebuffer) complete(h Handle, err error) {
	f.mu.Lock()
	done := f.inflight[h]
	delete(f.inflight, h)
	if err != nil {
		f.failed[h] = err
		if len(f.failed) > f.maxFailed {
			oldest := h
			for k := range f.failed {
				oldest = min(oldest, k)
			}
			delete(f.failed, oldest)
		}
	}
	f.observeQueue()
	f.mu.Unlock()

	if done != nil {
		close(done)
	}
}

// observeQueue reports the number of pending updates. f.mu must be held.
func (f *Framebuffer) observeQueue() {
	if f.observer != nil {
		f.observer.ObserveQueue(f.dev.String(), len(f.inflight))
	}
}
