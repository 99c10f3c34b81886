package urmfb_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/virtual"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gate blocks every flush until it is opened.
type gate struct {
	open    chan struct{}
	entered chan virtual.Update
}

func newGate() *gate {
	return &gate{
		open:    make(chan struct{}),
		entered: make(chan virtual.Update, 64),
	}
}

func (g *gate) flush(u virtual.Update) error {
	g.entered <- u
	<-g.open
	return nil
}

func acquire(t *testing.T, dev urmfb.Device, requests ...urmfb.Request) *urmfb.Framebuffer {
	t.Helper()
	if len(requests) == 0 {
		requests = []urmfb.Request{{}}
	}
	fb, err := urmfb.Acquire(dev, requests)
	require.NoError(t, err)
	return fb
}

func TestSelect(t *testing.T) {
	modes := []urmfb.Mode{
		urmfb.Packed(4, 2, urmfb.RGB565, urmfb.Rotate0),
		urmfb.Packed(4, 2, urmfb.RGBA8888, urmfb.Rotate0),
		urmfb.Packed(2, 4, urmfb.RGB565, urmfb.Rotate90),
	}

	tests := []struct {
		name      string
		requests  []urmfb.Request
		wantIndex int
		wantMode  int
		wantErr   error
	}{
		{"wildcard", []urmfb.Request{{}}, 0, 0, nil},
		{"format", []urmfb.Request{{Format: urmfb.RGBA8888}}, 0, 1, nil},
		{"orientation", []urmfb.Request{{Orientation: urmfb.Rotate90}}, 0, 2, nil},
		{"size", []urmfb.Request{{Width: 2, Height: 4}}, 0, 2, nil},
		{"stride", []urmfb.Request{{LineStride: 16}}, 0, 1, nil},
		{"request order wins", []urmfb.Request{
			{Format: urmfb.RGB888},
			{Orientation: urmfb.Rotate90},
			{Format: urmfb.RGB565},
		}, 1, 2, nil},
		{"no match", []urmfb.Request{{Format: urmfb.RGB888}, {Width: 3}}, -1, -1, urmfb.ErrNoMatch},
		{"empty", nil, -1, -1, urmfb.ErrNoMatch},
		{"reserved", []urmfb.Request{{}, {Reserved: [9]uint32{0, 0, 1}}}, -1, -1, urmfb.ErrInvalidRequest},
		{"short stride", []urmfb.Request{{Width: 4, Format: urmfb.RGB565, LineStride: 6}}, -1, -1, urmfb.ErrInvalidRequest},
		{"bad format", []urmfb.Request{{Format: 17}}, -1, -1, urmfb.ErrInvalidRequest},
		{"bad orientation", []urmfb.Request{{Orientation: 17}}, -1, -1, urmfb.ErrInvalidRequest},
		{"negative size", []urmfb.Request{{Width: -1}}, -1, -1, urmfb.ErrInvalidRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			index, mode, err := urmfb.Select(test.requests, modes)
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
				assert.Equal(t, -1, index)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.wantIndex, index)
			assert.Equal(t, modes[test.wantMode], mode)
		})
	}
}

func TestAcquireResolvesRequest(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 6, Height: 4})
	fb := acquire(t, dev,
		urmfb.Request{Format: urmfb.RGB888},
		urmfb.Request{Orientation: urmfb.Rotate90},
	)
	defer fb.Release()

	assert.Equal(t, 1, fb.Index)
	want := urmfb.Request{
		Width:       4,
		Height:      6,
		Format:      urmfb.RGB565,
		Orientation: urmfb.Rotate90,
		LineStride:  8,
	}
	got := fb.Request
	got.Data = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved request (-want +got):\n%s", diff)
	}
	assert.Len(t, fb.Data, 48)
	assert.Equal(t, image.Rect(0, 0, 4, 6), fb.Bounds())
	assert.NotNil(t, fb.Image())
}

func TestAcquireBusy(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4})
	fb := acquire(t, dev)

	_, err := urmfb.Acquire(dev, []urmfb.Request{{}})
	assert.ErrorIs(t, err, urmfb.ErrBusy)

	// Other devices are not affected.
	other := acquire(t, virtual.New(&virtual.Config{Width: 4, Height: 4}))
	require.NoError(t, other.Release())

	require.NoError(t, fb.Release())
	fb = acquire(t, dev, urmfb.Request{Orientation: urmfb.Rotate180})
	assert.Equal(t, urmfb.Rotate180, fb.Orientation)
	require.NoError(t, fb.Release())
}

func TestAcquireNoMatchLeavesDeviceFree(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4})
	_, err := urmfb.Acquire(dev, []urmfb.Request{{Format: urmfb.RGB888}})
	assert.ErrorIs(t, err, urmfb.ErrNoMatch)

	fb := acquire(t, dev)
	require.NoError(t, fb.Release())
}

func TestUpdateSync(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4})
	fb := acquire(t, dev, urmfb.Request{Orientation: urmfb.Rotate180})
	defer fb.Release()

	fb.Image().Set(0, 0, color.Black)
	fb.Image().Set(3, 3, color.Black)

	ctx := context.Background()
	require.NoError(t, fb.UpdateSync(ctx, image.Rect(0, 0, 1, 1), urmfb.UpdateFast))

	panel := dev.Snapshot()
	assert.Equal(t, color.RGBA{A: 0xff}, panel.RGBAAt(3, 3))
	// Not updated yet.
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, panel.RGBAAt(0, 0))

	require.NoError(t, fb.UpdateSync(ctx, fb.Bounds(), urmfb.UpdateHQ))
	panel = dev.Snapshot()
	assert.Equal(t, color.RGBA{A: 0xff}, panel.RGBAAt(0, 0))
}

func TestUpdateRegions(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 8, Height: 4, Orientations: []urmfb.Orientation{urmfb.Rotate0}})
	fb := acquire(t, dev)
	defer fb.Release()

	ctx := context.Background()
	require.NoError(t, fb.UpdateSync(ctx, image.Rect(6, 3, -2, 1), urmfb.UpdateAny))
	require.NoError(t, fb.UpdateSync(ctx, image.Rect(2, 2, 3, 3), urmfb.UpdateClear))
	// Outside the framebuffer, completes without reaching the device.
	require.NoError(t, fb.UpdateSync(ctx, image.Rect(10, 10, 20, 20), urmfb.UpdateFast))
	require.NoError(t, fb.UpdateSync(ctx, image.Rectangle{}, urmfb.UpdateFast))

	var got []image.Rectangle
	var modes []urmfb.UpdateMode
	for _, u := range dev.Updates() {
		got = append(got, u.Rect)
		modes = append(modes, u.Mode)
	}
	assert.Equal(t, []image.Rectangle{image.Rect(0, 1, 6, 3), image.Rect(0, 0, 8, 4)}, got)
	assert.Equal(t, []urmfb.UpdateMode{urmfb.UpdateAny, urmfb.UpdateClear}, modes)
}

func TestUpdateInvalidMode(t *testing.T) {
	fb := acquire(t, virtual.New(&virtual.Config{Width: 4, Height: 4}))
	defer fb.Release()

	_, err := fb.UpdateAsync(context.Background(), fb.Bounds(), urmfb.UpdateMode(99))
	assert.ErrorIs(t, err, urmfb.ErrInvalidMode)
	assert.ErrorIs(t, fb.UpdateSync(context.Background(), fb.Bounds(), urmfb.UpdateMode(99)), urmfb.ErrInvalidMode)
}

func TestUpdateAsyncOrder(t *testing.T) {
	g := newGate()
	dev := virtual.New(&virtual.Config{Width: 8, Height: 8, OnFlush: g.flush})
	fb := acquire(t, dev)

	ctx := context.Background()
	var handles []urmfb.Handle
	for i := 0; i < 5; i++ {
		h, err := fb.UpdateAsync(ctx, image.Rect(i, 0, i+1, 1), urmfb.UpdateFast)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, []urmfb.Handle{1, 2, 3, 4, 5}, handles)

	// The first update is being flushed, the others wait in the queue.
	<-g.entered
	assert.Equal(t, 5, fb.Pending())

	close(g.open)
	require.NoError(t, fb.Await(ctx, handles[4]))
	for _, h := range handles {
		require.NoError(t, fb.Await(ctx, h))
	}
	assert.Equal(t, 0, fb.Pending())

	var got []int
	for _, u := range dev.Updates() {
		got = append(got, u.Rect.Min.X)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	require.NoError(t, fb.Release())
}

func TestAwait(t *testing.T) {
	failure := errors.New("panel timeout")
	dev := virtual.New(&virtual.Config{
		Width:  4,
		Height: 4,
		OnFlush: func(u virtual.Update) error {
			if u.Mode == urmfb.UpdateHQ {
				return failure
			}
			return nil
		},
	})
	fb := acquire(t, dev)
	defer fb.Release()

	ctx := context.Background()
	assert.ErrorIs(t, fb.Await(ctx, 0), urmfb.ErrUnknownHandle)
	assert.ErrorIs(t, fb.Await(ctx, 1), urmfb.ErrUnknownHandle)

	ok, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	bad, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateHQ)
	require.NoError(t, err)

	assert.ErrorIs(t, fb.Await(ctx, bad), failure)
	// The error is reported once.
	assert.NoError(t, fb.Await(ctx, bad))
	assert.NoError(t, fb.Await(ctx, ok))
	assert.NoError(t, fb.Await(ctx, ok))
	assert.ErrorIs(t, fb.Await(ctx, bad+1), urmfb.ErrUnknownHandle)

	assert.ErrorIs(t, fb.UpdateSync(ctx, fb.Bounds(), urmfb.UpdateHQ), failure)
}

func TestAwaitCanceled(t *testing.T) {
	g := newGate()
	fb := acquire(t, virtual.New(&virtual.Config{Width: 4, Height: 4, OnFlush: g.flush}))

	h, err := fb.UpdateAsync(context.Background(), fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fb.Await(ctx, h), context.DeadlineExceeded)

	// Canceling the wait does not cancel the update.
	close(g.open)
	assert.NoError(t, fb.Await(context.Background(), h))
	require.NoError(t, fb.Release())
}

func TestUpdateAsyncQueueFull(t *testing.T) {
	g := newGate()
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4, OnFlush: g.flush})
	fb, err := urmfb.Acquire(dev, []urmfb.Request{{}}, urmfb.WithQueueSize(1))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	<-g.entered
	_, err = fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = fb.UpdateAsync(canceled, fb.Bounds(), urmfb.UpdateFast)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, fb.Pending())
	// The spent handle reports that the update never ran.
	assert.ErrorIs(t, fb.Await(ctx, 3), context.Canceled)
	assert.NoError(t, fb.Await(ctx, 3))

	close(g.open)
	h, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	assert.Equal(t, urmfb.Handle(4), h)
	require.NoError(t, fb.Await(ctx, h))
	assert.Len(t, dev.Updates(), 3)
	require.NoError(t, fb.Release())
}

func TestUpdateAsyncDeadlineWhileAnotherCallerWaits(t *testing.T) {
	g := newGate()
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4, OnFlush: g.flush})
	fb, err := urmfb.Acquire(dev, []urmfb.Request{{}}, urmfb.WithQueueSize(1))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	<-g.entered
	_, err = fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)

	// The first producer waits for room in the full queue without a deadline.
	var (
		wg      sync.WaitGroup
		blocked urmfb.Handle
		waitErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		blocked, waitErr = fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	}()
	require.Eventually(t, func() bool { return fb.Pending() == 3 }, time.Second, time.Millisecond)

	// The second producer gives up at its own deadline.
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = fb.UpdateAsync(timeout, fb.Bounds(), urmfb.UpdateFast)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(g.open)
	wg.Wait()
	require.NoError(t, waitErr)
	assert.Equal(t, urmfb.Handle(3), blocked)
	require.NoError(t, fb.Await(ctx, blocked))

	h, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	require.NoError(t, err)
	assert.Equal(t, urmfb.Handle(4), h)
	require.NoError(t, fb.Release())
	assert.Len(t, dev.Updates(), 4)
}

func TestFailedUpdatesAreCapped(t *testing.T) {
	failure := errors.New("panel timeout")
	dev := virtual.New(&virtual.Config{
		Width:   4,
		Height:  4,
		OnFlush: func(virtual.Update) error { return failure },
	})
	fb, err := urmfb.Acquire(dev, []urmfb.Request{{}}, urmfb.WithMaxFailed(2))
	require.NoError(t, err)
	defer fb.Release()

	ctx := context.Background()
	var handles []urmfb.Handle
	for i := 0; i < 4; i++ {
		h, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	require.Eventually(t, func() bool { return fb.Pending() == 0 }, time.Second, time.Millisecond)

	// Only the latest two errors are kept.
	assert.NoError(t, fb.Await(ctx, handles[0]))
	assert.NoError(t, fb.Await(ctx, handles[1]))
	assert.ErrorIs(t, fb.Await(ctx, handles[2]), failure)
	assert.ErrorIs(t, fb.Await(ctx, handles[3]), failure)
}

func TestBoundsIgnoresRequestFields(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4})
	fb := acquire(t, dev)
	defer fb.Release()

	fb.Width, fb.Height = 100, 100
	assert.Equal(t, image.Rect(0, 0, 4, 4), fb.Bounds())

	require.NoError(t, fb.UpdateSync(context.Background(), image.Rect(0, 0, 100, 100), urmfb.UpdateFast))
	updates := dev.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, image.Rect(0, 0, 4, 4), updates[0].Rect)
}

func TestReleaseDrainsQueue(t *testing.T) {
	g := newGate()
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4, OnFlush: g.flush})
	fb := acquire(t, dev)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
		require.NoError(t, err)
	}
	<-g.entered

	var wg sync.WaitGroup
	wg.Add(1)
	var releaseErr error
	go func() {
		defer wg.Done()
		releaseErr = fb.Release()
	}()

	// Updates are refused as soon as release started.
	require.Eventually(t, func() bool { return fb.Image() == nil }, time.Second, time.Millisecond)
	_, err := fb.UpdateAsync(ctx, fb.Bounds(), urmfb.UpdateFast)
	assert.ErrorIs(t, err, urmfb.ErrReleased)

	close(g.open)
	wg.Wait()
	require.NoError(t, releaseErr)

	assert.Len(t, dev.Updates(), 3)
	assert.Nil(t, fb.Data)
	assert.Nil(t, fb.Image())
	assert.ErrorIs(t, fb.Release(), urmfb.ErrReleased)
	assert.ErrorIs(t, fb.UpdateSync(ctx, fb.Bounds(), urmfb.UpdateFast), urmfb.ErrReleased)

	// Completed handles can still be awaited.
	assert.NoError(t, fb.Await(ctx, 3))
}

type recorder struct {
	mu      sync.Mutex
	updates []urmfb.UpdateMode
	errs    []error
	queue   []int
}

func (r *recorder) ObserveUpdate(device string, mode urmfb.UpdateMode, _ image.Rectangle, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, mode)
	r.errs = append(r.errs, err)
}

func (r *recorder) ObserveQueue(device string, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, pending)
}

func TestObserver(t *testing.T) {
	dev := virtual.New(&virtual.Config{Width: 4, Height: 4})
	rec := new(recorder)
	fb, err := urmfb.Acquire(dev, []urmfb.Request{{}}, urmfb.WithObserver(rec))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fb.UpdateSync(ctx, fb.Bounds(), urmfb.UpdateMQ))
	require.NoError(t, fb.UpdateSync(ctx, image.Rectangle{}, urmfb.UpdateMQ))
	require.NoError(t, fb.Release())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []urmfb.UpdateMode{urmfb.UpdateMQ}, rec.updates)
	assert.Equal(t, []error{nil}, rec.errs)
	assert.Equal(t, []int{1, 0, 1, 0}, rec.queue)
}
