package panel

import (
	"context"
	"image"
	"image/color"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/BeatGlow/urmfb"
)

func TestMain(m *testing.M) {
	sleep = func(time.Duration) {}
	os.Exit(m.Run())
}

type transfer struct {
	command byte
	args    []byte
	data    []byte
}

type fakeConn struct {
	transfers []transfer
	resets    []gpio.Level
	closed    bool
}

func (c *fakeConn) String() string { return "fake" }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) Reset(l gpio.Level) error {
	c.resets = append(c.resets, l)
	return nil
}

func (c *fakeConn) Command(command byte, args ...byte) error {
	c.transfers = append(c.transfers, transfer{command: command, args: append([]byte(nil), args...)})
	return nil
}

func (c *fakeConn) Data(data ...byte) error {
	c.transfers = append(c.transfers, transfer{data: append([]byte(nil), data...)})
	return nil
}

// commands returns the arguments sent with command.
func (c *fakeConn) commands(command byte) [][]byte {
	var out [][]byte
	for _, t := range c.transfers {
		if t.data == nil && t.command == command {
			out = append(out, t.args)
		}
	}
	return out
}

func (c *fakeConn) data() [][]byte {
	var out [][]byte
	for _, t := range c.transfers {
		if t.data != nil {
			out = append(out, t.data)
		}
	}
	return out
}

func TestInit(t *testing.T) {
	c := new(fakeConn)
	d, err := ST7789(c, &Config{Invert: true})
	require.NoError(t, err)

	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low, gpio.High}, c.resets)
	assert.Equal(t, cmdSWRESET, int(c.transfers[0].command))
	assert.Len(t, c.commands(cmdINVON), 1)
	assert.Empty(t, c.commands(cmdINVOFF))
	assert.Equal(t, [][]byte{{0x00}}, c.commands(cmdMADCTL))
	assert.Equal(t, "ST7789 240x240 on fake", d.String())

	require.NoError(t, d.Close())
	assert.Len(t, c.commands(cmdDISPOFF), 1)
	assert.True(t, c.closed)
}

func TestInvalidSize(t *testing.T) {
	_, err := ST7735(new(fakeConn), &Config{Width: 240, Height: 320})
	assert.Error(t, err)

	_, err = ST7789(new(fakeConn), &Config{Width: 240, Height: 320})
	assert.NoError(t, err)
}

func TestModes(t *testing.T) {
	d, err := ST7735(new(fakeConn), nil)
	require.NoError(t, err)

	modes := d.Modes()
	require.Len(t, modes, len(urmfb.Orientations))
	for i, m := range modes {
		assert.Equal(t, urmfb.Orientations[i], m.Orientation)
		assert.Equal(t, urmfb.RGB565, m.Format)
		if m.Orientation.Transposed() {
			assert.Equal(t, image.Pt(160, 128), image.Pt(m.Width, m.Height))
		} else {
			assert.Equal(t, image.Pt(128, 160), image.Pt(m.Width, m.Height))
		}
		assert.Equal(t, m.Width*2, m.LineStride)
	}
}

func TestMADCTL(t *testing.T) {
	tests := []struct {
		o    urmfb.Orientation
		want byte
	}{
		{urmfb.Rotate0, 0x00},
		{urmfb.Rotate90, 0x60},
		{urmfb.Rotate180, 0xc0},
		{urmfb.Rotate270, 0xa0},
		{urmfb.Rotate0Mirrored, 0x40},
		{urmfb.Rotate90Mirrored, 0x20},
		{urmfb.Rotate180Mirrored, 0x80},
		{urmfb.Rotate270Mirrored, 0xe0},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, madctl(test.o, false), test.o.String())
	}
	assert.Equal(t, byte(0x68), madctl(urmfb.Rotate90, true))
}

func TestFlush(t *testing.T) {
	c := new(fakeConn)
	d, err := ST7735(c, &Config{
		Width:     8,
		Height:    4,
		ColOffset: 2,
		RowOffset: 1,
		BatchSize: 8,
	})
	require.NoError(t, err)

	var mode urmfb.Mode
	for _, m := range d.Modes() {
		if m.Orientation == urmfb.Rotate0 {
			mode = m
		}
	}
	s, err := d.Map(mode)
	require.NoError(t, err)
	_, err = d.Map(mode)
	assert.Error(t, err)

	img := urmfb.NewImage(s.Mode(), s.Pix())
	img.Set(1, 1, color.RGBA{R: 0xff, A: 0xff})

	c.transfers = nil
	require.NoError(t, s.Flush(context.Background(), image.Rect(1, 1, 4, 3), urmfb.UpdateFast))

	assert.Equal(t, [][]byte{{0x00, 3, 0x00, 5}}, c.commands(cmdCASET))
	assert.Equal(t, [][]byte{{0x00, 2, 0x00, 3}}, c.commands(cmdRASET))
	assert.Len(t, c.commands(cmdRAMWR), 1)
	// Rows of 6 bytes with a batch size of 8 are sent one by one.
	assert.Equal(t, [][]byte{
		{0xf8, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}, c.data())

	c.transfers = nil
	require.NoError(t, s.Flush(context.Background(), image.Rect(1, 1, 2, 2), urmfb.UpdateClear))
	assert.Equal(t, [][]byte{{0x00, 2, 0x00, 9}}, c.commands(cmdCASET))
	assert.Equal(t, [][]byte{{0x00, 1, 0x00, 4}}, c.commands(cmdRASET))
	var n int
	for _, data := range c.data() {
		assert.LessOrEqual(t, len(data), 16)
		n += len(data)
	}
	assert.Equal(t, 8*4*2, n)

	require.NoError(t, s.Close())
	assert.Error(t, s.Flush(context.Background(), image.Rect(0, 0, 1, 1), urmfb.UpdateFast))
}

func TestFlushTransposedOffsets(t *testing.T) {
	c := new(fakeConn)
	d, err := ST7789(c, &Config{
		Width:        4,
		Height:       8,
		ColOffset:    2,
		RowOffset:    1,
		Orientations: []urmfb.Orientation{urmfb.Rotate90},
	})
	require.NoError(t, err)

	s, err := d.Map(d.Modes()[0])
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, [][]byte{{0x60}, {0x60}}, c.commands(cmdMADCTL))

	c.transfers = nil
	require.NoError(t, s.Flush(context.Background(), image.Rect(0, 0, 8, 4), urmfb.UpdateHQ))
	assert.Equal(t, [][]byte{{0x00, 1, 0x00, 8}}, c.commands(cmdCASET))
	assert.Equal(t, [][]byte{{0x00, 2, 0x00, 5}}, c.commands(cmdRASET))
}

func TestFlushCanceled(t *testing.T) {
	c := new(fakeConn)
	d, err := ST7735(c, &Config{Width: 8, Height: 4, Orientations: []urmfb.Orientation{urmfb.Rotate0}})
	require.NoError(t, err)
	s, err := d.Map(d.Modes()[0])
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Flush(ctx, image.Rect(0, 0, 8, 4), urmfb.UpdateFast), context.Canceled)
}
