package pixel

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/BeatGlow/urmfb/draw"
)

type Image interface {
	draw.Image

	// Clear the image.
	Clear()

	// Fill the image with a single color.
	Fill(color.Color)
}

// Buffer holds the pixel values and is a container that is used by all image formats in this package.
type Buffer struct {
	// Rect is the image bounding box.
	Rect image.Rectangle

	// Pix are the image pixels.
	Pix []byte

	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
}

func (p *Buffer) Bounds() image.Rectangle {
	return p.Rect
}

func (p *Buffer) Clear() {
	for i := range p.Pix {
		p.Pix[i] = 0x00
	}
}

// Row returns the bytes of row y, limited to the pixels in Rect.
func (p *Buffer) Row(y, bytesPerPixel int) []byte {
	i := (y - p.Rect.Min.Y) * p.Stride
	return p.Pix[i : i+p.Rect.Dx()*bytesPerPixel]
}

// fill repeats value over every pixel inside Rect, leaving stride padding untouched.
func (p *Buffer) fill(value []byte) {
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		row := p.Row(y, len(value))
		for i := 0; i < len(row); i += len(value) {
			copy(row[i:], value)
		}
	}
}

func (p *Buffer) offset(x, y, bytesPerPixel int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*bytesPerPixel
}

func makeBuffer(w, h, stride, size int) Buffer {
	return Buffer{
		Rect:   image.Rect(0, 0, w, h),
		Pix:    make([]byte, size),
		Stride: stride,
	}
}

// RGB565Image is a 16-bits per pixel 5-6-5-bit RGB image.
type RGB565Image struct {
	Buffer
	Order binary.ByteOrder
}

func NewRGB565Image(w, h int) *RGB565Image {
	return &RGB565Image{
		Buffer: makeBuffer(w, h, w*2, w*2*h),
		Order:  binary.BigEndian,
	}
}

func (p *RGB565Image) ColorModel() color.Model {
	return RGB565Model
}

func (p *RGB565Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return color.Transparent
	}

	return RGB565{p.Order.Uint16(p.Pix[p.offset(x, y, 2):])}
}

func (p *RGB565Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return
	}

	v := rgb565Model(c).(RGB565).V
	p.Order.PutUint16(p.Pix[p.offset(x, y, 2):], v)
}

func (p *RGB565Image) Fill(c color.Color) {
	value := make([]byte, 2)
	p.Order.PutUint16(value, rgb565Model(c).(RGB565).V)
	p.fill(value)
}

// RGB888Image is a 24-bits per pixel image with one byte per R, G and B channel.
type RGB888Image struct {
	Buffer
}

func NewRGB888Image(w, h int) *RGB888Image {
	return &RGB888Image{
		Buffer: makeBuffer(w, h, w*3, w*3*h),
	}
}

func (p *RGB888Image) ColorModel() color.Model {
	return RGB888Model
}

func (p *RGB888Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return color.Transparent
	}

	s := p.Pix[p.offset(x, y, 3):]
	return RGB888{R: s[0], G: s[1], B: s[2]}
}

func (p *RGB888Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return
	}

	v := rgb888Model(c).(RGB888)
	s := p.Pix[p.offset(x, y, 3):]
	s[0], s[1], s[2] = v.R, v.G, v.B
}

func (p *RGB888Image) Fill(c color.Color) {
	v := rgb888Model(c).(RGB888)
	p.fill([]byte{v.R, v.G, v.B})
}

// RGBA8888Image is a 32-bits per pixel image with alpha premultiplied color, laid out like [image.RGBA].
type RGBA8888Image struct {
	Buffer
}

func NewRGBA8888Image(w, h int) *RGBA8888Image {
	return &RGBA8888Image{
		Buffer: makeBuffer(w, h, w*4, w*4*h),
	}
}

func (p *RGBA8888Image) ColorModel() color.Model {
	return RGBA8888Model
}

func (p *RGBA8888Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return color.Transparent
	}

	s := p.Pix[p.offset(x, y, 4):]
	return color.RGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
}

func (p *RGBA8888Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return
	}

	v := color.RGBAModel.Convert(c).(color.RGBA)
	s := p.Pix[p.offset(x, y, 4):]
	s[0], s[1], s[2], s[3] = v.R, v.G, v.B, v.A
}

func (p *RGBA8888Image) Fill(c color.Color) {
	v := color.RGBAModel.Convert(c).(color.RGBA)
	p.fill([]byte{v.R, v.G, v.B, v.A})
}

// RGBA returns an [image.RGBA] sharing the pixel memory.
func (p *RGBA8888Image) RGBA() *image.RGBA {
	return &image.RGBA{Pix: p.Pix, Stride: p.Stride, Rect: p.Rect}
}

// Interface checks.
var (
	_ Image = (*RGB565Image)(nil)
	_ Image = (*RGB888Image)(nil)
	_ Image = (*RGBA8888Image)(nil)
)
