package urmfb

import (
	"fmt"
	"image"
	"strings"
)

// Orientation is the rotation and mirroring applied between the framebuffer
// contents and the physical panel. Rotations are clock wise; mirrored
// orientations flip the image horizontally before rotating it.
type Orientation uint32

// Supported orientations. The values are stable.
const (
	OrientationAny    Orientation = iota // Any orientation, only valid in a Request
	Rotate0                              // Native panel orientation
	Rotate90                             // Rotate 90° clock wise
	Rotate180                            // Rotate 180°
	Rotate270                            // Rotate 270° clock wise
	Rotate0Mirrored                      // Mirror
	Rotate90Mirrored                     // Mirror, rotate 90° clock wise
	Rotate180Mirrored                    // Mirror, rotate 180°
	Rotate270Mirrored                    // Mirror, rotate 270° clock wise
)

var orientationNames = [...]string{
	OrientationAny:    "any",
	Rotate0:           "0",
	Rotate90:          "90",
	Rotate180:         "180",
	Rotate270:         "270",
	Rotate0Mirrored:   "0m",
	Rotate90Mirrored:  "90m",
	Rotate180Mirrored: "180m",
	Rotate270Mirrored: "270m",
}

// Orientations lists every concrete orientation.
var Orientations = []Orientation{
	Rotate0, Rotate90, Rotate180, Rotate270,
	Rotate0Mirrored, Rotate90Mirrored, Rotate180Mirrored, Rotate270Mirrored,
}

// Valid reports whether o is a known orientation, including OrientationAny.
func (o Orientation) Valid() bool {
	return o <= Rotate270Mirrored
}

func (o Orientation) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Orientation(%d)", uint32(o))
	}
	if o == OrientationAny {
		return "any"
	}
	if o.Mirrored() {
		return fmt.Sprintf("%d° mirrored", o.Degrees())
	}
	return fmt.Sprintf("%d°", o.Degrees())
}

// Degrees returns the clock wise rotation.
func (o Orientation) Degrees() int {
	if o == OrientationAny || !o.Valid() {
		return 0
	}
	return int((o-1)%4) * 90
}

// Mirrored reports whether the image is flipped horizontally.
func (o Orientation) Mirrored() bool {
	return o >= Rotate0Mirrored && o <= Rotate270Mirrored
}

// Transposed reports whether width and height swap between the framebuffer and the panel.
func (o Orientation) Transposed() bool {
	d := o.Degrees()
	return d == 90 || d == 270
}

// NativeSize returns the panel size for a framebuffer of the given logical size.
func (o Orientation) NativeSize(size image.Point) image.Point {
	if o.Transposed() {
		return image.Pt(size.Y, size.X)
	}
	return size
}

// Transform maps the logical pixel p of a framebuffer with the given logical size to its
// position on the panel.
func (o Orientation) Transform(p, size image.Point) image.Point {
	x, y := p.X, p.Y
	if o.Mirrored() {
		x = size.X - 1 - x
	}
	switch o.Degrees() {
	case 90:
		return image.Pt(size.Y-1-y, x)
	case 180:
		return image.Pt(size.X-1-x, size.Y-1-y)
	case 270:
		return image.Pt(y, size.X-1-x)
	default:
		return image.Pt(x, y)
	}
}

// TransformRect maps a logical rectangle to the panel rectangle it covers.
func (o Orientation) TransformRect(r image.Rectangle, size image.Point) image.Rectangle {
	if r.Empty() {
		return image.Rectangle{}
	}
	a := o.Transform(r.Min, size)
	b := o.Transform(r.Max.Sub(image.Pt(1, 1)), size)
	t := image.Rectangle{Min: a, Max: b}.Canon()
	t.Max = t.Max.Add(image.Pt(1, 1))
	return t
}

func (o Orientation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("urmfb: invalid orientation %d", uint32(o))
	}
	return []byte(orientationNames[o]), nil
}

func (o *Orientation) UnmarshalText(text []byte) error {
	s := strings.TrimSuffix(strings.ToLower(string(text)), "°")
	for i, name := range orientationNames {
		if s == name {
			*o = Orientation(i)
			return nil
		}
	}
	return fmt.Errorf("urmfb: unknown orientation %q", text)
}
