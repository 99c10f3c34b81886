package draw

import (
	"image"
	"image/color"
)

// Shapes return the region of dst they touched, clipped to the bounds of dst. Pass it to
// an update to refresh only what changed.

// Line draws a line between two points, both inclusive.
func Line(dst Image, a, b image.Point, c color.Color) image.Rectangle {
	var (
		dx, sx = abs(b.X - a.X), sign(b.X - a.X)
		dy, sy = -abs(b.Y - a.Y), sign(b.Y - a.Y)
		e      = dx + dy
		p      = a
	)
	for {
		dst.Set(p.X, p.Y, c)
		if p == b {
			break
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
	r := image.Rect(a.X, a.Y, b.X, b.Y)
	r.Max = r.Max.Add(image.Pt(1, 1))
	return touched(dst, r)
}

// Rectangle draws the outline of rect, which excludes Max like [image.Rectangle] does.
func Rectangle(dst Image, rect image.Rectangle, c color.Color) image.Rectangle {
	rect = rect.Canon()
	if rect.Empty() {
		return image.Rectangle{}
	}
	Box(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+1), c)
	Box(dst, image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y), c)
	Box(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+1, rect.Max.Y), c)
	Box(dst, image.Rect(rect.Max.X-1, rect.Min.Y, rect.Max.X, rect.Max.Y), c)
	return touched(dst, rect)
}

// Box draws a filled rectangle.
func Box(dst Image, rect image.Rectangle, c color.Color) image.Rectangle {
	rect = touched(dst, rect)
	if f, ok := dst.(interface{ Fill(color.Color) }); ok && rect == dst.Bounds() {
		f.Fill(c)
		return rect
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, y, c)
		}
	}
	return rect
}

// RoundedRectangle draws the outline of rect with corners of the given radius.
func RoundedRectangle(dst Image, rect image.Rectangle, radius int, c color.Color) image.Rectangle {
	rect = rect.Canon()
	if rect.Empty() {
		return image.Rectangle{}
	}
	radius = clampRadius(rect, radius)
	if radius == 0 {
		return Rectangle(dst, rect, c)
	}

	var (
		r      = radius
		x0, x1 = rect.Min.X + r, rect.Max.X - r - 1
		y0, y1 = rect.Min.Y + r, rect.Max.Y - r - 1
	)
	Box(dst, image.Rect(x0, rect.Min.Y, x1+1, rect.Min.Y+1), c)
	Box(dst, image.Rect(x0, rect.Max.Y-1, x1+1, rect.Max.Y), c)
	Box(dst, image.Rect(rect.Min.X, y0, rect.Min.X+1, y1+1), c)
	Box(dst, image.Rect(rect.Max.X-1, y0, rect.Max.X, y1+1), c)
	arc(r, func(x, y int) {
		dst.Set(x1+x, y1+y, c)
		dst.Set(x1+y, y1+x, c)
		dst.Set(x0-x, y1+y, c)
		dst.Set(x0-y, y1+x, c)
		dst.Set(x1+x, y0-y, c)
		dst.Set(x1+y, y0-x, c)
		dst.Set(x0-x, y0-y, c)
		dst.Set(x0-y, y0-x, c)
	})
	return touched(dst, rect)
}

// RoundedBox draws a filled rectangle with corners of the given radius.
func RoundedBox(dst Image, rect image.Rectangle, radius int, c color.Color) image.Rectangle {
	rect = rect.Canon()
	if rect.Empty() {
		return image.Rectangle{}
	}
	radius = clampRadius(rect, radius)
	if radius == 0 {
		return Box(dst, rect, c)
	}

	var (
		r      = radius
		x0, x1 = rect.Min.X + r, rect.Max.X - r - 1
		y0, y1 = rect.Min.Y + r, rect.Max.Y - r - 1
	)
	Box(dst, image.Rect(rect.Min.X, y0, rect.Max.X, y1+1), c)
	arc(r, func(x, y int) {
		// Spans between the left and right arcs, above and below the center band.
		Box(dst, image.Rect(x0-x, y0-y, x1+x+1, y0-y+1), c)
		Box(dst, image.Rect(x0-y, y0-x, x1+y+1, y0-x+1), c)
		Box(dst, image.Rect(x0-x, y1+y, x1+x+1, y1+y+1), c)
		Box(dst, image.Rect(x0-y, y1+x, x1+y+1, y1+x+1), c)
	})
	return touched(dst, rect)
}

// arc calls plot for every point of the first octant of a circle with radius r, using the
// midpoint algorithm. The other octants follow by symmetry.
func arc(r int, plot func(x, y int)) {
	var (
		x, y = 0, r
		d    = 1 - r
	)
	for x <= y {
		plot(x, y)
		x++
		if d < 0 {
			d += 2*x + 1
		} else {
			y--
			d += 2*(x-y) + 1
		}
	}
}

func clampRadius(rect image.Rectangle, radius int) int {
	radius = min(radius, (rect.Dx()-1)/2, (rect.Dy()-1)/2)
	return max(radius, 0)
}

func touched(dst Image, rect image.Rectangle) image.Rectangle {
	return rect.Canon().Intersect(dst.Bounds())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
