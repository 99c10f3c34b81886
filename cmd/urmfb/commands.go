package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	_ "golang.org/x/image/webp"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/draw"
	"github.com/BeatGlow/urmfb/internal/config"
)

type command func(ctx context.Context, fb *urmfb.Framebuffer, cfg config.Config, args []string) error

var commands = map[string]command{
	"pattern": patternCmd,
	"clear":   clearCmd,
	"text":    textCmd,
	"show":    showCmd,
}

// patternCmd draws a box around the edge and an animated gradient inside it until ctx is done.
func patternCmd(ctx context.Context, fb *urmfb.Framebuffer, cfg config.Config, _ []string) error {
	var (
		img    = fb.Image()
		r      = fb.Bounds()
		offset int
		ticker = time.NewTicker(50 * time.Millisecond)
		last   urmfb.Handle
	)
	defer ticker.Stop()

	face, err := newFace(r.Dy() / 8)
	if err != nil {
		return err
	}
	label := fmt.Sprintf("%dx%d %s", r.Dx(), r.Dy(), fb.Format)

	img.Fill(color.White)
	draw.Rectangle(img, r, color.Black)
	if err = fb.UpdateSync(ctx, r, urmfb.UpdateClear); err != nil {
		return err
	}

	inner := r.Inset(1)
	for {
		// The previous frame is read from the pixel memory until it completes.
		if last != 0 {
			if err = fb.Await(ctx, last); err != nil {
				return err
			}
		}
		for y := inner.Min.Y; y < inner.Max.Y; y++ {
			for x := inner.Min.X; x < inner.Max.X; x++ {
				img.Set(x, y, color.RGBA{
					R: uint8(x + y + offset),
					G: uint8(x - y + offset),
					B: uint8(x + y - offset),
					A: 0xff,
				})
			}
		}
		pt := image.Pt(r.Dx()/2-textWidth(face, label)/2, r.Dy()/2)
		draw.RoundedBox(img, draw.TextBounds(face, pt, label).Inset(-4), 4, color.White)
		draw.Text(img, face, pt, label, color.Black)

		if last, err = fb.UpdateAsync(ctx, inner, cfg.Update); err != nil {
			return err
		}

		offset++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func clearCmd(ctx context.Context, fb *urmfb.Framebuffer, _ config.Config, _ []string) error {
	fb.Image().Fill(color.White)
	return fb.UpdateSync(ctx, fb.Bounds(), urmfb.UpdateClear)
}

func textCmd(ctx context.Context, fb *urmfb.Framebuffer, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("text: no message")
	}
	message := args[0]
	for _, arg := range args[1:] {
		message += " " + arg
	}

	r := fb.Bounds()
	face, err := newFace(r.Dy() / 6)
	if err != nil {
		return err
	}
	pt := image.Pt(r.Dx()/2-textWidth(face, message)/2, r.Dy()/2)
	img := fb.Image()
	region := draw.TextBounds(face, pt, message).Intersect(r)
	draw.Box(img, region, color.White)
	draw.Text(img, face, pt, message, color.Black)
	return fb.UpdateSync(ctx, region, cfg.Update)
}

// showCmd scales an image file to fit the framebuffer, keeping its aspect ratio.
func showCmd(ctx context.Context, fb *urmfb.Framebuffer, cfg config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("show: need exactly one image file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("show: %s: %w", args[0], err)
	}

	var (
		r    = fb.Bounds()
		sb   = src.Bounds()
		size = fit(sb.Size(), r.Size())
		dr   = image.Rectangle{Max: size}.Add(r.Size().Sub(size).Div(2))
		img  = fb.Image()
	)
	img.Fill(color.White)
	xdraw.CatmullRom.Scale(img, dr, src, sb, xdraw.Over, nil)
	fmt.Printf("showing %s %s image at %s\n", sb.Size(), format, dr)
	return fb.UpdateSync(ctx, r, cfg.Update)
}

// fit returns the largest size with the aspect ratio of src that fits in dst.
func fit(src, dst image.Point) image.Point {
	if src.X == 0 || src.Y == 0 {
		return image.Point{}
	}
	if src.X*dst.Y > dst.X*src.Y {
		return image.Pt(dst.X, src.Y*dst.X/src.X)
	}
	return image.Pt(src.X*dst.Y/src.Y, dst.Y)
}

// newFace returns the default font face with a height of about px pixels.
func newFace(px int) (font.Face, error) {
	return draw.NewFace(float64(max(px, 8)))
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}
