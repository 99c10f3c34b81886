// Command urmfb-preview shows a virtual display in a window.
//
// A clock is drawn into a framebuffer acquired on the virtual display. Press R to cycle
// through the orientations, C to clear the display and Escape to quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/draw"
	"github.com/BeatGlow/urmfb/virtual"
)

var errQuit = errors.New("quit")

type preview struct {
	display *virtual.Display
	face    font.Face
	log     zerolog.Logger

	fb          *urmfb.Framebuffer
	orientation int
	image       *ebiten.Image
	last        time.Time
}

func main() {
	widthFlag := flag.Int("width", 320, "Display width")
	heightFlag := flag.Int("height", 240, "Display height")
	latencyFlag := flag.Duration("latency", 0, "Simulated update latency")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	latency := make(map[urmfb.UpdateMode]time.Duration)
	for _, mode := range urmfb.UpdateModes {
		latency[mode] = *latencyFlag
	}
	face, err := draw.NewFace(24)
	if err != nil {
		fatal(err)
	}
	p := &preview{
		display: virtual.New(&virtual.Config{
			Width:   *widthFlag,
			Height:  *heightFlag,
			Latency: latency,
		}),
		face: face,
		log:  log,
	}
	if err = p.acquire(); err != nil {
		fatal(err)
	}

	ebiten.SetWindowSize(*widthFlag*2, *heightFlag*2)
	ebiten.SetWindowTitle("urmfb preview")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err = ebiten.RunGame(p); err != nil && !errors.Is(err, errQuit) {
		fatal(err)
	}
	if err = p.fb.Release(); err != nil {
		fatal(err)
	}
}

// acquire (re)acquires the framebuffer in the current orientation.
func (p *preview) acquire() (err error) {
	if p.fb != nil {
		if err = p.fb.Release(); err != nil {
			return
		}
	}
	o := urmfb.Orientations[p.orientation%len(urmfb.Orientations)]
	p.fb, err = urmfb.Acquire(p.display, []urmfb.Request{{Orientation: o}}, urmfb.WithLogger(p.log))
	if err != nil {
		return
	}
	p.log.Info().Stringer("framebuffer", p.fb).Msg("acquired")
	p.fb.Image().Fill(color.White)
	return p.fb.UpdateSync(context.Background(), p.fb.Bounds(), urmfb.UpdateClear)
}

// tick draws the clock, once per second.
func (p *preview) tick() error {
	now := time.Now().Truncate(time.Second)
	if now.Equal(p.last) {
		return nil
	}
	p.last = now

	var (
		img    = p.fb.Image()
		r      = p.fb.Bounds()
		center = image.Pt(r.Dx()/2, r.Dy()/2)
		radius = min(r.Dx(), r.Dy())/2 - 8
		face   = image.Rect(center.X-radius, center.Y-radius, center.X+radius+1, center.Y+radius+1)
	)
	draw.Box(img, face, color.White)
	draw.RoundedRectangle(img, face, radius/4, color.Black)
	hand := func(fraction float64, length int, c color.Color) {
		a := 2*math.Pi*fraction - math.Pi/2
		end := image.Pt(
			center.X+int(float64(length)*math.Cos(a)),
			center.Y+int(float64(length)*math.Sin(a)),
		)
		draw.Line(img, center, end, c)
	}
	hand(float64(now.Hour()%12)/12+float64(now.Minute())/720, radius/2, color.Black)
	hand(float64(now.Minute())/60, radius*3/4, color.Black)
	hand(float64(now.Second())/60, radius-4, color.RGBA{R: 0xff, A: 0xff})

	label := now.Format(time.TimeOnly)
	pt := image.Pt(center.X-font.MeasureString(p.face, label).Ceil()/2, r.Max.Y-4)
	draw.Text(img, p.face, pt, label, color.Black)

	return p.fb.UpdateSync(context.Background(), r, urmfb.UpdateFast)
}

func (p *preview) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		return errQuit
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		p.orientation++
		p.last = time.Time{}
		if err := p.acquire(); err != nil {
			return err
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		p.fb.Image().Fill(color.White)
		if err := p.fb.UpdateSync(context.Background(), p.fb.Bounds(), urmfb.UpdateClear); err != nil {
			return err
		}
	}
	return p.tick()
}

func (p *preview) Draw(screen *ebiten.Image) {
	panel := p.display.Snapshot()
	if p.image == nil || p.image.Bounds().Size() != panel.Rect.Size() {
		p.image = ebiten.NewImage(panel.Rect.Dx(), panel.Rect.Dy())
	}
	p.image.WritePixels(panel.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fw, fh := float64(panel.Rect.Dx()), float64(panel.Rect.Dy())
	scale := math.Min(float64(sw)/fw, float64(sh)/fh)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate((float64(sw)-fw*scale)/2, (float64(sh)-fh*scale)/2)
	screen.Fill(color.Gray{Y: 0x40})
	screen.DrawImage(p.image, op)
}

func (p *preview) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fatal: "+err.Error())
	os.Exit(1)
}
