package panel

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lutzky/sensormon/internal/monitor"
	"github.com/lutzky/sensormon/internal/state"
)

// Size of the rendered status panel, matching a 128x32 OLED.
const (
	Width  = 128
	Height = 32
)

// Lines returns the text shown on the panel, one entry per item that fits.
func Lines(snap state.Snapshot, items []monitor.Item) []string {
	haveData := false
	for _, it := range items {
		if _, ok := snap.Get(it.Field); ok {
			haveData = true
			break
		}
	}
	if !haveData {
		return []string{"waiting for", "sensor data"}
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := monitor.Render(snap, []monitor.Item{{Label: it.Label, Field: it.Field, Delta: it.Delta}})
		if snap.Freshness(it.Field, it.StaleAfter) == state.Stale {
			line += " STALE!"
		}
		lines = append(lines, line)
	}
	return lines
}

// Render draws the panel text onto dst using c for foreground pixels.
func Render(dst draw.Image, c color.Color, snap state.Snapshot, items []monitor.Item) {
	drawer := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{c},
		Face: basicfont.Face7x13,
	}

	// Keep the first line flush with the top edge.
	baseY := -2

	for _, line := range Lines(snap, items) {
		baseY += drawer.Face.Metrics().Ascent.Ceil()
		if baseY > dst.Bounds().Max.Y {
			break
		}
		drawer.Dot = fixed.P(0, baseY)
		drawer.DrawString(line)
	}
}

// WritePNG renders a black-and-white panel image to w.
func WritePNG(w io.Writer, snap state.Snapshot, items []monitor.Item) error {
	img := image.NewPaletted(image.Rect(0, 0, Width, Height), color.Palette{color.Black, color.White})
	Render(img, color.White, snap, items)
	return png.Encode(w, img)
}
