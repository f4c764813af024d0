package images

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/lucasb-eyer/go-colorful"
)

// Style is the display style derived from artwork: foreground/background
// colors plus a background gradient, computed once at association time.
type Style struct {
	Foreground string `json:"fgColor"`
	Background string `json:"bgColor"`
	Gradient   string `json:"gradient"`
}

// deriveStyle computes the style from the image's average color. Sampling
// every pixel of the already-bounded variant is cheap enough.
func deriveStyle(img image.Image) (*Style, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("cannot derive style from empty image")
	}

	var r, g, bl, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr) / 0xffff
			g += float64(cg) / 0xffff
			bl += float64(cb) / 0xffff
			n++
		}
	}

	background := colorful.Color{R: r / n, G: g / n, B: bl / n}.Clamped()

	_, _, luminance := background.Hsl()
	foreground := colorful.Color{R: 1, G: 1, B: 1}
	if luminance > 0.6 {
		foreground = colorful.Color{}
	}

	// Gradient runs from the background color into a darkened variant.
	h, s, l := background.Hsl()
	darker := colorful.Hsl(h, s, l*0.6).Clamped()

	return &Style{
		Foreground: foreground.Hex(),
		Background: background.Hex(),
		Gradient:   fmt.Sprintf("linear-gradient(%s, %s)", background.Hex(), darker.Hex()),
	}, nil
}

func encodeStyle(style *Style) string {
	data, _ := json.Marshal(style)
	return string(data)
}

func decodeStyle(raw string) (*Style, error) {
	if raw == "" {
		return nil, fmt.Errorf("no style stored")
	}
	var style Style
	if err := json.Unmarshal([]byte(raw), &style); err != nil {
		return nil, fmt.Errorf("failed to decode style: %w", err)
	}
	return &style, nil
}
